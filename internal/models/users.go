package models

import (
	"time"
)

type User struct {
	ID             string    `db:"id"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	PhoneNumber    string    `db:"phone_number"`
	Email          string    `db:"email"`
	Role           string    `db:"role"`
	Status         string    `db:"status"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
}

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

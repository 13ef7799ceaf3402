package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

type Bid struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	SongRef     string          `db:"song_ref"`
	Amount      decimal.Decimal `db:"amount"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	ProcessedAt sql.NullTime    `db:"processed_at"`
}

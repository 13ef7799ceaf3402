package seeders

import (
	"context"
	"testing"

	"github.com/cradoe/songbid/internal/mocks"
	"github.com/cradoe/songbid/internal/models"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	store := mocks.NewStore()
	seeder := New(store.DB(), mocks.NewLogger())

	admin := Account{FirstName: "Ada", Email: "admin@example.com", Password: "Str0ng!Passw0rd", Role: models.UserRoleAdmin}
	artist := Account{FirstName: "Wanjiru", Email: "artist@example.com", Password: "Str0ng!Passw0rd", Phone: "254712345678"}

	require.NoError(t, seeder.Run(context.Background(), admin, artist))
	// a second run finds both accounts
	require.NoError(t, seeder.Run(context.Background(), admin, artist))

	user, found, err := store.DB().User().GetByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, models.UserRoleAdmin, user.Role)
	require.NotEqual(t, admin.Password, user.HashedPassword)

	user, found, err = store.DB().User().GetByEmail(context.Background(), "artist@example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, models.UserRoleUser, user.Role)

	wallet, ok := store.Wallet(user.ID)
	require.True(t, ok)
	require.True(t, wallet.Balance.IsZero())
}

func TestRun_RejectsWeakPassword(t *testing.T) {
	store := mocks.NewStore()
	seeder := New(store.DB(), mocks.NewLogger())

	err := seeder.Run(context.Background(), Account{Email: "admin@example.com", Password: "123"})
	require.Error(t, err)

	_, found, err := store.DB().User().GetByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.False(t, found)
}

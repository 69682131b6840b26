package postgres

import (
	"context"
	"testing"
	"time"

	"depositgateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(userID string) *domain.WalletAccount {
	return &domain.WalletAccount{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.NewFromInt(1000),
		Currency:  "PKR",
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func walletColumns() []string {
	return []string{"id", "user_id", "balance", "currency", "updated_at"}
}

func walletRow(w *domain.WalletAccount) *pgxmock.Rows {
	return pgxmock.NewRows(walletColumns()).AddRow(w.ID, w.UserID, w.Balance, w.Currency, w.UpdatedAt)
}

func TestWalletRepo_GetOrCreateForUpdate_Existing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("user-1")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallet_accounts WHERE user_id .+ FOR UPDATE").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetOrCreateForUpdate(context.Background(), tx, w.UserID, "PKR")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.True(t, w.Balance.Equal(result.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetOrCreateForUpdate_Creates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	userID := "user-2"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallet_accounts WHERE user_id .+ FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows(walletColumns()))
	mock.ExpectExec("INSERT INTO wallet_accounts").
		WithArgs(pgxmock.AnyArg(), userID, "PKR").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	created := newTestWallet(userID)
	created.Balance = decimal.Zero
	mock.ExpectQuery("SELECT .+ FROM wallet_accounts WHERE user_id .+ FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(walletRow(created))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetOrCreateForUpdate(context.Background(), tx, userID, "PKR")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, decimal.Zero.Equal(result.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByUserID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("user-3")

	mock.ExpectQuery("SELECT .+ FROM wallet_accounts WHERE user_id").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	result, err := repo.GetByUserID(context.Background(), w.UserID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByUserID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallet_accounts WHERE user_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(walletColumns()))

	result, err := repo.GetByUserID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	walletID := uuid.New()
	newBalance := decimal.NewFromInt(1500)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_accounts SET balance").
		WithArgs(newBalance, walletID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateBalance(context.Background(), tx, walletID, newBalance)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_UpdateBalance_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	walletID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_accounts SET balance").
		WithArgs(decimal.NewFromInt(10), walletID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateBalance(context.Background(), tx, walletID, decimal.NewFromInt(10))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
)

func TestAccountRepository_Contract(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	got, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = repo.GetByIDOrFail(ctx, "s-1")
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)

	account, err := fees.NewAccount("s-1")
	require.NoError(t, err)
	feeID, err := account.AddFee(decimal.NewFromInt(100), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, account))

	loaded, err := repo.GetByIDOrFail(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "100", loaded.Balance().String())

	require.NoError(t, loaded.PayFee(feeID))
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, reloaded.Balance().IsZero())
	assert.Equal(t, 1, repo.Len())
}

func TestAccountRepository_LoadsAreIndependent(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	account, _ := fees.NewAccount("s-1")
	feeID, _ := account.AddFee(decimal.NewFromInt(50), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Save(ctx, account))

	// mutating an unsaved copy must not leak into the store
	a, _ := repo.GetByID(ctx, "s-1")
	require.NoError(t, a.PayFee(feeID))

	b, _ := repo.GetByID(ctx, "s-1")
	assert.Equal(t, "50", b.Balance().String())
}

func TestAccountRepository_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAccountRepository().GetByID(ctx, "s-1")
	assert.ErrorIs(t, err, context.Canceled)
}

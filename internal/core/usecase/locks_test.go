package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletLocksSerializeSameWallet(t *testing.T) {
	locks := newWalletLocks()
	id := uuid.New()

	unlock, err := locks.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locks.Lock(context.Background(), uuid.New())
	require.NoError(t, err, "distinct wallets must not contend")
	other()

	unlock()
	again, err := locks.Lock(context.Background(), id)
	require.NoError(t, err)
	again()

	assert.Equal(t, 0, locks.size())
}

// internal/ledger/ledger_test.go
package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endritv/murlan/internal/errs"
)

func TestApplyAndBalance(t *testing.T) {
	l := New(nil)
	user := uuid.New()
	ctx := context.Background()

	bal, err := l.Apply(ctx, user, 1000, ReasonSignupGrant, "grant:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)

	bal, err = l.Apply(ctx, user, -300, ReasonStakeEscrow, "escrow:1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), bal)
	assert.Equal(t, int64(700), l.Balance(user))

	history := l.History(user)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1000), history[0].Balance)
	assert.Equal(t, int64(700), history[1].Balance)
}

func TestApplyIdempotent(t *testing.T) {
	l := New(nil)
	user := uuid.New()
	ctx := context.Background()

	first, err := l.Apply(ctx, user, 500, ReasonSignupGrant, "grant:x")
	require.NoError(t, err)
	replay, err := l.Apply(ctx, user, 500, ReasonSignupGrant, "grant:x")
	require.NoError(t, err)

	assert.Equal(t, first, replay, "replay returns the original result")
	assert.Equal(t, int64(500), l.Balance(user), "replay posts nothing")
	assert.Len(t, l.History(user), 1)
}

func TestApplyRequiresKey(t *testing.T) {
	l := New(nil)
	_, err := l.Apply(context.Background(), uuid.New(), 100, ReasonSignupGrant, "")
	require.Error(t, err)
	assert.Equal(t, errs.IdempotencyRequired, errs.CodeOf(err))
}

func TestDebitCannotGoNegative(t *testing.T) {
	l := New(nil)
	user := uuid.New()
	ctx := context.Background()

	_, err := l.Apply(ctx, user, 200, ReasonSignupGrant, "grant:1")
	require.NoError(t, err)

	_, err = l.Apply(ctx, user, -201, ReasonStakeEscrow, "escrow:1")
	require.Error(t, err)
	assert.Equal(t, errs.InsufficientFunds, errs.CodeOf(err))
	assert.Equal(t, int64(200), l.Balance(user), "failed debit posts no entry")
	assert.Len(t, l.History(user), 1)
}

func TestGroupIsAllOrNothing(t *testing.T) {
	l := New(nil)
	rich := uuid.New()
	broke := uuid.New()
	ctx := context.Background()

	_, err := l.Apply(ctx, rich, 1000, ReasonSignupGrant, "grant:rich")
	require.NoError(t, err)

	// Second leg fails, so the first leg must not land either.
	_, err = l.ApplyGroup(ctx, []Leg{
		{UserID: rich, Amount: -100, Reason: ReasonStakeEscrow},
		{UserID: broke, Amount: -100, Reason: ReasonStakeEscrow},
	}, "escrow:game1")
	require.Error(t, err)
	assert.Equal(t, errs.InsufficientFunds, errs.CodeOf(err))
	assert.Equal(t, int64(1000), l.Balance(rich))
	assert.Equal(t, int64(0), l.Balance(broke))

	// A group debiting one user twice must account for its own legs.
	_, err = l.ApplyGroup(ctx, []Leg{
		{UserID: rich, Amount: -600, Reason: ReasonStakeEscrow},
		{UserID: rich, Amount: -600, Reason: ReasonStakeEscrow},
	}, "escrow:game2")
	require.Error(t, err)
	assert.Equal(t, int64(1000), l.Balance(rich))
}

func TestGroupReplayReturnsOriginal(t *testing.T) {
	l := New(nil)
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()
	_, err := l.ApplyGroup(ctx, []Leg{
		{UserID: a, Amount: 500, Reason: ReasonSignupGrant},
		{UserID: b, Amount: 500, Reason: ReasonSignupGrant},
	}, "grant:pair")
	require.NoError(t, err)

	entries, err := l.ApplyGroup(ctx, []Leg{
		{UserID: a, Amount: 500, Reason: ReasonSignupGrant},
		{UserID: b, Amount: 500, Reason: ReasonSignupGrant},
	}, "grant:pair")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(500), l.Balance(a))
	assert.Equal(t, int64(500), l.Balance(b))
}

func TestKeyReusedWithDifferentLegsRejected(t *testing.T) {
	l := New(nil)
	user := uuid.New()
	ctx := context.Background()

	_, err := l.Apply(ctx, user, 1000, ReasonSignupGrant, "grant:reuse")
	require.NoError(t, err)

	// Same key, different amount: not a retry.
	_, err = l.Apply(ctx, user, 500, ReasonSignupGrant, "grant:reuse")
	assert.Equal(t, errs.DuplicateIdempotency, errs.CodeOf(err))
	assert.Equal(t, int64(1000), l.Balance(user), "rejected reuse posts nothing")

	// The faithful replay still returns the original result.
	bal, err := l.Apply(ctx, user, 1000, ReasonSignupGrant, "grant:reuse")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
}

// Concurrent escrow/payout groups must keep every balance equal to the fold
// of its entries.
func TestConcurrentGroupsReconcile(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	users := make([]uuid.UUID, 4)
	for i := range users {
		users[i] = uuid.New()
		_, err := l.Apply(ctx, users[i], 10000, ReasonSignupGrant, fmt.Sprintf("grant:%d", i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for round := 0; round < 50; round++ {
		wg.Add(1)
		go func(round int) {
			defer wg.Done()
			key := fmt.Sprintf("escrow:round%d", round)
			legs := make([]Leg, 0, len(users))
			for _, u := range users {
				legs = append(legs, Leg{UserID: u, Amount: -10, Reason: ReasonStakeEscrow})
			}
			if _, err := l.ApplyGroup(ctx, legs, key); err != nil {
				return
			}
			// Pay the whole pot back to the first user.
			_, _ = l.Apply(ctx, users[0], 10*int64(len(users)), ReasonPotPayout,
				fmt.Sprintf("settle:round%d", round))
		}(round)
	}
	wg.Wait()

	var total int64
	for _, u := range users {
		fold := l.Balance(u)
		assert.Equal(t, l.cachedBalance(u), fold, "cached balance diverged from fold")
		total += fold
	}
	assert.Equal(t, int64(40000), total, "money is conserved")
}

func TestRestore(t *testing.T) {
	l := New(nil)
	user := uuid.New()
	ctx := context.Background()
	_, err := l.Apply(ctx, user, 800, ReasonSignupGrant, "grant:r")
	require.NoError(t, err)

	replica := New(nil)
	replica.Restore(l.History(user))
	assert.Equal(t, int64(800), replica.Balance(user))

	// The replayed group key must still be a no-op.
	bal, err := replica.Apply(ctx, user, 800, ReasonSignupGrant, "grant:r")
	require.NoError(t, err)
	assert.Equal(t, int64(800), bal)
	assert.Len(t, replica.History(user), 1)
}

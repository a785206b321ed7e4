// internal/ledger/ledger.go
//
// The ledger is the only component allowed to create wallet transactions.
// It is append-only: a balance is always the fold of a user's entries, and
// the reconciliation test in ledger_test.go holds that invariant against
// the cached balance map.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/errs"
)

// Reason codes for ledger entries.
const (
	ReasonSignupGrant = "signup_grant"
	ReasonStakeEscrow = "stake_escrow"
	ReasonPotPayout   = "pot_payout"
	ReasonStakeRefund = "stake_refund"
)

// Entry is one committed, immutable ledger row. Amounts are minor units
// (cents); Balance is the user's balance immediately after this entry.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Balance   int64     `json:"balance"`
	GroupKey  string    `json:"group_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Leg is one not-yet-committed movement inside a group.
type Leg struct {
	UserID uuid.UUID
	Amount int64
	Reason string
}

// Recorder receives committed entries for durable storage. Recording is
// asynchronous; the in-process ledger remains authoritative.
type Recorder interface {
	RecordEntries(ctx context.Context, entries []Entry) error
}

// Ledger holds all wallet state behind a single mutex. Multi-leg groups
// commit entirely or not at all, and every group key is applied at most
// once.
type Ledger struct {
	mu       sync.Mutex
	entries  []Entry
	balances map[uuid.UUID]int64
	applied  map[string][]Entry
	recorder Recorder
}

// New builds an empty ledger. recorder may be nil (tests, no durable store).
func New(recorder Recorder) *Ledger {
	return &Ledger{
		balances: make(map[uuid.UUID]int64),
		applied:  make(map[string][]Entry),
		recorder: recorder,
	}
}

// Apply posts a single signed movement for one user. Replays of the same
// idempotency key return the originally committed entry.
func (l *Ledger) Apply(ctx context.Context, userID uuid.UUID, amount int64, reason, key string) (int64, error) {
	entries, err := l.ApplyGroup(ctx, []Leg{{UserID: userID, Amount: amount, Reason: reason}}, key)
	if err != nil {
		return 0, err
	}
	return entries[len(entries)-1].Balance, nil
}

// ApplyGroup atomically posts every leg or none of them. A debit that would
// drive any balance negative (accounting for earlier legs in the same
// group) fails the whole group with INSUFFICIENT_FUNDS and commits nothing.
func (l *Ledger) ApplyGroup(ctx context.Context, legs []Leg, key string) ([]Entry, error) {
	if key == "" {
		return nil, errs.New(errs.IdempotencyRequired, "ledger group needs an idempotency key")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if prior, ok := l.applied[key]; ok {
		// A replay must carry the legs it carried the first time; a key
		// reused for a different movement is a client bug, not a retry.
		if !sameLegs(prior, legs) {
			return nil, errs.New(errs.DuplicateIdempotency, "idempotency key "+key+" reused with different legs")
		}
		out := make([]Entry, len(prior))
		copy(out, prior)
		return out, nil
	}

	// Validate all legs against projected balances before touching state.
	projected := make(map[uuid.UUID]int64, len(legs))
	for _, leg := range legs {
		if _, ok := projected[leg.UserID]; !ok {
			projected[leg.UserID] = l.balances[leg.UserID]
		}
		projected[leg.UserID] += leg.Amount
		if projected[leg.UserID] < 0 {
			return nil, errs.New(errs.InsufficientFunds, "balance would go negative for "+leg.UserID.String())
		}
	}

	now := time.Now().UTC()
	committed := make([]Entry, 0, len(legs))
	for _, leg := range legs {
		l.balances[leg.UserID] += leg.Amount
		e := Entry{
			ID:        uuid.New(),
			UserID:    leg.UserID,
			Amount:    leg.Amount,
			Reason:    leg.Reason,
			Balance:   l.balances[leg.UserID],
			GroupKey:  key,
			CreatedAt: now,
		}
		l.entries = append(l.entries, e)
		committed = append(committed, e)
	}
	stored := make([]Entry, len(committed))
	copy(stored, committed)
	l.applied[key] = stored

	if l.recorder != nil {
		go func(entries []Entry) {
			if err := l.recorder.RecordEntries(context.Background(), entries); err != nil {
				logrus.WithError(err).WithField("group_key", key).Error("ledger: failed to record entries")
			}
		}(stored)
	}
	return committed, nil
}

func sameLegs(prior []Entry, legs []Leg) bool {
	if len(prior) != len(legs) {
		return false
	}
	for i, leg := range legs {
		e := prior[i]
		if e.UserID != leg.UserID || e.Amount != leg.Amount || e.Reason != leg.Reason {
			return false
		}
	}
	return true
}

// Balance folds the entry log for one user. The cached balance map is only
// an optimization for debit checks; the fold is the source of truth.
func (l *Ledger) Balance(userID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, e := range l.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum
}

// History returns a copy of one user's entries in commit order.
func (l *Ledger) History(userID uuid.UUID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// Restore folds previously persisted entries back in at cold start. It must
// run before the ledger accepts traffic.
func (l *Ledger) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.entries = append(l.entries, e)
		l.balances[e.UserID] += e.Amount
		if e.GroupKey != "" {
			l.applied[e.GroupKey] = append(l.applied[e.GroupKey], e)
		}
	}
}

// cachedBalance exposes the cached value for the reconciliation test.
func (l *Ledger) cachedBalance(userID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

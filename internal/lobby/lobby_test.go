// internal/lobby/lobby_test.go
package lobby

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endritv/murlan/internal/errs"
	"github.com/endritv/murlan/internal/game"
	"github.com/endritv/murlan/internal/ledger"
)

func fundedUser(t *testing.T, l *ledger.Ledger, amount int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := l.Apply(context.Background(), id, amount, ledger.ReasonSignupGrant, "grant:"+id.String())
	require.NoError(t, err)
	return id
}

func TestCreateSeatsHost(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, lb.Status)
	assert.Len(t, lb.Code, 6)
	require.Len(t, lb.Members, 1)
	assert.Equal(t, host, lb.Members[0].UserID)

	got, ok := s.GetByCode(lb.Code)
	require.True(t, ok)
	assert.Equal(t, lb.ID, got.ID)
}

func TestCreateValidation(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 500)

	_, err := s.Create(host, game.Mode("5v5"), 100, nil)
	assert.Equal(t, errs.InvalidMode, errs.CodeOf(err))

	_, err = s.Create(host, game.Mode1v1, -1, nil)
	assert.Equal(t, errs.InvalidStake, errs.CodeOf(err))

	_, err = s.Create(host, game.Mode1v1, 1000, nil)
	assert.Equal(t, errs.InsufficientFunds, errs.CodeOf(err))

	_, err = s.Create(host, game.Mode1v1, 100, nil)
	require.NoError(t, err)
	_, err = s.Create(host, game.Mode1v1, 100, nil)
	assert.Equal(t, errs.AlreadyIn, errs.CodeOf(err), "one open lobby per user")
}

func TestJoinByCode(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	guest := fundedUser(t, l, 5000)
	broke := fundedUser(t, l, 10)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)

	_, err = s.JoinByCode(guest, "NOSUCH")
	assert.Equal(t, errs.LobbyNotFound, errs.CodeOf(err))

	_, err = s.JoinByCode(broke, lb.Code)
	assert.Equal(t, errs.InsufficientFunds, errs.CodeOf(err))

	_, err = s.JoinByCode(guest, lb.Code)
	require.NoError(t, err)
	_, err = s.JoinByCode(guest, lb.Code)
	assert.Equal(t, errs.AlreadyIn, errs.CodeOf(err))

	late := fundedUser(t, l, 5000)
	_, err = s.JoinByCode(late, lb.Code)
	assert.Equal(t, errs.LobbyFull, errs.CodeOf(err))
}

func TestTeamsAssignedByJoinOrder(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	lb, err := s.Create(host, game.Mode2v2, 100, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.JoinByCode(fundedUser(t, l, 5000), lb.Code)
		require.NoError(t, err)
	}
	require.Len(t, lb.Members, 4)
	assert.Equal(t, []string{"A", "B", "A", "B"}, []string{
		lb.Members[0].Team, lb.Members[1].Team, lb.Members[2].Team, lb.Members[3].Team,
	})
}

func TestStartEscrowsAndSeals(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	guest := fundedUser(t, l, 5000)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)

	_, err = s.Start(context.Background(), host, lb.ID)
	assert.Equal(t, errs.LobbyNotFull, errs.CodeOf(err))

	_, err = s.JoinByCode(guest, lb.Code)
	require.NoError(t, err)

	_, err = s.Start(context.Background(), guest, lb.ID)
	assert.Equal(t, errs.LobbyNotHost, errs.CodeOf(err))

	g, err := s.Start(context.Background(), host, lb.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, lb.Status)
	assert.Equal(t, g.ID, lb.GameID)
	assert.Equal(t, int64(4000), l.Balance(host), "stake escrowed")
	assert.Equal(t, int64(4000), l.Balance(guest))

	// The code is retired and the seats are released for new lobbies.
	_, ok := s.GetByCode(lb.Code)
	assert.False(t, ok)
	_, err = s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)

	_, err = s.Start(context.Background(), host, lb.ID)
	assert.Equal(t, errs.LobbyNotOpen, errs.CodeOf(err), "started lobby never reopens")
}

func TestStartFailsWhenMemberCannotCoverStake(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	guest := fundedUser(t, l, 1000)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)
	_, err = s.JoinByCode(guest, lb.Code)
	require.NoError(t, err)

	// The guest spends their balance between joining and the start.
	_, err = l.Apply(context.Background(), guest, -900, ledger.ReasonStakeEscrow, "drain:"+guest.String())
	require.NoError(t, err)

	_, err = s.Start(context.Background(), host, lb.ID)
	assert.Equal(t, errs.InsufficientFunds, errs.CodeOf(err))
	assert.Equal(t, StatusOpen, lb.Status, "lobby stays open")
	assert.Equal(t, int64(5000), l.Balance(host), "no partial escrow")
}

func TestCancelReleasesSeats(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)

	err = s.Cancel(uuid.New(), lb.ID)
	assert.Equal(t, errs.LobbyNotHost, errs.CodeOf(err))

	require.NoError(t, s.Cancel(host, lb.ID))
	assert.Equal(t, StatusCancelled, lb.Status)

	_, err = s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err, "host can open a new lobby")
}

func TestListOpen(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	a := fundedUser(t, l, 5000)
	b := fundedUser(t, l, 5000)

	la, err := s.Create(a, game.Mode1v1, 100, nil)
	require.NoError(t, err)
	_, err = s.Create(b, game.ModeFFA3, 100, nil)
	require.NoError(t, err)
	require.Len(t, s.ListOpen(), 2)

	require.NoError(t, s.Cancel(a, la.ID))
	assert.Len(t, s.ListOpen(), 1)
}

// Scenario: two players race for the last seat of a 3-player table. Exactly
// one join succeeds; the other sees LOBBY_FULL.
func TestConcurrentJoinLastSeat(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	second := fundedUser(t, l, 5000)

	lb, err := s.Create(host, game.ModeFFA3, 100, nil)
	require.NoError(t, err)
	_, err = s.JoinByCode(second, lb.Code)
	require.NoError(t, err)

	const racers = 8
	var ok, full int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		u := fundedUser(t, l, 5000)
		go func() {
			defer wg.Done()
			_, err := s.JoinByCode(u, lb.Code)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errs.CodeOf(err) == errs.LobbyFull:
				atomic.AddInt64(&full, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok, "exactly one racer takes the last seat")
	assert.Equal(t, int64(racers-1), full)
	assert.Len(t, lb.Members, 3)
}

func TestConcurrentStartEscrowsOnce(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	guest := fundedUser(t, l, 5000)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)
	_, err = s.JoinByCode(guest, lb.Code)
	require.NoError(t, err)

	const racers = 8
	var ok, closed int64
	var games sync.Map
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := s.Start(context.Background(), host, lb.ID)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
				games.Store(g.ID, true)
			case errs.CodeOf(err) == errs.LobbyNotOpen:
				atomic.AddInt64(&closed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok, "exactly one caller starts the game")
	assert.Equal(t, int64(racers-1), closed)
	count := 0
	games.Range(func(_, _ interface{}) bool { count++; return true })
	assert.Equal(t, 1, count, "a single session was built")

	// The losers never reach the escrow, so each stake is debited once.
	assert.Equal(t, int64(4000), l.Balance(host))
	assert.Equal(t, int64(4000), l.Balance(guest))
	assert.Equal(t, StatusStarted, lb.Status)
}

func TestCancelRejectedWhileStarting(t *testing.T) {
	l := ledger.New(nil)
	s := NewStore(l)
	host := fundedUser(t, l, 5000)
	guest := fundedUser(t, l, 5000)

	lb, err := s.Create(host, game.Mode1v1, 1000, nil)
	require.NoError(t, err)
	_, err = s.JoinByCode(guest, lb.Code)
	require.NoError(t, err)

	// Simulate the window between the claim and the final seal: the lobby
	// is marked starting, so a cancel must not land under the escrow.
	s.mu.Lock()
	lb.Status = StatusStarting
	s.mu.Unlock()

	err = s.Cancel(host, lb.ID)
	assert.Equal(t, errs.LobbyNotOpen, errs.CodeOf(err))

	s.mu.Lock()
	lb.Status = StatusOpen
	s.mu.Unlock()
	_, err = s.Start(context.Background(), host, lb.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), l.Balance(host))
}

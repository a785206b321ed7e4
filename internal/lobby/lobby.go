// internal/lobby/lobby.go
//
// A lobby is the pre-game gathering point: the host opens it with a mode
// and a stake, other players join by its short code, and starting it seals
// the roster, escrows every stake and hands the table over to a game
// session. A lobby never reopens once started.
package lobby

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/errs"
	"github.com/endritv/murlan/internal/game"
	"github.com/endritv/murlan/internal/ledger"
)

// Status of a lobby. Terminal states never transition back to StatusOpen.
type Status string

const (
	StatusOpen      Status = "open"
	StatusStarting  Status = "starting"
	StatusStarted   Status = "started"
	StatusCancelled Status = "cancelled"
)

// Membership is one seated player, in join order. Teams are assigned at
// join time for 2v2 (alternating A/B) and empty otherwise.
type Membership struct {
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	Team     string    `json:"team,omitempty"`
}

// Lobby is one open table. Mutation goes through the Store so that the
// capacity check and the member append stay atomic.
type Lobby struct {
	ID       uuid.UUID    `json:"id"`
	Code     string       `json:"code"`
	HostID   uuid.UUID    `json:"host_id"`
	Mode     game.Mode    `json:"mode"`
	Stake    int64        `json:"stake"`
	SeasonID *uuid.UUID   `json:"season_id,omitempty"`
	Status   Status       `json:"status"`
	Members  []Membership `json:"members"`

	CreatedAt time.Time `json:"created_at"`
	// GameID is set once the lobby starts.
	GameID uuid.UUID `json:"game_id,omitempty"`
}

func (l *Lobby) capacity() int {
	n, _ := l.Mode.Capacity()
	return n
}

// Full reports whether every seat is taken.
func (l *Lobby) Full() bool { return len(l.Members) >= l.capacity() }

func (l *Lobby) hasMember(userID uuid.UUID) bool {
	for _, m := range l.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	// codeAttempts bounds collision retries before giving up.
	codeAttempts = 32
)

// Store owns every lobby in the process. A single mutex covers lookups and
// joins so two racing joins can never both take the last seat.
type Store struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Lobby
	byCode map[string]*Lobby
	// byUser tracks which open lobby a user currently sits in; a user may
	// sit in at most one at a time.
	byUser map[uuid.UUID]uuid.UUID

	ledger *ledger.Ledger
	log    *logrus.Entry
}

// NewStore builds an empty lobby store backed by the given ledger.
func NewStore(l *ledger.Ledger) *Store {
	return &Store{
		byID:   make(map[uuid.UUID]*Lobby),
		byCode: make(map[string]*Lobby),
		byUser: make(map[uuid.UUID]uuid.UUID),
		ledger: l,
		log:    logrus.WithField("component", "lobby"),
	}
}

// Create opens a lobby and seats the host in it. The host needs a balance
// covering the stake; the stake itself is only escrowed at start.
func (s *Store) Create(hostID uuid.UUID, mode game.Mode, stake int64, seasonID *uuid.UUID) (*Lobby, error) {
	if _, ok := mode.Capacity(); !ok {
		return nil, errs.New(errs.InvalidMode, "unknown game mode")
	}
	if stake < 0 {
		return nil, errs.New(errs.InvalidStake, "stake cannot be negative")
	}
	if s.ledger != nil && s.ledger.Balance(hostID) < stake {
		return nil, errs.New(errs.InsufficientFunds, "balance does not cover the stake")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[hostID]; ok {
		return nil, errs.New(errs.AlreadyIn, "already seated in an open lobby")
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	lb := &Lobby{
		ID:        uuid.New(),
		Code:      code,
		HostID:    hostID,
		Mode:      mode,
		Stake:     stake,
		SeasonID:  seasonID,
		Status:    StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	s.seatLocked(lb, hostID)
	s.byID[lb.ID] = lb
	s.byCode[lb.Code] = lb

	s.log.WithFields(logrus.Fields{
		"lobby_id": lb.ID,
		"code":     lb.Code,
		"mode":     mode,
		"stake":    stake,
	}).Info("lobby created")
	return lb, nil
}

// JoinByCode seats a user in the lobby with the given code. The capacity
// check and the seat assignment happen under one lock: of two concurrent
// joins for the last seat, exactly one succeeds.
func (s *Store) JoinByCode(userID uuid.UUID, code string) (*Lobby, error) {
	if s.ledger != nil {
		// Balance pre-check outside the store lock; the authoritative check
		// is the escrow at start.
		s.mu.Lock()
		lb, ok := s.byCode[code]
		s.mu.Unlock()
		if !ok {
			return nil, errs.New(errs.LobbyNotFound, "no open lobby with that code")
		}
		if s.ledger.Balance(userID) < lb.Stake {
			return nil, errs.New(errs.InsufficientFunds, "balance does not cover the stake")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lb, ok := s.byCode[code]
	if !ok {
		return nil, errs.New(errs.LobbyNotFound, "no open lobby with that code")
	}
	if lb.Status != StatusOpen {
		return nil, errs.New(errs.LobbyNotOpen, "lobby is no longer open")
	}
	if lb.hasMember(userID) {
		return nil, errs.New(errs.AlreadyIn, "already seated in this lobby")
	}
	if _, ok := s.byUser[userID]; ok {
		return nil, errs.New(errs.AlreadyIn, "already seated in another lobby")
	}
	if lb.Full() {
		return nil, errs.New(errs.LobbyFull, "lobby is full")
	}

	s.seatLocked(lb, userID)
	s.log.WithFields(logrus.Fields{
		"lobby_id": lb.ID,
		"user_id":  userID,
		"seated":   len(lb.Members),
	}).Info("player joined lobby")
	return lb, nil
}

// seatLocked appends a member and assigns the 2v2 team by join parity.
// Assumes lock is held.
func (s *Store) seatLocked(lb *Lobby, userID uuid.UUID) {
	m := Membership{UserID: userID, JoinedAt: time.Now().UTC()}
	if lb.Mode.Teamed() {
		if len(lb.Members)%2 == 0 {
			m.Team = "A"
		} else {
			m.Team = "B"
		}
	}
	lb.Members = append(lb.Members, m)
	s.byUser[userID] = lb.ID
}

// Start seals the roster, escrows every member's stake as one atomic group
// and returns the new game session, already dealt. Only the host may start,
// and only a full lobby starts. If any member cannot cover the stake the
// escrow fails as a whole and the lobby stays open.
func (s *Store) Start(ctx context.Context, hostID uuid.UUID, lobbyID uuid.UUID) (*game.MurlanGame, error) {
	s.mu.Lock()
	lb, ok := s.byID[lobbyID]
	if !ok {
		s.mu.Unlock()
		return nil, errs.New(errs.LobbyNotFound, "lobby not found")
	}
	if lb.Status != StatusOpen {
		s.mu.Unlock()
		return nil, errs.New(errs.LobbyNotOpen, "lobby is no longer open")
	}
	if lb.HostID != hostID {
		s.mu.Unlock()
		return nil, errs.New(errs.LobbyNotHost, "only the host can start the game")
	}
	if !lb.Full() {
		s.mu.Unlock()
		return nil, errs.New(errs.LobbyNotFull, "lobby is not full yet")
	}

	// Claim the lobby before releasing the lock. A concurrent Start or
	// Cancel now sees StatusStarting and is turned away, so exactly one
	// caller ever reaches the escrow below.
	lb.Status = StatusStarting

	roster := make([]game.RosterEntry, 0, len(lb.Members))
	for _, m := range lb.Members {
		roster = append(roster, game.RosterEntry{UserID: m.UserID, Team: m.Team})
	}
	g := game.NewMurlanGame(lb.ID, lb.Mode, lb.Stake, lb.SeasonID, roster, s.ledger)
	s.mu.Unlock()

	// Escrow outside the store lock; the idempotency key is derived from
	// the game id so a crashed retry never double-debits.
	if s.ledger != nil && lb.Stake > 0 {
		legs := make([]ledger.Leg, 0, len(roster))
		for _, entry := range roster {
			legs = append(legs, ledger.Leg{UserID: entry.UserID, Amount: -lb.Stake, Reason: ledger.ReasonStakeEscrow})
		}
		if _, err := s.ledger.ApplyGroup(ctx, legs, "escrow:"+g.ID.String()); err != nil {
			// Release the claim so the lobby can refill or retry.
			s.mu.Lock()
			lb.Status = StatusOpen
			s.mu.Unlock()
			return nil, err
		}
	}

	s.mu.Lock()
	lb.Status = StatusStarted
	lb.GameID = g.ID
	delete(s.byCode, lb.Code)
	for _, m := range lb.Members {
		delete(s.byUser, m.UserID)
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"lobby_id": lb.ID,
		"game_id":  g.ID,
		"mode":     lb.Mode,
		"pot":      lb.Stake * int64(len(roster)),
	}).Info("lobby started")
	return g, nil
}

// Cancel closes an open lobby without starting it. Nothing was escrowed
// yet, so there is nothing to refund. Only the host may cancel.
func (s *Store) Cancel(hostID uuid.UUID, lobbyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lb, ok := s.byID[lobbyID]
	if !ok {
		return errs.New(errs.LobbyNotFound, "lobby not found")
	}
	if lb.Status != StatusOpen {
		return errs.New(errs.LobbyNotOpen, "lobby is no longer open")
	}
	if lb.HostID != hostID {
		return errs.New(errs.LobbyNotHost, "only the host can cancel")
	}
	lb.Status = StatusCancelled
	delete(s.byCode, lb.Code)
	for _, m := range lb.Members {
		delete(s.byUser, m.UserID)
	}
	s.log.WithField("lobby_id", lb.ID).Info("lobby cancelled")
	return nil
}

// Get returns a lobby by id.
func (s *Store) Get(lobbyID uuid.UUID) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.byID[lobbyID]
	return lb, ok
}

// GetByCode returns an open lobby by its join code.
func (s *Store) GetByCode(code string) (*Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.byCode[code]
	return lb, ok
}

// ListOpen returns every lobby still accepting players.
func (s *Store) ListOpen() []*Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Lobby, 0)
	for _, lb := range s.byID {
		if lb.Status == StatusOpen {
			out = append(out, lb)
		}
	}
	return out
}

// generateCode draws a fresh join code, retrying on collision with live
// codes a bounded number of times. Assumes lock is held.
func (s *Store) generateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	for attempt := 0; attempt < codeAttempts; attempt++ {
		buf := make([]byte, codeLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", errs.New(errs.InternalError, "code generation failed")
			}
			buf[i] = codeAlphabet[n.Int64()]
		}
		code := string(buf)
		if _, taken := s.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", errs.New(errs.CodeExhausted, "could not allocate a unique join code")
}

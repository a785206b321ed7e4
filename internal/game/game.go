// internal/game/game.go
package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/errs"
	"github.com/endritv/murlan/internal/ledger"
)

// Mode identifies the table layout and the settlement policy.
type Mode string

const (
	Mode1v1  Mode = "1v1"
	ModeFFA3 Mode = "ffa3"
	Mode2v2  Mode = "2v2"
)

// Capacity returns the seat count for a mode, or false for an unknown mode.
func (m Mode) Capacity() (int, bool) {
	switch m {
	case Mode1v1:
		return 2, true
	case ModeFFA3:
		return 3, true
	case Mode2v2:
		return 4, true
	}
	return 0, false
}

// Teamed reports whether the mode settles per team.
func (m Mode) Teamed() bool { return m == Mode2v2 }

// Status is the session state machine. settling never transitions back.
type Status string

const (
	StatusDealing      Status = "dealing"
	StatusAwaitingMove Status = "awaiting_move"
	StatusSettling     Status = "settling"
	StatusSettled      Status = "settled"
	StatusAborted      Status = "aborted"
)

// RosterEntry is one sealed lobby member handed to a new session.
type RosterEntry struct {
	UserID uuid.UUID
	Team   string // "A"/"B" for 2v2, empty otherwise
}

// Seat is one player's authoritative in-game state. The Hand is never
// exposed to other players except as a count.
type Seat struct {
	UserID     uuid.UUID
	Order      int
	Team       string
	Hand       []Card
	FinishRank int // 0 until the player empties their hand
	FinishedAt time.Time
}

func (s *Seat) finished() bool { return s.FinishRank > 0 }

// GameEventType enumerates the events the session publishes.
type GameEventType string

const (
	EventGameState      GameEventType = "game_state"
	EventPlayerTurn     GameEventType = "player_turn"
	EventPlayMade       GameEventType = "play_made"
	EventPlayerPassed   GameEventType = "player_passed"
	EventTrickWon       GameEventType = "trick_won"
	EventPlayerFinished GameEventType = "player_finished"
	EventGameSettled    GameEventType = "game_settled"
	EventGameAborted    GameEventType = "game_aborted"
)

// GameEvent is the broadcast payload for state-change notifications.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	UserID  string                 `json:"user_id,omitempty"`
	Cards   []string               `json:"cards,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *RedactedState         `json:"state,omitempty"`
}

type moveOutcome struct {
	err *errs.Error
}

// MurlanGame holds the entire state for one session. All mutation happens
// under Mu; concurrent requests are linearized by it.
type MurlanGame struct {
	ID       uuid.UUID
	LobbyID  uuid.UUID
	SeasonID *uuid.UUID
	Mode     Mode
	Stake    int64 // per-player stake in minor units

	Seats  []*Seat
	Status Status

	// Round state, mutated every accepted move.
	Current      int
	TurnID       int
	TurnDuration time.Duration
	Deadline     time.Time
	LastPlay     *Combination
	LastPlayer   int // seat index, -1 while the table is clear
	PassCount    int

	firstPlayDone bool
	nextRank      int
	turnTimer     *time.Timer

	// applied maps request ids to their recorded outcomes so replays are
	// no-ops returning the original result.
	applied map[string]moveOutcome

	// expiredSeat remembers the seat most recently advanced past by the
	// deadline auto-pass, so that seat's late request gets
	// DEADLINE_EXCEEDED instead of TURN_NOT_YOURS.
	expiredSeat int

	Ledger *ledger.Ledger

	BroadcastFn func(ev GameEvent)
	OnSettled   func(res SettlementResult)
	// RecordFn persists the settlement for audit/season recomputation.
	RecordFn func(res SettlementResult)
	// OnAborted fires after an abort refunded the stakes.
	OnAborted func(res SettlementResult, reason string)

	Mu  sync.Mutex
	log *logrus.Entry
}

// NewMurlanGame seats a sealed roster. The caller escrows stakes before the
// session exists; the session settles them on the way out.
func NewMurlanGame(lobbyID uuid.UUID, mode Mode, stake int64, seasonID *uuid.UUID, roster []RosterEntry, l *ledger.Ledger) *MurlanGame {
	g := &MurlanGame{
		ID:           uuid.New(),
		LobbyID:      lobbyID,
		SeasonID:     seasonID,
		Mode:         mode,
		Stake:        stake,
		Status:       StatusDealing,
		LastPlayer:   -1,
		TurnDuration: 20 * time.Second,
		applied:      make(map[string]moveOutcome),
		expiredSeat:  -1,
		nextRank:     1,
		Ledger:       l,
	}
	g.log = logrus.WithField("game_id", g.ID)
	for i, entry := range roster {
		g.Seats = append(g.Seats, &Seat{UserID: entry.UserID, Order: i, Team: entry.Team})
	}
	return g
}

// Deal shuffles a fresh deck, distributes it by seat order, gives the first
// turn to the holder of the opening card, and opens the move loop.
func (g *MurlanGame) Deal() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.Status != StatusDealing {
		return
	}

	deck := NewDeck()
	ShuffleDeck(deck)
	for i, c := range deck {
		seat := g.Seats[i%len(g.Seats)]
		seat.Hand = append(seat.Hand, c)
	}
	for _, s := range g.Seats {
		SortCards(s.Hand)
	}

	g.Current = 0
	for i, s := range g.Seats {
		if ContainsCard(s.Hand, OpeningCard) {
			g.Current = i
			break
		}
	}

	g.Status = StatusAwaitingMove
	g.log.WithFields(logrus.Fields{
		"mode":  g.Mode,
		"seats": len(g.Seats),
		"first": g.Seats[g.Current].UserID,
	}).Info("game dealt")
	g.beginTurn()
}

// PlayMove applies one card play for userID. requestID makes the operation
// idempotent: replaying it returns the recorded outcome without mutation.
func (g *MurlanGame) PlayMove(userID uuid.UUID, cards []Card, requestID string) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if requestID == "" {
		return errs.New(errs.MissingRequestID, "play requires a request id")
	}
	if prior, ok := g.applied[requestID]; ok {
		return asErr(prior.err)
	}

	outcome := g.playMoveLocked(userID, cards)
	g.applied[requestID] = moveOutcome{err: outcome}
	return asErr(outcome)
}

// PassTurn applies a voluntary pass, with the same turn/deadline checks and
// idempotency as PlayMove.
func (g *MurlanGame) PassTurn(userID uuid.UUID, requestID string) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if requestID == "" {
		return errs.New(errs.MissingRequestID, "pass requires a request id")
	}
	if prior, ok := g.applied[requestID]; ok {
		return asErr(prior.err)
	}

	outcome := g.passTurnLocked(userID)
	g.applied[requestID] = moveOutcome{err: outcome}
	return asErr(outcome)
}

func asErr(e *errs.Error) error {
	if e == nil {
		return nil
	}
	return e
}

// playMoveLocked validates and applies a play. Assumes lock is held.
func (g *MurlanGame) playMoveLocked(userID uuid.UUID, cards []Card) *errs.Error {
	if e := g.turnCheck(userID); e != nil {
		return e
	}
	if len(cards) == 0 {
		return errs.New(errs.EmptyPlay, "select at least one card")
	}

	seat := g.Seats[g.Current]
	if !ownsAll(seat.Hand, cards) {
		return errs.New(errs.CardNotOwned, "selection includes cards not in hand")
	}

	combo, err := Classify(cards)
	if err != nil {
		if ce, ok := err.(*errs.Error); ok {
			return ce
		}
		return errs.New(errs.InvalidCombination, err.Error())
	}

	if !g.firstPlayDone && !ContainsCard(cards, OpeningCard) {
		return errs.New(errs.FirstPlayMustHave3S, "the first play must include the 3 of spades")
	}

	if g.LastPlay != nil && !Beats(combo, *g.LastPlay) {
		return errs.New(errs.DoesNotBeatLast, "combination does not beat the last play")
	}

	// Accepted: mutate from here on out only.
	seat.Hand = removeCards(seat.Hand, cards)
	g.LastPlay = &combo
	g.LastPlayer = g.Current
	g.PassCount = 0
	g.firstPlayDone = true

	g.fireEvent(GameEvent{
		Type:   EventPlayMade,
		UserID: seat.UserID.String(),
		Cards:  CardCodes(cards),
		Payload: map[string]interface{}{
			"combo_type": string(combo.Type),
			"hand_count": len(seat.Hand),
			"turn":       g.TurnID,
		},
	})

	if len(seat.Hand) == 0 {
		g.finishSeat(g.Current)
		if g.activeCount() <= 1 {
			g.finishRemaining()
			g.beginSettlement()
			return nil
		}
	}

	g.advanceTurn()
	return nil
}

// passTurnLocked validates and applies a pass. Assumes lock is held.
func (g *MurlanGame) passTurnLocked(userID uuid.UUID) *errs.Error {
	if e := g.turnCheck(userID); e != nil {
		return e
	}
	g.applyPass()
	return nil
}

// applyPass advances the trick after a pass, voluntary or deadline-driven.
// Assumes lock is held.
func (g *MurlanGame) applyPass() {
	seat := g.Seats[g.Current]
	g.PassCount++
	g.fireEvent(GameEvent{
		Type:    EventPlayerPassed,
		UserID:  seat.UserID.String(),
		Payload: map[string]interface{}{"pass_count": g.PassCount, "turn": g.TurnID},
	})

	// The trick is won once everyone who could still beat the last play
	// has passed. If the trick winner has already emptied their hand, all
	// remaining active players must pass before the lead moves on.
	threshold := g.activeCount() - 1
	if g.LastPlayer >= 0 && g.Seats[g.LastPlayer].finished() {
		threshold++
	}
	if threshold < 1 {
		threshold = 1
	}
	if g.PassCount >= threshold {
		g.endTrick()
		return
	}
	g.advanceTurn()
}

// endTrick clears the table and hands the lead to the trick winner (or the
// next active seat after a finished winner). Assumes lock is held.
func (g *MurlanGame) endTrick() {
	winner := g.LastPlayer
	g.LastPlay = nil
	g.PassCount = 0
	if winner >= 0 {
		g.fireEvent(GameEvent{
			Type:   EventTrickWon,
			UserID: g.Seats[winner].UserID.String(),
		})
		if g.Seats[winner].finished() {
			g.Current = g.nextActive(winner)
		} else {
			g.Current = winner
		}
	} else {
		// Nobody played this trick at all; the next active seat leads.
		g.Current = g.nextActive(g.Current)
	}
	g.LastPlayer = -1
	g.beginTurn()
}

// turnCheck enforces session status, turn ownership and the deadline.
// Assumes lock is held.
func (g *MurlanGame) turnCheck(userID uuid.UUID) *errs.Error {
	if g.Status != StatusAwaitingMove {
		return errs.New(errs.GameNotActive, "game is not accepting moves")
	}
	idx := g.seatIndex(userID)
	if idx < 0 {
		return errs.New(errs.NotPlayerInGame, "user is not seated in this game")
	}
	if idx != g.Current {
		if idx == g.expiredSeat {
			return errs.New(errs.DeadlineExceeded, "turn deadline already elapsed")
		}
		return errs.New(errs.TurnNotYours, "not your turn")
	}
	if !g.Deadline.IsZero() && time.Now().After(g.Deadline) {
		// A late request loses to the pending auto-pass even if the timer
		// goroutine has not fired yet.
		return errs.New(errs.DeadlineExceeded, "turn deadline elapsed")
	}
	return nil
}

// advanceTurn moves to the next active seat and restarts the deadline.
// Assumes lock is held.
func (g *MurlanGame) advanceTurn() {
	g.Current = g.nextActive(g.Current)
	g.beginTurn()
}

// beginTurn starts a fresh turn for g.Current: new turn id, new deadline,
// new timer. Assumes lock is held.
func (g *MurlanGame) beginTurn() {
	g.TurnID++
	if g.expiredSeat == g.Current {
		g.expiredSeat = -1
	}
	if g.TurnDuration > 0 {
		g.Deadline = time.Now().Add(g.TurnDuration)
	} else {
		g.Deadline = time.Time{}
	}
	g.scheduleTurnTimer()
	g.fireEvent(GameEvent{
		Type:   EventPlayerTurn,
		UserID: g.Seats[g.Current].UserID.String(),
		Payload: map[string]interface{}{
			"turn":     g.TurnID,
			"deadline": g.Deadline.Format(time.RFC3339Nano),
		},
	})
}

// scheduleTurnTimer arms the auto-pass for the current turn. The callback
// re-checks the turn id under the lock so a stale timer can never fire
// against a newer turn. Assumes lock is held.
func (g *MurlanGame) scheduleTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
	}
	if g.TurnDuration <= 0 {
		return
	}
	turnID := g.TurnID
	g.turnTimer = time.AfterFunc(g.TurnDuration, func() {
		g.handleTurnTimeout(turnID)
	})
}

// handleTurnTimeout applies the implicit pass for an idle player. First
// valid event wins: if a legal move landed before the timer got the lock,
// the turn id check makes this a no-op.
func (g *MurlanGame) handleTurnTimeout(turnID int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.Status != StatusAwaitingMove || g.TurnID != turnID {
		return
	}
	seat := g.Seats[g.Current]
	g.log.WithFields(logrus.Fields{
		"user_id": seat.UserID,
		"turn":    turnID,
	}).Info("turn deadline elapsed, auto-passing")
	g.expiredSeat = g.Current
	g.applyPass()
}

// finishSeat records the next finish rank for a seat that just emptied its
// hand and removes it from the rotation. Assumes lock is held.
func (g *MurlanGame) finishSeat(idx int) {
	seat := g.Seats[idx]
	seat.FinishRank = g.nextRank
	seat.FinishedAt = time.Now().UTC()
	g.nextRank++
	g.log.WithFields(logrus.Fields{
		"user_id": seat.UserID,
		"rank":    seat.FinishRank,
	}).Info("player finished")
	g.fireEvent(GameEvent{
		Type:    EventPlayerFinished,
		UserID:  seat.UserID.String(),
		Payload: map[string]interface{}{"rank": seat.FinishRank},
	})
}

// finishRemaining assigns the trailing ranks by current standing (fewest
// cards first, seat order as tiebreak) once the game is decided. Assumes
// lock is held.
func (g *MurlanGame) finishRemaining() {
	for {
		best := -1
		for i, s := range g.Seats {
			if s.finished() {
				continue
			}
			if best == -1 || len(s.Hand) < len(g.Seats[best].Hand) {
				best = i
			}
		}
		if best == -1 {
			return
		}
		g.finishSeat(best)
	}
}

// Abort tears the session down mid-game: pending timers are cancelled so no
// stale auto-pass fires, and escrowed stakes are refunded idempotently.
func (g *MurlanGame) Abort(reason string) {
	g.Mu.Lock()
	if g.Status == StatusSettled || g.Status == StatusAborted || g.Status == StatusSettling {
		g.Mu.Unlock()
		return
	}
	g.Status = StatusAborted
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
	g.log.WithField("reason", reason).Warn("game aborted")

	if g.Ledger != nil && g.Stake > 0 {
		legs := make([]ledger.Leg, 0, len(g.Seats))
		for _, s := range g.Seats {
			legs = append(legs, ledger.Leg{UserID: s.UserID, Amount: g.Stake, Reason: ledger.ReasonStakeRefund})
		}
		if _, err := g.Ledger.ApplyGroup(context.Background(), legs, "refund:"+g.ID.String()); err != nil {
			g.log.WithError(err).Error("stake refund failed")
		}
	}
	g.fireEvent(GameEvent{Type: EventGameAborted, Payload: map[string]interface{}{"reason": reason}})
	onAborted := g.OnAborted
	res := SettlementResult{
		GameID:   g.ID,
		SeasonID: g.SeasonID,
		Mode:     g.Mode,
		Stake:    g.Stake,
		Pot:      g.Stake * int64(len(g.Seats)),
	}
	g.Mu.Unlock()

	if onAborted != nil {
		onAborted(res, reason)
	}
}

// fireEvent broadcasts to all observers. Assumes lock is held.
func (g *MurlanGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

// CurrentStatus reads the session status under the game lock.
func (g *MurlanGame) CurrentStatus() Status {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.Status
}

// HasSeat reports whether userID is one of the game's players.
func (g *MurlanGame) HasSeat(userID uuid.UUID) bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.seatIndex(userID) >= 0
}

func (g *MurlanGame) seatIndex(userID uuid.UUID) int {
	for i, s := range g.Seats {
		if s.UserID == userID {
			return i
		}
	}
	return -1
}

// activeCount counts seats still holding cards. Assumes lock is held.
func (g *MurlanGame) activeCount() int {
	n := 0
	for _, s := range g.Seats {
		if !s.finished() {
			n++
		}
	}
	return n
}

// nextActive returns the next unfinished seat after from, wrapping around.
// Assumes lock is held and at least one seat is active.
func (g *MurlanGame) nextActive(from int) int {
	idx := from
	for i := 0; i < len(g.Seats); i++ {
		idx = (idx + 1) % len(g.Seats)
		if !g.Seats[idx].finished() {
			return idx
		}
	}
	return from
}

func ownsAll(hand, cards []Card) bool {
	remaining := make([]Card, len(hand))
	copy(remaining, hand)
	for _, c := range cards {
		found := false
		for i, h := range remaining {
			if h == c {
				remaining[i] = remaining[len(remaining)-1]
				remaining = remaining[:len(remaining)-1]
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func removeCards(hand, cards []Card) []Card {
	out := make([]Card, 0, len(hand))
	out = append(out, hand...)
	for _, c := range cards {
		for i, h := range out {
			if h == c {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
	}
	return out
}

// String implements fmt.Stringer for debug logging.
func (g *MurlanGame) String() string {
	return fmt.Sprintf("game %s (%s, %d seats, %s)", g.ID, g.Mode, len(g.Seats), g.Status)
}

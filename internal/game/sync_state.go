// internal/game/sync_state.go
package game

import (
	"time"

	"github.com/google/uuid"
)

// RedactedSeat is one player's state from the perspective of a requesting
// user: hand contents only for the viewer, a bare count for everyone else.
type RedactedSeat struct {
	UserID        uuid.UUID `json:"user_id"`
	Seat          int       `json:"seat"`
	Team          string    `json:"team,omitempty"`
	HandCount     int       `json:"hand_count"`
	Hand          []string  `json:"hand,omitempty"` // viewer's own cards only
	FinishRank    int       `json:"finish_rank,omitempty"`
	IsCurrentTurn bool      `json:"is_current_turn"`
}

// RedactedState is the observable snapshot pushed to clients and returned
// by the poll fallback. It never contains another player's cards.
type RedactedState struct {
	GameID     uuid.UUID      `json:"game_id"`
	Mode       Mode           `json:"mode"`
	Stake      int64          `json:"stake"`
	Status     Status         `json:"status"`
	TurnID     int            `json:"turn"`
	CurrentID  uuid.UUID      `json:"current_user_id"`
	Deadline   string         `json:"deadline,omitempty"`
	LastCards  []string       `json:"last_play,omitempty"`
	LastType   string         `json:"last_play_type,omitempty"`
	LastUserID uuid.UUID      `json:"last_play_user_id,omitempty"`
	PassCount  int            `json:"pass_count"`
	Seats      []RedactedSeat `json:"seats"`
}

// RedactedStateFor builds the snapshot visible to forUser.
func (g *MurlanGame) RedactedStateFor(forUser uuid.UUID) RedactedState {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	st := RedactedState{
		GameID:    g.ID,
		Mode:      g.Mode,
		Stake:     g.Stake,
		Status:    g.Status,
		TurnID:    g.TurnID,
		PassCount: g.PassCount,
	}
	if g.Status == StatusAwaitingMove {
		st.CurrentID = g.Seats[g.Current].UserID
		if !g.Deadline.IsZero() {
			st.Deadline = g.Deadline.Format(time.RFC3339Nano)
		}
	}
	if g.LastPlay != nil {
		st.LastCards = CardCodes(g.LastPlay.Cards)
		st.LastType = string(g.LastPlay.Type)
		if g.LastPlayer >= 0 {
			st.LastUserID = g.Seats[g.LastPlayer].UserID
		}
	}
	for i, s := range g.Seats {
		rs := RedactedSeat{
			UserID:        s.UserID,
			Seat:          s.Order,
			Team:          s.Team,
			HandCount:     len(s.Hand),
			FinishRank:    s.FinishRank,
			IsCurrentTurn: g.Status == StatusAwaitingMove && i == g.Current,
		}
		if s.UserID == forUser {
			rs.Hand = CardCodes(s.Hand)
		}
		st.Seats = append(st.Seats, rs)
	}
	return st
}

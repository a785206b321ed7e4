// internal/game/settlement.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/endritv/murlan/internal/ledger"
)

// PlayerResult is one player's line in a settlement.
type PlayerResult struct {
	UserID uuid.UUID `json:"user_id"`
	Seat   int       `json:"seat"`
	Team   string    `json:"team,omitempty"`
	Rank   int       `json:"rank"`
	Points int       `json:"points"`
	Payout int64     `json:"payout"` // amount credited at settlement, 0 for losers
}

// SettlementResult is the terminal outcome of a game: final ranks, season
// points and the pot distribution. It is deterministic given the finish
// ranks, so retrying settlement is safe.
type SettlementResult struct {
	GameID    uuid.UUID      `json:"game_id"`
	SeasonID  *uuid.UUID     `json:"season_id,omitempty"`
	Mode      Mode           `json:"mode"`
	Stake     int64          `json:"stake"`
	Pot       int64          `json:"pot"`
	Teamed    bool           `json:"teamed"`
	Results   []PlayerResult `json:"results"`
	SettledAt time.Time      `json:"settled_at"`
}

// WinningTeam returns the team of the rank-1 finisher for teamed results.
func (r SettlementResult) WinningTeam() string {
	for _, p := range r.Results {
		if p.Rank == 1 {
			return p.Team
		}
	}
	return ""
}

// beginSettlement transitions to settling, cancels the turn timer and kicks
// off the (retried) ledger payout. Assumes lock is held.
func (g *MurlanGame) beginSettlement() {
	g.Status = StatusSettling
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
	res := g.computeSettlement()
	g.log.WithField("pot", res.Pot).Info("game settling")
	go g.settle(res)
}

// computeSettlement derives the payout and point distribution from the
// recorded finish ranks.
//
// Payout policy per mode:
//
//	1v1, ffa3  winner-take-pot: rank 1 receives capacity x stake
//	2v2        team pot: the rank-1 finisher's team splits the pot evenly
//
// Season points: individual modes award (seats - rank) per player; 2v2
// awards each member of the winning team 1 point (2 per team).
//
// Assumes lock is held.
func (g *MurlanGame) computeSettlement() SettlementResult {
	pot := g.Stake * int64(len(g.Seats))
	res := SettlementResult{
		GameID:   g.ID,
		SeasonID: g.SeasonID,
		Mode:     g.Mode,
		Stake:    g.Stake,
		Pot:      pot,
		Teamed:   g.Mode.Teamed(),
	}

	winningTeam := ""
	for _, s := range g.Seats {
		if s.FinishRank == 1 {
			winningTeam = s.Team
		}
	}

	for _, s := range g.Seats {
		pr := PlayerResult{
			UserID: s.UserID,
			Seat:   s.Order,
			Team:   s.Team,
			Rank:   s.FinishRank,
		}
		if g.Mode.Teamed() {
			if s.Team == winningTeam {
				pr.Payout = pot / 2
				pr.Points = 1
			}
		} else {
			pr.Points = len(g.Seats) - s.FinishRank
			if s.FinishRank == 1 {
				pr.Payout = pot
			}
		}
		res.Results = append(res.Results, pr)
	}
	return res
}

// settle pushes the pot through the ledger and finalizes the session. A
// ledger failure leaves the game in settling and retries with backoff;
// the settlement is deterministic and the group key makes each retry
// idempotent, so unsettled stakes are never a terminal state.
func (g *MurlanGame) settle(res SettlementResult) {
	backoff := time.Second
	for {
		err := g.paySettlement(res)
		if err == nil {
			break
		}
		g.log.WithError(err).WithField("retry_in", backoff).Error("settlement failed, retrying")
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
		g.Mu.Lock()
		aborted := g.Status == StatusAborted
		g.Mu.Unlock()
		if aborted {
			return
		}
	}

	g.Mu.Lock()
	if g.Status != StatusSettling {
		g.Mu.Unlock()
		return
	}
	g.Status = StatusSettled
	res.SettledAt = time.Now().UTC()
	onSettled := g.OnSettled
	recordFn := g.RecordFn
	g.fireEvent(GameEvent{
		Type:    EventGameSettled,
		Payload: map[string]interface{}{"results": res.Results, "pot": res.Pot},
	})
	g.log.Info("game settled")
	g.Mu.Unlock()

	if onSettled != nil {
		onSettled(res)
	}
	if recordFn != nil {
		recordFn(res)
	}
}

// paySettlement posts all payout legs as one idempotent group.
func (g *MurlanGame) paySettlement(res SettlementResult) error {
	if g.Ledger == nil || g.Stake <= 0 {
		return nil
	}
	var legs []ledger.Leg
	for _, pr := range res.Results {
		if pr.Payout > 0 {
			legs = append(legs, ledger.Leg{UserID: pr.UserID, Amount: pr.Payout, Reason: ledger.ReasonPotPayout})
		}
	}
	if len(legs) == 0 {
		return nil
	}
	_, err := g.Ledger.ApplyGroup(context.Background(), legs, "settle:"+g.ID.String())
	return err
}

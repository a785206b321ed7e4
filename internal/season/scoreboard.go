// internal/season/scoreboard.go
//
// The scoreboard accumulates season points from settled games and serves
// the standings for a season. It is fed by the game's settlement hook and
// rebuilt from persisted results on restart.
package season

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/game"
)

// DefaultTargetScore is the season-winning threshold when none is set.
const DefaultTargetScore = 21

// Standing is one competitor's row: a single user in individual modes, a
// team in 2v2. Teams are keyed by the sorted member ids so the same pair
// accumulates across games regardless of seat order.
type Standing struct {
	Key         string      `json:"key"`
	UserIDs     []uuid.UUID `json:"user_ids"`
	Team        bool        `json:"team"`
	Points      int         `json:"points"`
	GamesPlayed int         `json:"games_played"`
	Wins        int         `json:"wins"`
	LastGameAt  time.Time   `json:"last_game_at"`
}

// Reached reports whether this standing hit the target score.
func (s Standing) Reached(target int) bool { return s.Points >= target }

type seasonState struct {
	standings map[string]*Standing
	processed map[uuid.UUID]bool // game ids already recorded
}

// Scoreboard holds standings for every active season.
type Scoreboard struct {
	mu          sync.Mutex
	seasons     map[uuid.UUID]*seasonState
	TargetScore int
	log         *logrus.Entry
}

// NewScoreboard builds an empty scoreboard with the default target.
func NewScoreboard() *Scoreboard {
	return &Scoreboard{
		seasons:     make(map[uuid.UUID]*seasonState),
		TargetScore: DefaultTargetScore,
		log:         logrus.WithField("component", "season"),
	}
}

// PersistedStanding is one standings line restored from durable storage.
type PersistedStanding struct {
	Key         string
	Points      int
	GamesPlayed int
	Wins        int
}

// Restore folds persisted standings back in at cold start. Must run before
// the scoreboard receives live settlements. Team keys are the "+"-joined
// sorted member ids the scorekeeper writes.
func (sb *Scoreboard) Restore(seasonID uuid.UUID, rows []PersistedStanding) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	st, ok := sb.seasons[seasonID]
	if !ok {
		st = &seasonState{
			standings: make(map[string]*Standing),
			processed: make(map[uuid.UUID]bool),
		}
		sb.seasons[seasonID] = st
	}
	for _, r := range rows {
		parts := strings.Split(r.Key, "+")
		ids := make([]uuid.UUID, 0, len(parts))
		for _, p := range parts {
			id, err := uuid.Parse(p)
			if err != nil {
				ids = nil
				break
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			sb.log.WithField("competitor", r.Key).Warn("skipping unparsable standings row")
			continue
		}
		row := st.standing(r.Key, ids, len(ids) > 1)
		row.Points = r.Points
		row.GamesPlayed = r.GamesPlayed
		row.Wins = r.Wins
	}
	sb.log.WithFields(logrus.Fields{
		"season_id": seasonID,
		"rows":      len(rows),
	}).Info("season standings restored")
}

// Record folds one settlement into its season. Results without a season id
// and replays of an already-recorded game are ignored.
func (sb *Scoreboard) Record(res game.SettlementResult) {
	if res.SeasonID == nil {
		return
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()

	st, ok := sb.seasons[*res.SeasonID]
	if !ok {
		st = &seasonState{
			standings: make(map[string]*Standing),
			processed: make(map[uuid.UUID]bool),
		}
		sb.seasons[*res.SeasonID] = st
	}
	if st.processed[res.GameID] {
		return
	}
	st.processed[res.GameID] = true

	if res.Teamed {
		sb.recordTeams(st, res)
	} else {
		sb.recordPlayers(st, res)
	}
	sb.log.WithFields(logrus.Fields{
		"season_id": *res.SeasonID,
		"game_id":   res.GameID,
		"mode":      res.Mode,
	}).Info("season points recorded")
}

func (sb *Scoreboard) recordPlayers(st *seasonState, res game.SettlementResult) {
	for _, pr := range res.Results {
		row := st.standing(pr.UserID.String(), []uuid.UUID{pr.UserID}, false)
		row.Points += pr.Points
		row.GamesPlayed++
		if pr.Rank == 1 {
			row.Wins++
		}
		row.LastGameAt = res.SettledAt
	}
}

func (sb *Scoreboard) recordTeams(st *seasonState, res game.SettlementResult) {
	teams := make(map[string][]game.PlayerResult)
	for _, pr := range res.Results {
		teams[pr.Team] = append(teams[pr.Team], pr)
	}
	winning := res.WinningTeam()
	for name, members := range teams {
		ids := make([]uuid.UUID, 0, len(members))
		points := 0
		for _, m := range members {
			ids = append(ids, m.UserID)
			points += m.Points
		}
		row := st.standing(teamKey(ids), ids, true)
		row.Points += points
		row.GamesPlayed++
		if name == winning {
			row.Wins++
		}
		row.LastGameAt = res.SettledAt
	}
}

func (st *seasonState) standing(key string, ids []uuid.UUID, team bool) *Standing {
	row, ok := st.standings[key]
	if !ok {
		row = &Standing{Key: key, UserIDs: ids, Team: team}
		st.standings[key] = row
	}
	return row
}

// teamKey derives a stable identity for a pair of players.
func teamKey(ids []uuid.UUID) string {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, id.String())
	}
	sort.Strings(sorted)
	key := sorted[0]
	for _, s := range sorted[1:] {
		key += "+" + s
	}
	return key
}

// Standings returns the season's rows ordered by points descending, wins
// and then recency as tiebreaks.
func (sb *Scoreboard) Standings(seasonID uuid.UUID) []Standing {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	st, ok := sb.seasons[seasonID]
	if !ok {
		return nil
	}
	out := make([]Standing, 0, len(st.standings))
	for _, row := range st.standings {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].LastGameAt.Before(out[j].LastGameAt)
	})
	return out
}

// Leader returns the top standing and whether it reached the target score.
func (sb *Scoreboard) Leader(seasonID uuid.UUID) (Standing, bool) {
	rows := sb.Standings(seasonID)
	if len(rows) == 0 {
		return Standing{}, false
	}
	return rows[0], rows[0].Reached(sb.TargetScore)
}

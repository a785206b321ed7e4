// internal/handlers/season.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// SeasonHandler serves GET /season/{season_id}: the standings plus whether
// the leader has reached the target score.
func SeasonHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := strings.TrimPrefix(r.URL.Path, "/season/")
		if idx := strings.Index(idStr, "/"); idx != -1 {
			idStr = idStr[:idx]
		}
		seasonID, err := uuid.Parse(idStr)
		if err != nil {
			http.Error(w, "invalid season_id format", http.StatusBadRequest)
			return
		}

		standings := gs.Scoreboard.Standings(seasonID)
		leader, finished := gs.Scoreboard.Leader(seasonID)

		resp := map[string]interface{}{
			"season_id":    seasonID,
			"target_score": gs.Scoreboard.TargetScore,
			"standings":    standings,
			"finished":     finished,
		}
		if finished {
			resp["winner"] = leader
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

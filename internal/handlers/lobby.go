// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/endritv/murlan/internal/errs"
	"github.com/endritv/murlan/internal/game"
)

var validModes = map[game.Mode]bool{
	game.Mode1v1:  true,
	game.ModeFFA3: true,
	game.Mode2v2:  true,
}

type createLobbyRequest struct {
	Mode     string     `json:"mode"`
	Stake    int64      `json:"stake"`
	SeasonID *uuid.UUID `json:"season_id,omitempty"`
}

// CreateLobbyHandler opens a lobby for the requesting user, who becomes its
// host and takes the first seat.
func CreateLobbyHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := gs.EnsureUser(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad lobby request payload", http.StatusBadRequest)
			return
		}
		mode := game.Mode(req.Mode)
		if !validModes[mode] {
			http.Error(w, "invalid game mode", http.StatusBadRequest)
			return
		}

		lb, err := gs.Lobbies.Create(userID, mode, req.Stake, req.SeasonID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lb)
	}
}

type joinLobbyRequest struct {
	Code string `json:"code"`
}

// JoinLobbyHandler seats the requesting user by join code.
func JoinLobbyHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := gs.EnsureUser(w, r)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req joinLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "bad join request payload", http.StatusBadRequest)
			return
		}

		lb, err := gs.Lobbies.JoinByCode(userID, req.Code)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lb)
	}
}

type startLobbyRequest struct {
	LobbyID uuid.UUID `json:"lobby_id"`
}

// StartLobbyHandler seals the roster, escrows stakes and deals the game.
// Responds with the new game id; players then attach over /game/ws/{id}.
func StartLobbyHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req startLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LobbyID == uuid.Nil {
			http.Error(w, "bad start request payload", http.StatusBadRequest)
			return
		}

		g, err := gs.StartGameFromLobby(r.Context(), userID, req.LobbyID)
		if err != nil {
			// A retried start against a lobby this host already started is
			// answered with the original outcome, not an error.
			if errs.CodeOf(err) == errs.LobbyNotOpen {
				if lb, ok := gs.Lobbies.Get(req.LobbyID); ok && lb.HostID == userID {
					if existing := gs.Games.GetByLobbyID(req.LobbyID); existing != nil {
						g = existing
						err = nil
					}
				}
			}
			if err != nil {
				writeDomainError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"game_id": g.ID,
			"mode":    g.Mode,
			"stake":   g.Stake,
		})
	}
}

// ListLobbiesHandler returns every lobby still accepting players.
func ListLobbiesHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := requireUser(r); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, gs.Lobbies.ListOpen())
	}
}

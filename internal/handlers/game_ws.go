// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/errs"
	"github.com/endritv/murlan/internal/game"
	"github.com/endritv/murlan/internal/middleware"
)

// GameMessage is one incoming WebSocket frame during play.
type GameMessage struct {
	Type string `json:"type"`

	// Cards are the selected card codes for a play (e.g. ["7H","7S"]).
	Cards []string `json:"cards,omitempty"`

	// RequestID deduplicates retried plays and passes.
	RequestID string `json:"request_id,omitempty"`
}

// GameWSHandler upgrades the connection for one game, authenticates the
// viewer, pushes the redacted snapshot and then serves the move loop.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// URL shape: /game/ws/{game_id}
		gameIDStr := strings.TrimPrefix(r.URL.Path, "/game/ws/")
		if idx := strings.Index(gameIDStr, "/"); idx != -1 {
			gameIDStr = gameIDStr[:idx]
		}
		gameID, err := uuid.Parse(gameIDStr)
		if err != nil {
			http.Error(w, "invalid game_id format", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"murlan"},
			OriginPatterns: []string{"*"}, // tighten for production
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		// Rejections after the upgrade use the typed close codes so the
		// client can tell a bad token from a dead game id.
		if c.Subprotocol() != "murlan" {
			c.Close(BadSubprotocolError, "client must use the 'murlan' subprotocol")
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}
		g, ok := gs.Games.Get(gameID)
		if !ok {
			c.Close(InvalidGameIDError, "game not found")
			return
		}
		if !g.HasSeat(userID) {
			c.Close(websocket.StatusPolicyViolation, "you are not a player in this game")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		gs.registerConn(gameID, userID, c)
		defer gs.unregisterConn(gameID, userID, c)

		// Initial state sync; also serves reconnects.
		sendWsMessage(c, game.GameEvent{Type: game.EventGameState, State: stateRef(g.RedactedStateFor(userID))})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readGameMessages(ctx, c, g, userID, logger)

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

func stateRef(st game.RedactedState) *game.RedactedState { return &st }

// createBroadcastFunc builds the game's BroadcastFn: it fans the event out
// to every live socket for the game without holding the game lock during
// writes.
func (gs *GameServer) createBroadcastFunc(gameID uuid.UUID) func(ev game.GameEvent) {
	return func(ev game.GameEvent) {
		// Called while the game lock is held; snapshot and send async.
		conns := gs.liveConns(gameID)
		if len(conns) == 0 {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log := logrus.WithField("game_id", gameID)
			log.Errorf("failed to marshal broadcast event (%s): %v", ev.Type, err)
			return
		}
		go func() {
			for uid, c := range conns {
				writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := c.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logrus.Warnf("failed to write broadcast to player %s in game %s: %v", uid, gameID, err)
				}
			}
		}()
	}
}

// readGameMessages serves one client's move loop until the socket closes.
func readGameMessages(ctx context.Context, c *websocket.Conn, g *game.MurlanGame, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in game %s", userID, g.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s in game %s", userID, g.ID)
			} else {
				logger.Warnf("error reading from WebSocket for user %s in game %s: %v", userID, g.ID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWsError(c, errs.New(errs.InternalError, "invalid JSON frame"), "")
			continue
		}

		switch msg.Type {
		case "play":
			cards, err := game.ParseCards(msg.Cards)
			if err != nil {
				sendWsError(c, err, msg.RequestID)
				continue
			}
			if err := g.PlayMove(userID, cards, msg.RequestID); err != nil {
				sendWsError(c, err, msg.RequestID)
			}

		case "pass":
			if err := g.PassTurn(userID, msg.RequestID); err != nil {
				sendWsError(c, err, msg.RequestID)
			}

		case "state":
			// On-demand resync, e.g. after a reconnect.
			sendWsMessage(c, game.GameEvent{Type: game.EventGameState, State: stateRef(g.RedactedStateFor(userID))})

		case "ping":
			sendWsMessage(c, map[string]string{"type": "pong"})

		default:
			sendWsError(c, errs.New(errs.UnknownMessageType, "unknown message type: "+msg.Type), msg.RequestID)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// sendWsMessage marshals and writes one frame with a bounded write timeout.
func sendWsMessage(c *websocket.Conn, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("error marshaling WebSocket message: %v", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			logrus.Warnf("error writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured rejection carrying the domain code and the
// request id it answers, so clients can match it to the retried move.
func sendWsError(c *websocket.Conn, err error, requestID string) {
	sendWsMessage(c, map[string]interface{}{
		"type":       "error",
		"code":       string(errs.CodeOf(err)),
		"message":    err.Error(),
		"request_id": requestID,
	})
}

// internal/handlers/game_ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/game"
)

// wsFixture boots a real HTTP server around the game socket and starts a
// 1v1 session for two funded players.
func wsFixture(t *testing.T) (*GameServer, *game.MurlanGame, *httptest.Server, string) {
	t.Helper()
	gs := newTestServer()
	host, hostToken := fundedToken(t, gs, 5000)
	guest, _ := fundedToken(t, gs, 5000)

	lb, err := gs.Lobbies.Create(host, game.Mode1v1, 1000, nil)
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	if _, err := gs.Lobbies.JoinByCode(guest, lb.Code); err != nil {
		t.Fatalf("join lobby: %v", err)
	}
	g, err := gs.StartGameFromLobby(context.Background(), host, lb.ID)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/game/ws/", GameWSHandler(logrus.New(), gs))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return gs, g, ts, hostToken
}

func dialGame(t *testing.T, ts *httptest.Server, gameID uuid.UUID, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{Subprotocols: []string{"murlan"}}
	if token != "" {
		opts.HTTPHeader = http.Header{"Cookie": []string{"auth_token=" + token}}
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/ws/" + gameID.String()
	c, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return c
}

// readCloseStatus drains the socket until the server closes it and returns
// the close code.
func readCloseStatus(t *testing.T, c *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 {
				t.Fatalf("connection failed without a close frame: %v", err)
			}
			return status
		}
	}
}

func TestGameWSInitialStateForPlayer(t *testing.T) {
	_, g, ts, hostToken := wsFixture(t)
	c := dialGame(t, ts, g.ID, hostToken)
	defer c.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("reading initial state: %v", err)
	}
	var ev game.GameEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decoding initial state: %v", err)
	}
	if ev.Type != game.EventGameState {
		t.Fatalf("expected %s, got %s", game.EventGameState, ev.Type)
	}
	if ev.State == nil {
		t.Fatalf("initial event carries no state")
	}
}

func TestGameWSClosesWithTypedCodes(t *testing.T) {
	gs, g, ts, hostToken := wsFixture(t)

	// No token: the upgrade completes, then the server closes with the
	// auth-specific code.
	c := dialGame(t, ts, g.ID, "")
	if got := readCloseStatus(t, c); got != InvalidAuthTokenError {
		t.Fatalf("expected close %d for missing token, got %d", InvalidAuthTokenError, got)
	}

	// Valid token, unknown game id.
	c = dialGame(t, ts, uuid.New(), hostToken)
	if got := readCloseStatus(t, c); got != InvalidGameIDError {
		t.Fatalf("expected close %d for unknown game, got %d", InvalidGameIDError, got)
	}

	// Valid token for a user without a seat in this game.
	_, strangerToken := fundedToken(t, gs, 0)
	c = dialGame(t, ts, g.ID, strangerToken)
	if got := readCloseStatus(t, c); got != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation for non-player, got %d", got)
	}
}

// internal/handlers/game_server.go
package handlers

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/cache"
	"github.com/endritv/murlan/internal/database"
	"github.com/endritv/murlan/internal/game"
	"github.com/endritv/murlan/internal/ledger"
	"github.com/endritv/murlan/internal/lobby"
	"github.com/endritv/murlan/internal/season"
)

// GameServer wires the lobby store, the game store, the money ledger and
// the season scoreboard together, and owns the live WebSocket connections
// per game.
type GameServer struct {
	Lobbies    *lobby.Store
	Games      *game.Store
	Ledger     *ledger.Ledger
	Scoreboard *season.Scoreboard

	// Persist and Publish toggle the postgres/redis side effects so tests
	// run without either backend.
	Persist bool
	Publish bool

	connMu sync.Mutex
	conns  map[uuid.UUID]map[uuid.UUID]*websocket.Conn // gameID -> userID -> conn
}

func NewGameServer(l *ledger.Ledger) *GameServer {
	gs := &GameServer{
		Lobbies:    lobby.NewStore(l),
		Games:      game.NewStore(),
		Ledger:     l,
		Scoreboard: season.NewScoreboard(),
		conns:      make(map[uuid.UUID]map[uuid.UUID]*websocket.Conn),
	}
	if v, ok := envInt("SEASON_TARGET_SCORE"); ok && v > 0 {
		gs.Scoreboard.TargetScore = v
	}
	return gs
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// StartGameFromLobby seals the lobby, escrows the stakes, wires the new
// game's callbacks and deals the opening hands.
func (gs *GameServer) StartGameFromLobby(ctx context.Context, hostID, lobbyID uuid.UUID) (*game.MurlanGame, error) {
	g, err := gs.Lobbies.Start(ctx, hostID, lobbyID)
	if err != nil {
		return nil, err
	}

	if sec, ok := envInt("TURN_TIMER_SEC"); ok && sec > 0 {
		g.TurnDuration = time.Duration(sec) * time.Second
	}
	g.BroadcastFn = gs.createBroadcastFunc(g.ID)
	g.OnSettled = func(res game.SettlementResult) {
		gs.Scoreboard.Record(res)
		if gs.Publish {
			if err := cache.PublishSettlement(context.Background(), res); err != nil {
				log.Warnf("failed to publish settlement for game %s: %v", res.GameID, err)
			}
		}
		gs.dropGameConns(res.GameID)
	}
	if gs.Persist {
		g.RecordFn = func(res game.SettlementResult) {
			if err := database.RecordGameResult(context.Background(), res); err != nil {
				log.Errorf("failed to record game result for %s: %v", res.GameID, err)
			}
		}
	}
	g.OnAborted = func(res game.SettlementResult, reason string) {
		if gs.Persist {
			if err := database.MarkGameAborted(context.Background(), res, reason); err != nil {
				log.Errorf("failed to record abort for game %s: %v", res.GameID, err)
			}
		}
		gs.dropGameConns(res.GameID)
	}

	gs.Games.Add(g)
	g.Deal()
	return g, nil
}

// AbortActiveGames tears down every live session, refunding escrowed
// stakes. Used on shutdown, where in-memory sessions cannot survive.
func (gs *GameServer) AbortActiveGames(reason string) {
	for _, g := range gs.Games.Active() {
		g.Abort(reason)
	}
}

// registerConn attaches a user's live socket to a game. An older socket for
// the same user is superseded; the new one receives all further events.
func (gs *GameServer) registerConn(gameID, userID uuid.UUID, c *websocket.Conn) {
	gs.connMu.Lock()
	defer gs.connMu.Unlock()
	m, ok := gs.conns[gameID]
	if !ok {
		m = make(map[uuid.UUID]*websocket.Conn)
		gs.conns[gameID] = m
	}
	m[userID] = c
}

// unregisterConn detaches a socket, but only if it is still the user's
// current one.
func (gs *GameServer) unregisterConn(gameID, userID uuid.UUID, c *websocket.Conn) {
	gs.connMu.Lock()
	defer gs.connMu.Unlock()
	if m, ok := gs.conns[gameID]; ok && m[userID] == c {
		delete(m, userID)
		if len(m) == 0 {
			delete(gs.conns, gameID)
		}
	}
}

func (gs *GameServer) dropGameConns(gameID uuid.UUID) {
	gs.connMu.Lock()
	defer gs.connMu.Unlock()
	delete(gs.conns, gameID)
}

// liveConns snapshots the current sockets for a game.
func (gs *GameServer) liveConns(gameID uuid.UUID) map[uuid.UUID]*websocket.Conn {
	gs.connMu.Lock()
	defer gs.connMu.Unlock()
	out := make(map[uuid.UUID]*websocket.Conn, len(gs.conns[gameID]))
	for uid, c := range gs.conns[gameID] {
		out[uid] = c
	}
	return out
}

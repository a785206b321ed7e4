// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/endritv/murlan/internal/auth"
	"github.com/endritv/murlan/internal/cache"
	"github.com/endritv/murlan/internal/database"
	"github.com/endritv/murlan/internal/handlers"
	"github.com/endritv/murlan/internal/ledger"
	"github.com/endritv/murlan/internal/middleware"
	"github.com/endritv/murlan/internal/season"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	persist := os.Getenv("DISABLE_POSTGRES") == ""
	var wallet *ledger.Ledger
	if persist {
		database.ConnectDB()
		wallet = ledger.New(database.PgRecorder{})

		// Rebuild wallet state from the durable entry log.
		entries, err := database.LoadLedgerEntries(context.Background())
		if err != nil {
			log.Fatalf("failed to load ledger entries: %v", err)
		}
		wallet.Restore(entries)
		logger.Infof("ledger restored with %d entries", len(entries))
	} else {
		wallet = ledger.New(nil)
	}

	srv := handlers.NewGameServer(wallet)
	srv.Persist = persist

	if persist {
		// Rebuild season standings the scorekeeper persisted before the
		// last shutdown, mirroring the wallet restore above.
		standings, err := database.LoadSeasonStandings(context.Background())
		if err != nil {
			log.Fatalf("failed to load season standings: %v", err)
		}
		for seasonID, rows := range standings {
			restored := make([]season.PersistedStanding, 0, len(rows))
			for _, row := range rows {
				restored = append(restored, season.PersistedStanding{
					Key:         row.Competitor,
					Points:      row.Points,
					GamesPlayed: row.GamesPlayed,
					Wins:        row.Wins,
				})
			}
			srv.Scoreboard.Restore(seasonID, restored)
		}
	}

	if os.Getenv("DISABLE_REDIS") == "" {
		if err := cache.ConnectRedis(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		srv.Publish = true
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(middleware.LogMiddleware(logger))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: func() []string {
			if os.Getenv("MURLAN_ENV") == "production" {
				return strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",")
			}
			return []string{"https://*", "http://*"}
		}(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// user endpoints
	r.Post("/user/create", handlers.CreateUserHandler(srv))
	r.Post("/user/login", handlers.LoginHandler(srv))
	r.Get("/user/balance", handlers.BalanceHandler(srv))

	// lobby endpoints
	r.Post("/lobby/create", handlers.CreateLobbyHandler(srv))
	r.Post("/lobby/join", handlers.JoinLobbyHandler(srv))
	r.Post("/lobby/start", handlers.StartLobbyHandler(srv))
	r.Get("/lobby/list", handlers.ListLobbiesHandler(srv))

	// season standings
	r.Get("/season/{seasonID}", handlers.SeasonHandler(srv))

	// game websocket
	r.Get("/game/ws/{gameID}", handlers.GameWSHandler(logger, srv))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	httpSrv := &http.Server{Addr: addr, Handler: r}
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		// Sessions live in memory only; refund escrowed stakes before
		// the process dies rather than stranding them.
		srv.AbortActiveGames("server shutdown")
		httpSrv.Shutdown(context.Background())
	}()

	logger.Infof("Running on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exited: %v", err)
	}
}

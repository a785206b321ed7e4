// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB is the process-wide pool. ConnectDB must run before any query helper.
var DB *pgxpool.Pool

// ConnectDB opens the pool from the environment and verifies the
// connection. Startup cannot proceed without a reachable database.
func ConnectDB() {
	host := getEnv("PG_HOST", "localhost")
	port := getEnv("PG_PORT", "5432")
	name := getEnv("PG_DATABASE", "murlan")
	user := getEnv("POSTGRES_USER", "postgres")
	pass := os.Getenv("POSTGRES_PASSWORD")

	cfg, err := pgxpool.ParseConfig(fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s", user, pass, host, port, name,
	))
	if err != nil {
		logrus.Fatalf("bad postgres config: %v", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("failed to create postgres pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		logrus.Fatalf("postgres ping failed: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"host":     host,
		"port":     port,
		"database": name,
	}).Info("postgres connected")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

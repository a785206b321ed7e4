// cmd/scorekeeper/main.go is an asynchronous service that pops settlement
// records from a Redis queue and persists game results and season points to
// PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/endritv/murlan/internal/cache"
	"github.com/endritv/murlan/internal/database"
	"github.com/endritv/murlan/internal/game"
)

// ScorekeeperService drains the settlement queue into postgres in small
// batches. Settlement writes are idempotent upserts, so a crash between pop
// and flush at worst re-processes a record.
type ScorekeeperService struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.SettlementRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewScorekeeperService constructs the service from environment variables or defaults.
func NewScorekeeperService() *ScorekeeperService {
	batchSize := getEnvInt("SCOREKEEPER_BATCH_SIZE", 20)
	flushMs := getEnvInt("SCOREKEEPER_FLUSH_MS", 500)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &ScorekeeperService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.SettlementRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and serves the queue until Stop.
func (sk *ScorekeeperService) Run() {
	database.ConnectDB()

	go sk.readRedisLoop()

	log.Println("murlan-scorekeeper service started.")
	<-sk.ctx.Done()
	sk.flushBatch()
	log.Println("murlan-scorekeeper shutting down.")
}

// readRedisLoop blocks on the queue and accumulates records, flushing on
// size or on the timer.
func (sk *ScorekeeperService) readRedisLoop() {
	ticker := time.NewTicker(sk.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("SCOREKEEPER_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-sk.ctx.Done():
			return

		case <-ticker.C:
			sk.flushBatch()

		default:
			// BLPop with a short timeout so cancellation is honored.
			res, err := sk.redisClient.BLPop(sk.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if sk.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record cache.SettlementRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid settlement record: %v\n", err)
				continue
			}
			sk.appendToBatch(record)
		}
	}
}

func (sk *ScorekeeperService) appendToBatch(record cache.SettlementRecord) {
	sk.batchMu.Lock()
	defer sk.batchMu.Unlock()

	sk.batch = append(sk.batch, record)
	if len(sk.batch) >= sk.batchSize {
		sk.flushLocked()
	}
}

func (sk *ScorekeeperService) flushBatch() {
	sk.batchMu.Lock()
	defer sk.batchMu.Unlock()
	sk.flushLocked()
}

// flushLocked persists the pending records. Assumes batchMu is held.
func (sk *ScorekeeperService) flushLocked() {
	if len(sk.batch) == 0 {
		return
	}
	pending := sk.batch
	sk.batch = make([]cache.SettlementRecord, 0, sk.batchSize)

	ctx := context.Background()
	flushed := 0
	for _, rec := range pending {
		if err := persistSettlement(ctx, rec.Settlement); err != nil {
			log.Printf("[ERROR] persist settlement %v: %v\n", rec.Settlement.GameID, err)
			continue
		}
		flushed++
	}
	log.Printf("Flushed %d settlements to DB.\n", flushed)
}

// persistSettlement writes the game result and folds the season points.
func persistSettlement(ctx context.Context, res game.SettlementResult) error {
	if err := database.RecordGameResult(ctx, res); err != nil {
		return err
	}
	if res.SeasonID == nil {
		return nil
	}

	if res.Teamed {
		winning := res.WinningTeam()
		teams := make(map[string][]string)
		points := make(map[string]int)
		for _, pr := range res.Results {
			teams[pr.Team] = append(teams[pr.Team], pr.UserID.String())
			points[pr.Team] += pr.Points
		}
		for name, members := range teams {
			sort.Strings(members)
			key := members[0]
			for _, m := range members[1:] {
				key += "+" + m
			}
			wins := 0
			if name == winning {
				wins = 1
			}
			if err := database.UpsertSeasonPoints(ctx, *res.SeasonID, key, points[name], wins); err != nil {
				return err
			}
		}
		return nil
	}

	for _, pr := range res.Results {
		wins := 0
		if pr.Rank == 1 {
			wins = 1
		}
		if err := database.UpsertSeasonPoints(ctx, *res.SeasonID, pr.UserID.String(), pr.Points, wins); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully stops the service.
func (sk *ScorekeeperService) Stop() {
	sk.cancelFn()
}

func main() {
	sk := NewScorekeeperService()
	go sk.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	sk.Stop()
	log.Println("Scorekeeper shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

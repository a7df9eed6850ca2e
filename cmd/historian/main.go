// cmd/historian/main.go is an asynchronous historian service that pops game
// result records from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sketchdash/sketchdash/internal/config"
	"github.com/sketchdash/sketchdash/internal/database"
	"github.com/sketchdash/sketchdash/internal/history"
)

// HistorianService encapsulates the Redis + DB logic for capturing game
// results and marking sessions abandoned when result traffic stops without a
// terminal record.
type HistorianService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration
	lastActivity sync.Map // map[uuid.UUID]time.Time per session

	batchMu  sync.Mutex
	batch    []history.ResultRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := config.GetEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := config.GetEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := config.GetEnvInt("SESSION_INACTIVITY_TIMEOUT_SEC", 600)

	rdb := redis.NewClient(&redis.Options{
		Addr: config.GetEnv("REDIS_ADDR", "localhost:6379"),
		DB:   config.GetEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]history.ResultRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and starts the drain and inactivity loops.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("sketchdash-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatchToDB()
	log.Println("sketchdash-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve records from the Redis
// queue, accumulating them in a batch that flushes on size or on a timer.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := config.GetEnv("HISTORIAN_QUEUE_NAME", history.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is noticed.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if hs.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record history.ResultRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid result record: %v\n", err)
				continue
			}

			hs.lastActivity.Store(record.SessionID, time.Now())
			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the
// threshold is reached.
func (hs *HistorianService) appendToBatch(record history.ResultRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchToDBLocked()
	}
}

// flushBatchToDB flushes the current batch to the database in a single
// transaction.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchToDBLocked()
}

func (hs *HistorianService) flushBatchToDBLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]history.ResultRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertResultTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertResultTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d result records to DB.\n", len(batchCopy))
	}
}

// inactivityLoop periodically marks sessions abandoned when no record has
// arrived for them within the configured threshold.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				sessionID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.markSessionAbandoned(sessionID)
					hs.lastActivity.Delete(sessionID)
				}
				return true
			})
		}
	}
}

// markSessionAbandoned finalizes a session that stopped emitting records
// without a game_end.
func (hs *HistorianService) markSessionAbandoned(sessionID uuid.UUID) {
	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE game_sessions
			SET status = 'abandoned', ended_at = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		_, e := tx.Exec(ctx, q, sessionID)
		return e
	})
	if err != nil {
		log.Printf("failed to mark session %v abandoned: %v", sessionID, err)
	} else {
		log.Printf("Marked session %v as 'abandoned' due to inactivity.", sessionID)
	}
}

// insertResultTx inserts one result record, upserting the session row and
// finalizing it on a terminal game_end record.
func insertResultTx(ctx context.Context, tx pgx.Tx, rec history.ResultRecord) error {
	upsertSessionQ := `
		INSERT INTO game_sessions (id, status, started_at)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertSessionQ, rec.SessionID); err != nil {
		return err
	}

	eventInsertQ := `
		INSERT INTO session_events (session_id, kind, payload, recorded_at)
		VALUES ($1, $2, $3, to_timestamp($4))
	`
	jsonPayload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, eventInsertQ, rec.SessionID, rec.Kind, jsonPayload, rec.Timestamp); err != nil {
		return err
	}

	if rec.Kind == "game_end" {
		finalizeQ := `
			UPDATE game_sessions
			SET status = 'completed', ended_at = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// beginTxFunc starts a transaction on the pool, calls f with it, and commits
// or rolls back as needed.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}

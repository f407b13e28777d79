package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/config"
	"github.com/falachabt/bacblanc-sub000/internal/metrics"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
)

// maxBatchSize caps how many snapshots a single UPDATE flushes.
const maxBatchSize = 100

// SnapshotWorker consumes persist_snapshots_queue and flushes progress
// snapshots to PostgreSQL in batches. Snapshots are full-state overwrites,
// so replaying one out of order only costs a slightly stale saved_at.
type SnapshotWorker struct {
	attempts *repository.AttemptRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSnapshotWorker creates a new SnapshotWorker.
func NewSnapshotWorker(attempts *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *SnapshotWorker {
	return &SnapshotWorker{
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "snapshot_worker").Logger(),
	}
}

type snapshotJob struct {
	UserID   int             `json:"user_id"`
	ExamID   string          `json:"exam_id"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch blocks for the first item, then opportunistically pops more
// up to the batch cap and flushes them in one round trip.
func (w *SnapshotWorker) processBatch(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistSnapshotsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	batch := []string{result[1]}
	for len(batch) < maxBatchSize {
		item, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSnapshotsQueue).Result()
		if err != nil {
			break
		}
		batch = append(batch, item)
	}

	if err := w.flush(ctx, batch); err != nil {
		w.log.Error().Err(err).Int("batch", len(batch)).Msg("Flush error, retrying in 5s")
		// Push back to queue for retry.
		for _, item := range batch {
			w.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, item)
		}
		time.Sleep(5 * time.Second)
	}
}

// flush decodes a batch and writes it with a single UNNEST update. When the
// same attempt appears more than once, the later snapshot wins.
func (w *SnapshotWorker) flush(ctx context.Context, batch []string) error {
	type pairKey struct {
		userID int
		examID uuid.UUID
	}
	latest := make(map[pairKey][]byte, len(batch))
	var order []pairKey

	for _, item := range batch {
		var job snapshotJob
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			w.log.Error().Err(err).Msg("Unmarshal error, dropping item")
			continue
		}
		examID, err := uuid.Parse(job.ExamID)
		if err != nil {
			w.log.Error().Err(err).Str("exam_id", job.ExamID).Msg("Bad exam id, dropping item")
			continue
		}
		key := pairKey{userID: job.UserID, examID: examID}
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = job.Snapshot
	}

	if len(order) == 0 {
		return nil
	}

	userIDs := make([]int, 0, len(order))
	examIDs := make([]uuid.UUID, 0, len(order))
	snapshots := make([][]byte, 0, len(order))
	for _, key := range order {
		userIDs = append(userIDs, key.userID)
		examIDs = append(examIDs, key.examID)
		snapshots = append(snapshots, latest[key])
	}

	if err := w.attempts.BulkSaveProgress(ctx, userIDs, examIDs, snapshots); err != nil {
		return err
	}
	metrics.SnapshotWrites.WithLabelValues("flushed").Add(float64(len(order)))
	return nil
}

// drain flushes all remaining items in the queue before shutdown.
func (w *SnapshotWorker) drain(ctx context.Context) {
	drained := 0
	for {
		var batch []string
		for len(batch) < maxBatchSize {
			item, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSnapshotsQueue).Result()
			if err != nil {
				break
			}
			batch = append(batch, item)
		}
		if len(batch) == 0 {
			break
		}

		if err := w.flush(ctx, batch); err != nil {
			w.log.Error().Err(err).Msg("Drain flush error")
			for _, item := range batch {
				w.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, item)
			}
			break
		}
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/config"
	"github.com/falachabt/bacblanc-sub000/internal/metrics"
	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/repository"
	"github.com/falachabt/bacblanc-sub000/internal/timeutil"
)

// snapshotTTL bounds how long an orphaned Redis snapshot can outlive its
// attempt.
const snapshotTTL = 24 * time.Hour

// AttemptGateway is the persistence backend for exam sessions. Progress
// writes go to Redis first (snapshot key plus a persist queue consumed by
// the snapshot worker); PostgreSQL holds the durable attempt row. Reads
// overlay the freshest of the two.
type AttemptGateway struct {
	attempts *repository.AttemptRepository
	exams    *repository.ExamRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAttemptGateway creates a new AttemptGateway.
func NewAttemptGateway(attempts *repository.AttemptRepository, exams *repository.ExamRepository, rdb *redis.Client, log zerolog.Logger) *AttemptGateway {
	return &AttemptGateway{
		attempts: attempts,
		exams:    exams,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_gateway").Logger(),
	}
}

// snapshotJob is the persist queue payload. The snapshot worker decodes the
// same shape.
type snapshotJob struct {
	UserID   int             `json:"user_id"`
	ExamID   string          `json:"exam_id"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// FindIncompleteAttempt loads the open attempt for the pair and overlays the
// Redis snapshot when it is newer than the stored row.
func (g *AttemptGateway) FindIncompleteAttempt(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	attempt, err := g.attempts.FindIncomplete(ctx, userID, examID)
	if err != nil || attempt == nil {
		return attempt, err
	}

	raw, err := g.rdb.Get(ctx, config.CacheKey.AttemptSnapshotKey(userID, examID.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.log.Warn().Err(err).Int("user_id", userID).Str("exam_id", examID.String()).
				Msg("Snapshot read failed, using database row")
		}
		return attempt, nil
	}

	var p model.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		g.log.Warn().Err(err).Msg("Corrupt snapshot, using database row")
		return attempt, nil
	}

	if p.SavedAt.After(attempt.SavedAt) {
		attempt.Answers = p.Answers
		attempt.Flags = p.Flags
		attempt.CurrentIndex = p.CurrentIndex
		attempt.TimeLeft = p.TimeLeft
		attempt.SavedAt = p.SavedAt
	}
	return attempt, nil
}

// CreateAttempt opens a new attempt row, seeding the timer from the exam's
// configured duration.
func (g *AttemptGateway) CreateAttempt(ctx context.Context, userID int, examID uuid.UUID, questionOrder []string) (*model.Attempt, error) {
	exam, err := g.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	return g.attempts.Create(ctx, userID, examID, questionOrder, timeutil.ParseDuration(exam.Duration))
}

// SaveProgress writes the snapshot to Redis and enqueues it for asynchronous
// flushing to PostgreSQL. If Redis is unavailable the write goes straight to
// the database so no progress is lost.
func (g *AttemptGateway) SaveProgress(ctx context.Context, userID int, examID uuid.UUID, progress model.Progress) error {
	snapshot, err := json.Marshal(progress)
	if err != nil {
		return err
	}

	key := config.CacheKey.AttemptSnapshotKey(userID, examID.String())
	pipe := g.rdb.Pipeline()
	pipe.Set(ctx, key, snapshot, snapshotTTL)
	job, _ := json.Marshal(snapshotJob{UserID: userID, ExamID: examID.String(), Snapshot: snapshot})
	pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, job)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.SnapshotWrites.WithLabelValues("redis_error").Inc()
		g.log.Warn().Err(err).Int("user_id", userID).Str("exam_id", examID.String()).
			Msg("Snapshot enqueue failed, writing to database directly")
		if dbErr := g.attempts.SaveProgress(ctx, userID, examID, progress); dbErr != nil {
			metrics.SnapshotWrites.WithLabelValues("error").Inc()
			return dbErr
		}
		metrics.SnapshotWrites.WithLabelValues("db_fallback").Inc()
		return nil
	}

	metrics.SnapshotWrites.WithLabelValues("queued").Inc()
	return nil
}

// CompleteAttempt finalizes the attempt synchronously and discards the Redis
// snapshot. Completion must not sit in a queue: the row is the source of
// truth for ATTEMPT_COMPLETED checks.
func (g *AttemptGateway) CompleteAttempt(ctx context.Context, userID int, examID uuid.UUID, result model.Result, answers model.AnswerMap) error {
	if err := g.attempts.Complete(ctx, userID, examID, result, answers); err != nil {
		return err
	}
	if err := g.rdb.Del(ctx, config.CacheKey.AttemptSnapshotKey(userID, examID.String())).Err(); err != nil {
		g.log.Warn().Err(err).Msg("Snapshot cleanup failed")
	}
	return nil
}

// FindCompletedResult returns the stored result for the pair, or (nil, nil)
// when no completed attempt exists.
func (g *AttemptGateway) FindCompletedResult(ctx context.Context, userID int, examID uuid.UUID) (*model.Result, error) {
	attempt, err := g.attempts.FindCompleted(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if attempt == nil || attempt.Result == nil {
		return nil, nil
	}
	return attempt.Result, nil
}

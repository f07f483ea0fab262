package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/config"
)

const (
	TimeCheckpointBatchSize    = 50
	TimeCheckpointBatchTimeout = 2 * time.Second
	TimeCheckpointPollTimeout  = 1 * time.Second
)

// TimeCheckpointWorker batch-persists countdown checkpoints from the
// WebSocket tick path. The LEAST guard in the UPDATE keeps the stored value
// monotonically decreasing even when checkpoints land out of order.
type TimeCheckpointWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewTimeCheckpointWorker creates a new TimeCheckpointWorker.
func NewTimeCheckpointWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *TimeCheckpointWorker {
	return &TimeCheckpointWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "time_checkpoint_worker").Logger(),
	}
}

type timeCheckpointPayload struct {
	SectionAttemptID string `json:"section_attempt_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

func (w *TimeCheckpointWorker) Start(ctx context.Context) {
	w.log.Info().Msg("TimeCheckpointWorker started")

	batch := make([]*timeCheckpointPayload, 0, TimeCheckpointBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= TimeCheckpointBatchSize || time.Since(lastFlush) >= TimeCheckpointBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, TimeCheckpointPollTimeout, config.WorkerKey.TimeCheckpointQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p timeCheckpointPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *TimeCheckpointWorker) flushSafe(ctx context.Context, batch []*timeCheckpointPayload) {
	if len(batch) == 0 {
		return
	}

	// Keep only the lowest checkpoint per section attempt: later entries in
	// the queue can carry stale (higher) values after a reconnect.
	lowest := make(map[string]*timeCheckpointPayload, len(batch))
	for _, p := range batch {
		if cur, ok := lowest[p.SectionAttemptID]; !ok || p.RemainingSeconds < cur.RemainingSeconds {
			lowest[p.SectionAttemptID] = p
		}
	}
	deduped := make([]*timeCheckpointPayload, 0, len(lowest))
	for _, p := range lowest {
		deduped = append(deduped, p)
	}

	if err := w.bulkUpdate(ctx, deduped); err != nil {
		w.log.Warn().Err(err).Msg("bulk checkpoint update failed, using fallback")

		for _, p := range deduped {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.TimeCheckpointQueue, raw)
			}
		}
	}
}

func (w *TimeCheckpointWorker) bulkUpdate(ctx context.Context, batch []*timeCheckpointPayload) error {
	n := len(batch)

	ids := make([]uuid.UUID, 0, n)
	seconds := make([]int, 0, n)

	for _, p := range batch {
		id, err := uuid.Parse(p.SectionAttemptID)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		seconds = append(seconds, p.RemainingSeconds)
	}

	query := `
		UPDATE section_attempts AS sa
		SET remaining_seconds = LEAST(sa.remaining_seconds, t.secs)
		FROM (
			SELECT
				u.id,
				u.secs
			FROM UNNEST(
				$1::uuid[],
				$2::int[]
			) AS u (id, secs)
		) AS t
		WHERE sa.id = t.id
		  AND sa.started_at IS NOT NULL
		  AND sa.completed_at IS NULL
	`

	_, err := w.pool.Exec(ctx, query, ids, seconds)
	return err
}

func (w *TimeCheckpointWorker) persistSingle(ctx context.Context, p *timeCheckpointPayload) error {
	id, err := uuid.Parse(p.SectionAttemptID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE section_attempts
		 SET remaining_seconds = LEAST(remaining_seconds, $1)
		 WHERE id = $2 AND started_at IS NOT NULL AND completed_at IS NULL`,
		p.RemainingSeconds, id,
	)

	return err
}

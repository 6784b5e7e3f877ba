package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo-backend/internal/config"
	"github.com/vigilo/vigilo-backend/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker drains graded outcomes into PostgreSQL in batches.
// Grading already happened in RAM at submission time; this worker just
// settles the attempt rows.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ResultEvent, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var e model.ResultEvent
			if err := json.Unmarshal([]byte(item[1]), &e); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, &e)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ResultEvent) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkSettle(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk settle failed, using fallback")

		for _, e := range batch {
			if err := w.settleSingle(ctx, e); err != nil {
				w.log.Error().Err(err).Msg("settleSingle failed, requeueing")
				raw, _ := json.Marshal(e)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
	}
}

// bulkSettle updates all attempt rows in one statement via UNNEST. The
// status guard keeps redelivered events from overwriting a settled row.
func (w *ResultWorker) bulkSettle(ctx context.Context, batch []*model.ResultEvent) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	scores := make([]float64, 0, n)
	statuses := make([]string, 0, n)
	counts := make([]int, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, e := range batch {
		eID, err := uuid.Parse(e.ExamID)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, eID)
		students = append(students, e.StudentID)
		scores = append(scores, e.Score)
		statuses = append(statuses, e.Status)
		counts = append(counts, e.MalpracticeCount)
		finishedAts = append(finishedAts, time.Unix(e.FinishedAt, 0))
	}

	query := `
		UPDATE attempts AS a
		SET status = t.status,
		    score = t.score,
		    malpractice_count = t.malpractice_count,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.exam_id,
				u.student_id,
				u.score,
				u.status,
				u.malpractice_count,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::float8[],
				$4::text[],
				$5::int[],
				$6::timestamptz[]
			) AS u (exam_id, student_id, score, status, malpractice_count, finished_at)
		) AS t
		WHERE a.exam_id = t.exam_id
		  AND a.student_id = t.student_id
		  AND a.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, examIDs, students, scores, statuses, counts, finishedAts)
	return err
}

func (w *ResultWorker) settleSingle(ctx context.Context, e *model.ResultEvent) error {
	eID, err := uuid.Parse(e.ExamID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, malpractice_count = $3, finished_at = $4
		 WHERE exam_id = $5 AND student_id = $6 AND status = 'IN_PROGRESS'`,
		e.Status, e.Score, e.MalpracticeCount, time.Unix(e.FinishedAt, 0), eID, e.StudentID,
	)
	return err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilo/vigilo-backend/internal/model"
)

// AttemptResult combines student identity with their attempt outcome for
// the admin results view.
type AttemptResult struct {
	StudentID        int                 `json:"student_id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	Score            *float64            `json:"score"`
	Status           model.AttemptStatus `json:"status"`
	MalpracticeCount int                 `json:"malpractice_count"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       *time.Time          `json:"finished_at"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByExamAndStudent retrieves a student's attempt at one exam.
// pgx.ErrNoRows means the student never started it.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, started_at, finished_at, status, score, malpractice_count
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.Score, &a.MalpracticeCount)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new IN_PROGRESS attempt. ON CONFLICT DO NOTHING
// yields pgx.ErrNoRows on a concurrent duplicate start; callers then
// re-fetch the winner.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// Complete settles an attempt with its final score and status. Only an
// IN_PROGRESS attempt can settle; a second settle is a silent no-op,
// which keeps the queue worker idempotent under redelivery.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uuid.UUID, score float64, status model.AttemptStatus, malpracticeCount int, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, malpractice_count = $3, finished_at = $4
		 WHERE id = $5 AND status = $6`,
		status, score, malpracticeCount, finishedAt, attemptID, model.AttemptStatusInProgress)
	return err
}

// Delete removes an abandoned attempt so the student may start over.
func (r *AttemptRepository) Delete(ctx context.Context, attemptID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM attempts WHERE id = $1`, attemptID)
	return err
}

// ListByStudent retrieves all attempts for a student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, started_at, finished_at, status, score, malpractice_count
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.Score, &a.MalpracticeCount); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExam retrieves paginated student results for one exam, with an
// optional status filter.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int, status *model.AttemptStatus) ([]AttemptResult, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM attempts a
		JOIN students s ON a.student_id = s.id
		WHERE a.exam_id = $1
	`
	args := []any{examID}

	if status != nil && *status != "" {
		args = append(args, *status)
		baseQuery += fmt.Sprintf(" AND a.status = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT s.id, s.name, s.email,
		       a.score, a.status, a.malpractice_count, a.started_at, a.finished_at
		` + baseQuery + `
		ORDER BY s.name ASC
	` + fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(
			&res.StudentID, &res.Name, &res.Email,
			&res.Score, &res.Status, &res.MalpracticeCount, &res.StartedAt, &res.FinishedAt,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

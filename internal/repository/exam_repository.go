package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilo/vigilo-backend/internal/model"
)

// ExamRepository handles question-paper data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT e.id, e.title, e.description, e.domain, e.author_id,
		        e.duration_minutes, e.passing_score, e.status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
		        e.created_at, e.updated_at
		 FROM exams e WHERE e.id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.Domain, &e.AuthorID,
		&e.DurationMinutes, &e.PassingScore, &e.Status, &e.QuestionCount,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new exam in DRAFT status.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, domain, author_id, duration_minutes, passing_score, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.Domain, e.AuthorID,
		e.DurationMinutes, e.PassingScore, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update overwrites the mutable fields of an exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, domain = $3, duration_minutes = $4,
		     passing_score = $5, updated_at = NOW()
		 WHERE id = $6`,
		e.Title, e.Description, e.Domain, e.DurationMinutes, e.PassingScore, e.ID)
	return err
}

// UpdateStatus moves an exam between DRAFT, PUBLISHED and ARCHIVED.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// Delete removes an exam. Questions cascade at the schema level.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}

// ListByAuthorPaginated retrieves exams filtered by author with
// pagination. Pass authorID=0 to list all (superadmin view).
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, page, perPage int) ([]model.Exam, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := ` FROM exams e`
	var args []any
	if authorID > 0 {
		args = append(args, authorID)
		baseQuery += fmt.Sprintf(" WHERE e.author_id = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT e.id, e.title, e.description, e.domain, e.author_id,
	                 e.duration_minutes, e.passing_score, e.status,
	                 (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
	                 e.created_at, e.updated_at` + baseQuery +
		` ORDER BY e.created_at DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Domain, &e.AuthorID,
			&e.DurationMinutes, &e.PassingScore, &e.Status, &e.QuestionCount,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// ListPublishedByDomain returns published exams in a student's domain.
// This is the student portal's exam catalog.
func (r *ExamRepository) ListPublishedByDomain(ctx context.Context, domain string) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.description, e.domain, e.author_id,
		        e.duration_minutes, e.passing_score, e.status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
		        e.created_at, e.updated_at
		 FROM exams e
		 WHERE e.status = $1 AND e.domain = $2
		 ORDER BY e.created_at DESC`, model.ExamStatusPublished, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Domain, &e.AuthorID,
			&e.DurationMinutes, &e.PassingScore, &e.Status, &e.QuestionCount,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListPublished returns all published exams. Used for cache prewarming
// on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.description, e.domain, e.author_id,
		        e.duration_minutes, e.passing_score, e.status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
		        e.created_at, e.updated_at
		 FROM exams e WHERE e.status = $1
		 ORDER BY e.created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Domain, &e.AuthorID,
			&e.DurationMinutes, &e.PassingScore, &e.Status, &e.QuestionCount,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

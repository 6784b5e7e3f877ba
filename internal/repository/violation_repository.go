package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationRecord is one persisted malpractice event.
type ViolationRecord struct {
	ID         int64     `json:"id"`
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	Count      int       `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ViolationRepository reads the malpractice audit trail. Writes go
// through the queue worker's bulk path, not through here.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListByExamAndStudent returns a student's violation events for one
// exam, oldest first.
func (r *ViolationRepository) ListByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]ViolationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, violation_count, recorded_at
		 FROM attempt_violations
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY recorded_at ASC`, examID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ViolationRecord
	for rows.Next() {
		var v ViolationRecord
		if err := rows.Scan(&v.ID, &v.ExamID, &v.StudentID, &v.Count, &v.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, v)
	}
	return records, rows.Err()
}

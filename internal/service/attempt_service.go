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

	"github.com/vigilo/vigilo-backend/internal/config"
	"github.com/vigilo/vigilo-backend/internal/model"
	"github.com/vigilo/vigilo-backend/internal/repository"
	"github.com/vigilo/vigilo-backend/internal/session"
)

// Attempt domain errors.
var (
	ErrNotEntitled      = errors.New("exam is not available to this student")
	ErrAlreadyCompleted = errors.New("exam attempt already completed")
	ErrNoActiveAttempt  = errors.New("no active attempt for this exam")
)

// AttemptService orchestrates exam attempts: it starts and resumes
// per-attempt session controllers, and acts as their submission
// gateway. Grading happens in RAM against the Redis answer key; the
// graded outcome is queued for the result worker, so the submission
// path never writes to PostgreSQL directly.
type AttemptService struct {
	cfg           *config.Config
	attemptRepo   *repository.AttemptRepository
	examRepo      *repository.ExamRepository
	violationRepo *repository.ViolationRepository
	examSvc       *ExamService
	store         session.Store
	registry      *session.Registry
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	attemptRepo *repository.AttemptRepository,
	examRepo *repository.ExamRepository,
	violationRepo *repository.ViolationRepository,
	examSvc *ExamService,
	store session.Store,
	registry *session.Registry,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:           cfg,
		attemptRepo:   attemptRepo,
		examRepo:      examRepo,
		violationRepo: violationRepo,
		examSvc:       examSvc,
		store:         store,
		registry:      registry,
		rdb:           rdb,
		log:           log.With().Str("component", "attempt_service").Logger(),
	}
}

// sessionConfig builds the per-attempt controller config from app config.
func (s *AttemptService) sessionConfig() session.Config {
	return session.Config{
		RequireInstructionsGate: s.cfg.RequireInstructionsGate,
		ViolationLimit:          s.cfg.ViolationLimit,
		WarningThresholds:       s.cfg.WarningThresholds,
		WindowSize:              s.cfg.QuestionsPerPage,
	}
}

// Status answers the pre-start check: has this student already settled
// an attempt at this exam? Also verifies entitlement.
func (s *AttemptService) Status(ctx context.Context, examID uuid.UUID, student *model.Student) (*model.AttemptStatusResponse, error) {
	if err := s.checkEntitlement(ctx, examID, student); err != nil {
		return nil, err
	}

	attempt, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, student.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.AttemptStatusResponse{Completed: false}, nil
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	return &model.AttemptStatusResponse{
		Completed: attempt.Status != model.AttemptStatusInProgress,
	}, nil
}

// Start creates or resumes the student's attempt and returns its live
// controller plus the student-facing payload. A brand new attempt gets
// the full duration; a resume gets the remaining slice computed from
// the durable start time, so closing the tab never buys extra time.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, student *model.Student) (*session.Controller, *model.ExamPayload, error) {
	if err := s.checkEntitlement(ctx, examID, student); err != nil {
		return nil, nil, err
	}

	payload, err := s.examSvc.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, nil, err
	}

	attempt, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, student.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}

	if attempt != nil {
		if attempt.Status != model.AttemptStatusInProgress {
			// Row already settled; drop any lingering controller.
			s.registry.Remove(student.ID, examID.String())
			return nil, nil, ErrAlreadyCompleted
		}
		return s.resume(ctx, attempt, payload, student)
	}

	attempt = &model.Attempt{ExamID: examID, StudentID: student.ID}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start from another request won the insert.
			attempt, err = s.attemptRepo.GetByExamAndStudent(ctx, examID, student.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("concurrent start, refetch failed: %w", err)
			}
			return s.resume(ctx, attempt, payload, student)
		}
		return nil, nil, fmt.Errorf("create attempt: %w", err)
	}

	ctrl, err := s.spawn(ctx, payload, student.ID, 0)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", student.ID).
		Msg("Attempt started")
	return ctrl, payload, nil
}

// resume reattaches to an IN_PROGRESS attempt: the live controller when
// one exists, otherwise a fresh controller wound forward to the
// remaining time.
func (s *AttemptService) resume(ctx context.Context, attempt *model.Attempt, payload *model.ExamPayload, student *model.Student) (*session.Controller, *model.ExamPayload, error) {
	if ctrl, ok := s.registry.Get(student.ID, attempt.ExamID.String()); ok {
		switch ctrl.State() {
		case session.StateSubmitted, session.StateTerminated:
			// Settled in RAM but the result worker has not landed the
			// row yet. Never hand out a second session.
			return nil, nil, ErrAlreadyCompleted
		case session.StateFailed:
			s.registry.Remove(student.ID, attempt.ExamID.String())
		default:
			return ctrl, payload, nil
		}
	}

	elapsed := int(time.Since(attempt.StartedAt).Seconds())
	remaining := payload.Duration*60 - elapsed
	if remaining <= 0 {
		// The clock ran out while nobody was connected; the in-RAM
		// answers did not survive, so the attempt settles at zero.
		// Settled synchronously so the very next read sees it.
		if err := s.attemptRepo.Complete(ctx, attempt.ID, 0, model.AttemptStatusSubmitted, attempt.MalpracticeCount, time.Now()); err != nil {
			return nil, nil, fmt.Errorf("settle expired attempt: %w", err)
		}
		if err := s.store.Clear(ctx, student.ID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to clear durable attempt state")
		}
		return nil, nil, ErrAlreadyCompleted
	}

	ctrl, err := s.spawn(ctx, payload, student.ID, remaining)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info().
		Str("exam_id", attempt.ExamID.String()).
		Int("student_id", student.ID).
		Int("remaining_seconds", remaining).
		Msg("Attempt resumed")
	return ctrl, payload, nil
}

// spawn builds a controller, registers it and begins it unless the
// instructions gate is configured.
func (s *AttemptService) spawn(ctx context.Context, payload *model.ExamPayload, studentID, remaining int) (*session.Controller, error) {
	questionIDs := make([]string, len(payload.Questions))
	for i, q := range payload.Questions {
		questionIDs[i] = q.ID.String()
	}

	def := session.Definition{
		ExamID:           payload.ExamID.String(),
		Title:            payload.Title,
		DurationMinutes:  payload.Duration,
		RemainingSeconds: remaining,
		QuestionIDs:      questionIDs,
	}

	ctrl, err := session.New(ctx, def, studentID, s.sessionConfig(), s.store, s, s.log)
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	ctrl, created := s.registry.Put(studentID, def.ExamID, ctrl)
	if created && !s.cfg.RequireInstructionsGate {
		if err := ctrl.Begin(); err != nil {
			return nil, fmt.Errorf("begin attempt: %w", err)
		}
	}
	return ctrl, nil
}

// Begin acknowledges the instructions gate and starts the countdown.
func (s *AttemptService) Begin(examID uuid.UUID, studentID int) error {
	ctrl, ok := s.registry.Get(studentID, examID.String())
	if !ok {
		return ErrNoActiveAttempt
	}
	return ctrl.Begin()
}

// Controller returns the live controller for a student's attempt.
func (s *AttemptService) Controller(examID uuid.UUID, studentID int) (*session.Controller, error) {
	ctrl, ok := s.registry.Get(studentID, examID.String())
	if !ok {
		return nil, ErrNoActiveAttempt
	}
	return ctrl, nil
}

// State returns the reload-recovery view of a student's attempt.
func (s *AttemptService) State(examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	ctrl, err := s.Controller(examID, studentID)
	if err != nil {
		return nil, err
	}
	snap := ctrl.Snapshot()
	return &model.AttemptState{
		ExamID:           examID,
		StudentID:        studentID,
		Answers:          snap.Answers,
		RemainingSeconds: snap.RemainingSeconds,
		MalpracticeCount: snap.MalpracticeCount,
		InstructionsGate: s.cfg.RequireInstructionsGate,
		Started:          snap.State != session.StateNotStarted,
	}, nil
}

// SubmitManual drives the student's explicit submit. The controller
// guarantees exactly one gateway call even if the timer or the
// violation ceiling races this.
func (s *AttemptService) SubmitManual(ctx context.Context, examID uuid.UUID, studentID int) (*session.Outcome, error) {
	ctrl, err := s.Controller(examID, studentID)
	if err != nil {
		return nil, err
	}
	// The settled controller stays registered until Leave or until the
	// result worker lands the row: without it a fast re-start would see
	// the attempt still IN_PROGRESS and spawn a second session.
	return ctrl.Submit(ctx, session.ReasonManual)
}

// Leave abandons the attempt without submitting: controller cancelled,
// durable state cleared, registry slot freed.
func (s *AttemptService) Leave(ctx context.Context, examID uuid.UUID, studentID int) error {
	ctrl, ok := s.registry.Get(studentID, examID.String())
	if !ok {
		return ErrNoActiveAttempt
	}
	ctrl.Cancel(ctx)
	s.registry.Remove(studentID, examID.String())
	return nil
}

// Submit implements session.Gateway. It grades the answer map against
// the cached answer key, queues the durable result and returns the
// outcome. Any error here leaves the attempt retryable.
func (s *AttemptService) Submit(ctx context.Context, sub *session.Submission) (*session.Outcome, error) {
	examID, err := uuid.Parse(sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("invalid exam id: %w", err)
	}

	answerKey, err := s.examSvc.GetAnswerKey(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	correct := 0
	for qid, want := range answerKey {
		if got, ok := sub.Answers[qid]; ok && got == want {
			correct++
		}
	}
	total := len(answerKey)
	score := 0.0
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	status := model.AttemptStatusSubmitted
	if sub.Reason == session.ReasonViolationLimit {
		status = model.AttemptStatusTerminated
	}

	s.enqueueResult(ctx, &model.ResultEvent{
		ExamID:           sub.ExamID,
		StudentID:        sub.StudentID,
		Score:            score,
		Status:           string(status),
		MalpracticeCount: sub.MalpracticeCount,
		FinishedAt:       time.Now().Unix(),
	})

	return &session.Outcome{
		Score:      score,
		Total:      total,
		Passed:     status == model.AttemptStatusSubmitted && score >= float64(exam.PassingScore),
		Terminated: status == model.AttemptStatusTerminated,
	}, nil
}

// enqueueResult pushes a graded outcome onto the persistence queue.
func (s *AttemptService) enqueueResult(ctx context.Context, event *model.ResultEvent) {
	data, _ := json.Marshal(event)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, data).Err(); err != nil {
		s.log.Error().Err(err).
			Str("exam_id", event.ExamID).
			Int("student_id", event.StudentID).
			Msg("Failed to enqueue result event")
	}
}

// Results lists paginated student outcomes for one exam (admin view).
func (s *AttemptService) Results(ctx context.Context, examID uuid.UUID, authorID, page, perPage int, status *model.AttemptStatus) ([]repository.AttemptResult, int64, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, 0, err
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return nil, 0, ErrNotExamAuthor
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return s.attemptRepo.ListByExam(ctx, examID, page, perPage, status)
}

// History lists all of a student's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, studentID int) ([]model.Attempt, error) {
	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

// Reset deletes a student's attempt so they may retake the exam. Any
// live session is cancelled first; author only.
func (s *AttemptService) Reset(ctx context.Context, examID uuid.UUID, authorID, studentID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}

	attempt, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return err
	}

	if ctrl, ok := s.registry.Get(studentID, examID.String()); ok {
		ctrl.Cancel(ctx)
		s.registry.Remove(studentID, examID.String())
	}
	if err := s.store.Clear(ctx, studentID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear durable attempt state")
	}

	if err := s.attemptRepo.Delete(ctx, attempt.ID); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt reset by author")
	return nil
}

// Violations lists the recorded malpractice events for one student's
// attempt, for the author's audit view.
func (s *AttemptService) Violations(ctx context.Context, examID uuid.UUID, authorID, studentID int) ([]repository.ViolationRecord, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	return s.violationRepo.ListByExamAndStudent(ctx, examID, studentID)
}

// checkEntitlement verifies the exam is published and in the student's
// domain.
func (s *AttemptService) checkEntitlement(ctx context.Context, examID uuid.UUID, student *model.Student) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotEntitled
		}
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}
	if exam.Domain != student.Domain {
		return ErrNotEntitled
	}
	return nil
}

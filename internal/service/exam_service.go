package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo-backend/internal/config"
	"github.com/vigilo/vigilo-backend/internal/model"
	"github.com/vigilo/vigilo-backend/internal/repository"
	"github.com/vigilo/vigilo-backend/internal/response"
)

// Domain errors.
var (
	ErrNotExamAuthor    = errors.New("not the author of this exam")
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
)

// ExamService handles question-paper business logic and Redis caching.
// Publishing an exam warms the payload, duration and answer-key caches
// so the exam-taking path never touches PostgreSQL.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// ListByAuthor retrieves exams with pagination, filtered by author if
// not superadmin.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + int64(perPage) - 1) / int64(perPage),
	}
	return exams, pagination, nil
}

// ListForStudent returns published exams in the student's domain.
func (s *ExamService) ListForStudent(ctx context.Context, domain string) ([]model.Exam, error) {
	exams, err := s.examRepo.ListPublishedByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Create inserts a new exam as DRAFT, with its questions if provided.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		Domain:          req.Domain,
		AuthorID:        authorID,
		DurationMinutes: req.DurationMinutes,
		PassingScore:    req.PassingScore,
		Status:          model.ExamStatusDraft,
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	if len(req.Questions) > 0 {
		if err := s.questionRepo.ReplaceAll(ctx, exam.ID, req.Questions); err != nil {
			return nil, fmt.Errorf("insert questions: %w", err)
		}
		exam.QuestionCount = len(req.Questions)
	}
	return exam, nil
}

// Update modifies an existing draft exam. A non-nil Questions slice
// replaces the full question list.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, authorID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	existing, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != "" {
		existing.Title = req.Title
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if req.Domain != "" {
		existing.Domain = req.Domain
	}
	if req.DurationMinutes > 0 {
		existing.DurationMinutes = req.DurationMinutes
	}
	if req.PassingScore != nil {
		existing.PassingScore = *req.PassingScore
	}
	if err := s.examRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}

	if req.Questions != nil {
		if err := s.questionRepo.ReplaceAll(ctx, examID, req.Questions); err != nil {
			return nil, fmt.Errorf("replace questions: %w", err)
		}
		existing.QuestionCount = len(req.Questions)
	}
	return existing, nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// ListQuestions returns an exam's full question list, answers included.
// Admin only; the author check guards against cross-author reads.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID, authorID int) ([]model.Question, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// AddQuestion appends one question to a draft exam. A zero OrderNum
// places it at the end of the current list.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, authorID int, req *model.AddQuestionRequest) (*model.Question, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	orderNum := req.OrderNum
	if orderNum <= 0 {
		count, err := s.questionRepo.CountByExam(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("count questions: %w", err)
		}
		orderNum = count + 1
	}

	opts, err := json.Marshal(req.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	q := &model.Question{
		ExamID:        examID,
		Prompt:        req.Prompt,
		Options:       opts,
		CorrectOption: req.CorrectOption,
		OrderNum:      orderNum,
	}
	if err := s.questionRepo.Add(ctx, q); err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}
	return q, nil
}

// DeleteQuestion removes one question from a draft exam.
func (s *ExamService) DeleteQuestion(ctx context.Context, examID, questionID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.questionRepo.Delete(ctx, examID, questionID)
}

// Publish changes exam status to PUBLISHED and warms the Redis caches.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	count, err := s.questionRepo.CountByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if count == 0 {
		return ErrNoQuestions
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// Archive moves a published exam to ARCHIVED and evicts its caches so
// no new attempts can start.
func (s *ExamService) Archive(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusArchived); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	id := examID.String()
	if err := s.rdb.Del(ctx,
		config.CacheKey.ExamPayloadKey(id),
		config.CacheKey.ExamAnswerKey(id),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id).Msg("Failed to evict exam caches")
	}

	s.log.Info().Str("exam_id", id).Msg("Exam archived")
	return nil
}

// WarmExamCache loads an exam's payload, duration and answer key from
// PostgreSQL into Redis. Used by Publish and PrewarmAllCaches.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
	}

	payload := model.ExamPayload{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Domain:    exam.Domain,
		Duration:  exam.DurationMinutes,
		Questions: studentQuestions,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectOption
	}

	id := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(id), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(id))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(id), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", id).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application
// startup so the first student never hits a cold cache.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExamPayload retrieves the cached student payload from Redis.
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrExamNotPublished
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey retrieves the answer key from Redis for RAM grading.
// Keys are question UUIDs, values the correct option index.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey(examID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("answer key not cached")
	}

	key := make(map[string]int, len(raw))
	for qid, val := range raw {
		idx, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid answer key entry %s: %w", qid, err)
		}
		key[qid] = idx
	}
	return key, nil
}

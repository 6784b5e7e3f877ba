package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilo/vigilo-backend/internal/middleware"
	"github.com/vigilo/vigilo-backend/internal/model"
	"github.com/vigilo/vigilo-backend/internal/response"
	"github.com/vigilo/vigilo-backend/internal/service"
	"github.com/vigilo/vigilo-backend/internal/session"
	"github.com/vigilo/vigilo-backend/internal/store"
)

// PortalHandler handles the student-facing exam-taking endpoints.
type PortalHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
	attemptStore   *store.RedisAttemptStore
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	examService *service.ExamService,
	attemptService *service.AttemptService,
	attemptStore *store.RedisAttemptStore,
) *PortalHandler {
	return &PortalHandler{
		examService:    examService,
		attemptService: attemptService,
		attemptStore:   attemptStore,
	}
}

// claimedStudent rebuilds the student identity from JWT claims so the
// hot path skips a PostgreSQL read.
func claimedStudent(c *gin.Context) *model.Student {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return nil
	}
	return &model.Student{ID: claims.UserID, Domain: claims.Domain}
}

func failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotEntitled):
		response.Fail(c, http.StatusForbidden, response.ErrNotEntitled)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyCompleted)
	case errors.Is(err, service.ErrNoActiveAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
	case errors.Is(err, session.ErrNotStarted),
		errors.Is(err, session.ErrNotInProgress),
		errors.Is(err, session.ErrSubmitInFlight):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// ListExams godoc
// GET /api/v1/student/exams
// Published exams in the student's domain.
func (h *PortalHandler) ListExams(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.examService.ListForStudent(c.Request.Context(), student.Domain)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/student/exams/:exam_id
// The cached student-facing paper, correct answers excluded. Served
// from Redis; a miss means the exam is not published.
func (h *PortalHandler) GetExam(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	payload, err := h.examService.GetExamPayload(c.Request.Context(), examID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	if payload.Domain != student.Domain {
		response.Fail(c, http.StatusForbidden, response.ErrNotEntitled)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"paper": payload})
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// The student's own attempt history, newest first.
func (h *PortalHandler) ListAttempts(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.History(c.Request.Context(), student.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetActiveExam godoc
// GET /api/v1/student/active
// The reload path: which exam, if any, does this student have open?
func (h *PortalHandler) GetActiveExam(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := h.attemptStore.LoadActiveExam(c.Request.Context(), student.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID})
}

// GetStatus godoc
// GET /api/v1/student/exams/:exam_id/status
// Pre-start check: entitlement plus whether a prior attempt settled.
func (h *PortalHandler) GetStatus(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	status, err := h.attemptService.Status(c.Request.Context(), examID, student)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Creates or resumes the attempt and returns the paper plus the
// current attempt state.
func (h *PortalHandler) StartExam(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	ctrl, payload, err := h.attemptService.Start(c.Request.Context(), examID, student)
	if err != nil {
		failAttempt(c, err)
		return
	}

	snap := ctrl.Snapshot()
	response.Success(c, http.StatusOK, gin.H{
		"paper": payload,
		"state": gin.H{
			"state":             snap.State.String(),
			"remaining_seconds": snap.RemainingSeconds,
			"answers":           snap.Answers,
			"malpractice_count": snap.MalpracticeCount,
		},
	})
}

// BeginExam godoc
// POST /api/v1/student/exams/:exam_id/begin
// Acknowledges the instructions page and starts the countdown. A no-op
// when the instructions gate is disabled.
func (h *PortalHandler) BeginExam(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.attemptService.Begin(examID, student.ID); err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// GetState godoc
// GET /api/v1/student/exams/:exam_id/state
// Reload recovery: answers, remaining time and violation count.
func (h *PortalHandler) GetState(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(examID, student.ID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// The manual submit route. Safe to race the timer and the violation
// ceiling; whoever settles first wins and the outcome is shared.
func (h *PortalHandler) SubmitExam(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	out, err := h.attemptService.SubmitManual(c.Request.Context(), examID, student.ID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) ||
			errors.Is(err, session.ErrNotStarted) ||
			errors.Is(err, session.ErrNotInProgress) ||
			errors.Is(err, session.ErrSubmitInFlight) {
			failAttempt(c, err)
			return
		}
		// The gateway failed; the attempt reverted and may retry.
		response.Fail(c, http.StatusBadGateway, response.ErrSubmissionFailed)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": out})
}

// LeaveExam godoc
// POST /api/v1/student/exams/:exam_id/leave
// Abandons the attempt without grading.
func (h *PortalHandler) LeaveExam(c *gin.Context) {
	student := claimedStudent(c)
	if student == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.attemptService.Leave(c.Request.Context(), examID, student.ID); err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

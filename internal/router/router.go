package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vigilo/vigilo-backend/internal/config"
	"github.com/vigilo/vigilo-backend/internal/handler"
	"github.com/vigilo/vigilo-backend/internal/middleware"
	"github.com/vigilo/vigilo-backend/internal/response"
	"github.com/vigilo/vigilo-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Portal *handler.PortalHandler
	Exam   *handler.ExamHandler
	WS     *handler.WSHandler
}

// SetupRouter configures all Gin route groups with their middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID middleware runs globally so every response has metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the credential routes (30 requests/minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/register", authLimiter.Middleware(), handlers.Auth.RegisterStudent)
		auth.POST("/student/login", authLimiter.Middleware(), handlers.Auth.StudentLogin)
		auth.POST("/admin/login", authLimiter.Middleware(), handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.Portal.ListExams)
		studentAPI.GET("/exams/:exam_id", handlers.Portal.GetExam)
		studentAPI.GET("/attempts", handlers.Portal.ListAttempts)
		studentAPI.GET("/active", handlers.Portal.GetActiveExam)
		studentAPI.GET("/exams/:exam_id/status", handlers.Portal.GetStatus)
		studentAPI.POST("/exams/:exam_id/start", handlers.Portal.StartExam)
		studentAPI.POST("/exams/:exam_id/begin", handlers.Portal.BeginExam)
		studentAPI.GET("/exams/:exam_id/state", handlers.Portal.GetState)
		studentAPI.POST("/exams/:exam_id/submit", handlers.Portal.SubmitExam)
		studentAPI.POST("/exams/:exam_id/leave", handlers.Portal.LeaveExam)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams", handlers.Exam.ListExams)
		adminAPI.POST("/exams", handlers.Exam.CreateExam)
		adminAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		adminAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		adminAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		adminAPI.GET("/exams/:exam_id/questions", handlers.Exam.ListQuestions)
		adminAPI.POST("/exams/:exam_id/questions", handlers.Exam.AddQuestion)
		adminAPI.DELETE("/exams/:exam_id/questions/:question_id", handlers.Exam.DeleteQuestion)
		adminAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		adminAPI.POST("/exams/:exam_id/archive", handlers.Exam.ArchiveExam)
		adminAPI.GET("/exams/:exam_id/results", handlers.Exam.GetResults)
		adminAPI.GET("/exams/:exam_id/results/:student_id/violations", handlers.Exam.GetStudentViolations)
		adminAPI.DELETE("/exams/:exam_id/results/:student_id", handlers.Exam.ResetAttempt)
	}

	return router
}

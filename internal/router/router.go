package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edushift/examgate-backend/internal/config"
	"github.com/edushift/examgate-backend/internal/handler"
	"github.com/edushift/examgate-backend/internal/middleware"
	"github.com/edushift/examgate-backend/internal/response"
	"github.com/edushift/examgate-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Attempt       *handler.AttemptHandler
	Security      *handler.SecurityHandler
	Grading       *handler.GradingHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
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

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		studentAPI.GET("/lobby", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/exams/:exam_id/attempt", handlers.StudentPortal.StartOrResume)

		studentAPI.GET("/attempts/:attempt_id/paper", handlers.StudentPortal.GetExamPaper)
		studentAPI.GET("/attempts/:attempt_id/state", handlers.StudentPortal.GetState)
		studentAPI.GET("/attempts/:attempt_id/answers", handlers.Attempt.ListAnswers)

		studentAPI.PUT("/attempts/:attempt_id/questions/:question_id/answer", handlers.Attempt.UpsertAnswer)
		studentAPI.PUT("/attempts/:attempt_id/questions/:question_id/review", handlers.Attempt.MarkForReview)

		studentAPI.POST("/attempts/:attempt_id/sections/:section_id/start", handlers.Attempt.SectionStart)
		studentAPI.PUT("/attempts/:attempt_id/sections/:section_id/time", handlers.Attempt.SectionUpdateTime)
		studentAPI.POST("/attempts/:attempt_id/sections/:section_id/advance", handlers.Attempt.AdvanceSection)
		studentAPI.PUT("/attempts/:attempt_id/time", handlers.Attempt.UpdateTime)

		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
		studentAPI.POST("/attempts/:attempt_id/security-events", handlers.Security.ReportEvent)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptWebSocketStream)
	}

	// ─── 3. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams/:exam_id/results", handlers.Grading.ListResults)
		adminAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)

		adminAPI.GET("/attempts/:attempt_id/security-events", handlers.Grading.GetSecurityLog)
		adminAPI.PUT("/attempts/:attempt_id/answers/:answer_id/grade", handlers.Grading.GradeAnswer)
		adminAPI.POST("/attempts/:attempt_id/finalize", handlers.Grading.Finalize)
	}

	return router
}

package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/falachabt/bacblanc-sub000/internal/config"
	"github.com/falachabt/bacblanc-sub000/internal/handler"
	"github.com/falachabt/bacblanc-sub000/internal/middleware"
	"github.com/falachabt/bacblanc-sub000/internal/response"
	"github.com/falachabt/bacblanc-sub000/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Subject *handler.SubjectHandler
	Exam    *handler.ExamHandler
	Portal  *handler.PortalHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

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

	// Health check and Prometheus metrics.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		auth.POST("/logout", middleware.RequireAuth(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
	}

	// ─── 2. Portal Group (JWT) ─────────────────────────────────────────
	portal := router.Group("/api/v1/portal")
	portal.Use(middleware.RequireAuth(authService))
	{
		portal.GET("/subjects", handlers.Portal.ListSubjects)
		portal.GET("/subjects/:id/exams", handlers.Portal.ListExams)
		portal.GET("/history", handlers.Portal.History)

		portal.POST("/exams/:id/session", handlers.Portal.StartOrResume)
		portal.GET("/exams/:id/session", handlers.Portal.GetState)
		portal.POST("/exams/:id/session/answer", handlers.Portal.Answer)
		portal.POST("/exams/:id/session/flag", handlers.Portal.Flag)
		portal.POST("/exams/:id/session/goto", handlers.Portal.Goto)
		portal.POST("/exams/:id/session/finish", handlers.Portal.Finish)
		portal.POST("/exams/:id/session/quit", handlers.Portal.Quit)
		portal.GET("/exams/:id/result", handlers.Portal.Result)
	}

	// ─── 3. WebSocket Group (Query-Token Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/portal/exams/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (JWT + Admin Role) ─────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdmin(authService))
	{
		admin.GET("/subjects", handlers.Subject.GetAll)
		admin.POST("/subjects", handlers.Subject.Create)
		admin.GET("/subjects/:id", handlers.Subject.GetByID)
		admin.PUT("/subjects/:id", handlers.Subject.Update)
		admin.DELETE("/subjects/:id", handlers.Subject.Delete)
		admin.GET("/subjects/:id/exams", handlers.Exam.ListBySubject)

		admin.POST("/exams", handlers.Exam.Create)
		admin.GET("/exams/:id", handlers.Exam.GetByID)
		admin.PUT("/exams/:id", handlers.Exam.Update)
		admin.DELETE("/exams/:id", handlers.Exam.Delete)
		admin.POST("/exams/:id/publish", handlers.Exam.Publish)
		admin.POST("/exams/:id/archive", handlers.Exam.Archive)
		admin.GET("/exams/:id/results", handlers.Exam.Results)

		admin.POST("/exams/:id/questions", handlers.Exam.AddQuestion)
		admin.PUT("/exams/:id/questions", handlers.Exam.ReplaceQuestions)
		admin.DELETE("/exams/:id/questions/:question_id", handlers.Exam.DeleteQuestion)
	}

	return router
}

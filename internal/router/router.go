package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment *handler.AssessmentHandler
	Internal   *handler.InternalHandler
	Recruiter  *handler.RecruiterHandler
	WS         *handler.WSHandler
	// Monitor is nil when Redis is disabled; the SSE route is not mounted.
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// signalLimiter throttles the high-frequency proctoring endpoints.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	signalLimiter *middleware.RateLimiter,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Compression skips SSE and WebSocket upgrades on its own.
	router.Use(middleware.Brotli(cfg.CompressionMinBytes))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.NoStore(), middleware.RequireJWT(authService))

	// ─── 1. Internal (service-to-service) ──────────────────────────────
	internal := api.Group("/internal")
	internal.Use(middleware.RequireRole(service.RoleService))
	{
		internal.POST("/sessions", handlers.Internal.CreateSession)
		internal.GET("/applications/:application_id/session", handlers.Internal.GetByApplication)
		internal.POST("/sessions/:id/plagiarism", handlers.Internal.RecordPlagiarism)
	}

	// ─── 2. Candidate ──────────────────────────────────────────────────
	sessions := api.Group("/sessions")
	{
		candidate := sessions.Group("")
		candidate.Use(middleware.RequireRole(service.RoleCandidate))
		candidate.GET("/:id", handlers.Assessment.GetSession)
		candidate.POST("/:id/start", handlers.Assessment.StartSession)
		candidate.PUT("/:id/answers/:question_id", handlers.Assessment.SaveAnswer)
		candidate.POST("/:id/submit", handlers.Assessment.SubmitSession)

		signals := candidate.Group("")
		if signalLimiter != nil {
			signals.Use(signalLimiter.Middleware())
		}
		signals.POST("/:id/violations", handlers.Assessment.ReportViolation)
		signals.POST("/:id/face-samples", handlers.Assessment.ReportFaceSample)

		sessions.GET("/:id/results",
			middleware.RequireRole(service.RoleCandidate, service.RoleRecruiter),
			handlers.Assessment.GetResults,
		)
	}

	// ─── 3. Recruiter ──────────────────────────────────────────────────
	recruiter := api.Group("/recruiter")
	recruiter.Use(middleware.RequireRole(service.RoleRecruiter))
	{
		recruiter.GET("/sessions/:id", handlers.Recruiter.GetSession)
		recruiter.GET("/jobs/:job_id/sessions", handlers.Recruiter.ListJobSessions)
		if handlers.Monitor != nil {
			recruiter.GET("/jobs/:job_id/monitor", handlers.Monitor.MonitorJobSSE)
		}
	}

	// ─── 4. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireJWT(authService), middleware.RequireRole(service.RoleCandidate))
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}

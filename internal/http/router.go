// Package httpapi wires the HTTP transport (Gin) to the chat services,
// middleware and handlers. It centralizes cross-cutting concerns: tracing,
// correlation ids, redacted logging, panic recovery, metrics, CORS, security
// headers, compression, connection auth, idempotency and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger (attaches the request logger)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. CORS, security headers, gzip
//
// Per group:
//   - POST /connect: rate limited by client IP
//   - everything else: ConnectionAuth, then per-connection rate limiting;
//     the send route validates Idempotency-Key before the limiter so replays
//     bypass it.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/docs"
	"github.com/tbourn/cot-chat/internal/config"
	"github.com/tbourn/cot-chat/internal/http/handlers"
	"github.com/tbourn/cot-chat/internal/http/middleware"
	"github.com/tbourn/cot-chat/internal/inference"
	"github.com/tbourn/cot-chat/internal/services"
)

// maxBodyBytes caps request bodies; prompts are bounded far below this.
const maxBodyBytes = 1 << 20

// RegisterRoutes attaches middleware and endpoints to r. The services are
// built here from db, gw and store.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw inference.Gateway, store *services.SessionStore, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics())
	middleware.RegisterSessionGauge(store.Len)

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Services
	conv := services.NewConversationService(db, gw, cfg.Inference.AvailableModels)
	conv.MaxPromptRunes = cfg.MaxPromptRunes
	conv.TitleMaxLen = cfg.TitleMaxLen
	auth := services.NewAuthService(db, cfg.Auth.Secret, cfg.Auth.TokenTTL)

	h := handlers.New(handlers.Deps{
		Conversations:  conv,
		Auth:           auth,
		Feedback:       &services.FeedbackService{DB: db},
		Sessions:       store,
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Models:         cfg.Inference.AvailableModels,
		DefaultModel:   cfg.Inference.DefaultModel,
		RequireLogin:   cfg.Auth.RequireLogin,
	})

	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, cfg.SessionIdleTTL, middleware.KeyByConnOrIP())
	idempotency := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: h.ActiveSessionID},
		h.LookupIdempotency,
	)
	parseToken := func(tok string) (string, string, error) {
		cl, err := auth.ParseToken(tok)
		if err != nil {
			return "", "", err
		}
		return cl.ConnID, cl.Email, nil
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.POST("/connect", limiter.Handler(), h.Connect)

	authed := api.Group("", middleware.ConnectionAuth(parseToken))
	{
		authed.POST("/auth/signup", limiter.Handler(), h.Signup)
		authed.POST("/auth/login", limiter.Handler(), h.Login)
		authed.POST("/auth/logout", h.Logout)

		authed.GET("/models", h.ListModels)
		authed.GET("/conversations", h.ListConversations)
		authed.GET("/conversations/:id/messages", h.ConversationMessages)
		authed.POST("/messages/:id/feedback", limiter.Handler(), h.LeaveFeedback)

		sess := authed.Group("/session", middleware.NoStore(), h.RequireLoginMiddleware())
		sess.GET("", h.GetSession)
		sess.POST("/new", h.NewChat)
		sess.POST("/load", h.LoadSession)
		sess.PUT("/model", h.SelectModel)
		sess.POST("/messages", idempotency, limiter.Handler(), h.SendMessage)
	}
}

// corsMiddleware allows any origin when none are configured (no
// credentials in that mode) and otherwise the configured allowlist.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// limitBody caps request bodies with http.MaxBytesReader; oversized bodies
// fail JSON binding downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

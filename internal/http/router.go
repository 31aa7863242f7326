// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/config"
	"github.com/tbourn/recipe-extraction-backend/internal/http/handlers"
	"github.com/tbourn/recipe-extraction-backend/internal/http/middleware"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
	"github.com/tbourn/recipe-extraction-backend/internal/services"
)

// Services are the application services the API is served from. They are
// built by the caller so background workers can share them.
type Services struct {
	Jobs      *services.JobManager
	Ledger    *ledger.Ledger
	Referrals *services.ReferralService
}

// routeCreateExtraction is the relative route whose Idempotency-Key maps to
// services.IdempotencyScopeCreateJob.
const routeCreateExtraction = "/extractions"

// routeUploadVideo streams large bodies and applies its own cap.
const routeUploadVideo = "/extractions/:id/video"

// createExtractionCost is the rate-limit tokens spent by requests that put
// work on the engine.
const createExtractionCost = 3

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under cfg.APIBasePath and the engine
// callbacks under /internal.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. User identity (X-User-ID), so every later step sees the caller
//  4. AccessLog: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter (upload route exempt)
//  7. Metrics, gzip
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Resolve the caller so logs, idempotency and rate limits see it
	r.Use(middleware.UserIdentity())

	// 4) Structured access logs with redaction
	r.Use(middleware.AccessLog(middleware.LogOptions{}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	uploadRoute := joinRoute(apiBase, routeUploadVideo)
	createRoute := joinRoute(apiBase, routeCreateExtraction)

	// 6) Global body size limit (1 MiB); video uploads are capped by the handler
	r.Use(limitBody(1<<20, uploadRoute))

	// 7) Prometheus metrics and /metrics endpoint; gzip JSON responses
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 128,
		},
		func(ctx context.Context, userID, route, key string, now time.Time) (bool, error) {
			if route != createRoute {
				return false, nil
			}
			rec, err := repo.GetIdempotency(ctx, db, userID, services.IdempotencyScopeCreateJob, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP; starting an extraction costs more
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Cost(createRoute, createExtractionCost).
		Cost(uploadRoute, createExtractionCost)
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	docsPrefix := ""
	if cfg.SwaggerEnabled {
		docsPrefix = "/swagger"
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		PrivatePrefixes: []string{joinRoute(apiBase, "/")},
		DocsPrefix:      docsPrefix,
		EnablePolicy:    true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (docs are registered by the docs package import in main)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Jobs, svc.Jobs, svc.Ledger, svc.Referrals)
	h.MaxUploadBytes = cfg.MaxUploadBytes
	h.UploadTimeout = cfg.UploadTimeout

	// Public API
	api := groupWithPrefix(r, apiBase)
	api.Use(middleware.RequireUser())
	{
		// Extractions
		api.POST(routeCreateExtraction, h.CreateExtraction)
		api.GET("/extractions", h.ListExtractions)
		api.GET("/extractions/:id", h.GetExtraction)
		api.POST("/extractions/:id/cancel", h.CancelExtraction)
		api.POST(routeUploadVideo, h.UploadVideo)

		// Recipes
		api.GET("/recipes/:recipe_id", h.GetRecipe)

		// Credits
		api.GET("/credits", h.GetCredits)
		api.GET("/credits/transactions", h.ListTransactions)

		// Referrals
		api.GET("/referrals", h.GetReferralStatus)
		api.POST("/referrals/code", h.CreateReferralCode)
		api.POST("/referrals/redeem", h.RedeemReferral)
	}

	// Engine callbacks
	internal := r.Group("/internal", middleware.InternalAuth(cfg.InternalToken))
	{
		internal.POST("/extractions/:id/result", h.PostResult)
		internal.POST("/extractions/:id/progress", h.PostProgress)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error. Routes listed in exempt (full
// Gin route patterns) are left to enforce their own limit.
func limitBody(maxBytes int64, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, route := range exempt {
		skip[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; !ok {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// joinRoute prefixes a relative route with the API base path the same way
// groupWithPrefix mounts it.
func joinRoute(base, route string) string {
	if base == "" || base == "/" {
		return route
	}
	return strings.TrimRight(base, "/") + route
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

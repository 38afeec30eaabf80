// Package api wires together all HTTP routes for the back office.
//
// Route grouping philosophy:
//   - /track and the portal login/registration endpoints are public: customers
//     follow their application without an account, so the tracking endpoint
//     must work anonymously. It is rate limited by IP and returns a narrow
//     view of the case.
//   - /portal endpoints past login require a customer token. A customer can
//     only ever see their own records.
//   - /api endpoints are staff-only: every route requires a staff token, and
//     mutating routes additionally pass through the permission gate. Scopes
//     are resolved from the database per request, not embedded in the JWT, so
//     role changes take effect immediately.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/tarim-tours/backoffice/internal/api/admin"
	"github.com/tarim-tours/backoffice/internal/api/public"
	"github.com/tarim-tours/backoffice/internal/audit"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/config"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/middleware"
)

// BackgroundServices holds resources with background goroutines that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	redisLimiter *middleware.RedisRateLimiter
	shipper      *audit.MultiShipper
}

// Shutdown stops rate limiter cleanup goroutines, closes the Redis connection,
// and flushes audit shippers.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisLimiter != nil {
		if err := bg.redisLimiter.Close(); err != nil {
			slog.Warn("failed to close redis rate limiter", "error", err)
		}
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	userRepo := repositories.NewUserRepository(db)
	clientRepo := repositories.NewClientRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Wrap *sql.DB with sqlx for the RBAC repository and stats queries
	sqlxDB := sqlx.NewDb(db, "postgres")
	rbacRepo := repositories.NewRBACRepository(sqlxDB)

	gate := auth.NewGate(rbacRepo)

	// External audit destinations are optional; the database write always
	// happens regardless.
	shipper, err := audit.NewMultiShipper(shipperConfigs(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize audit shippers: %w", err)
	}
	recorder := audit.NewRecorder(auditRepo, shipper)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/version", versionHandler())

	// Handlers
	authHandlers := admin.NewAuthHandlers(cfg, db, sqlxDB, recorder)
	userHandlers := admin.NewUserHandlers(db, sqlxDB, recorder)
	roleHandlers := admin.NewRoleHandlers(sqlxDB, recorder)
	clientHandlers := admin.NewClientHandlers(db, recorder)
	appHandlers := admin.NewApplicationHandlers(db, recorder)
	auditLogHandlers := admin.NewAuditLogHandlers(db)
	statsHandlers := admin.NewStatsHandlers(sqlxDB)
	trackingHandlers := public.NewTrackingHandlers(db)
	portalHandlers := public.NewPortalHandlers(cfg, db, recorder)

	// Rate limiting: Redis-backed when a Redis address is configured so the
	// limits hold across replicas, in-process token buckets otherwise.
	bg := &BackgroundServices{shipper: shipper}
	var authLimit, generalLimit, publicLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled && cfg.Security.RateLimiting.RedisAddr != "" {
		redisLimiter := middleware.NewRedisRateLimiter(cfg.Security.RateLimiting.RedisAddr, middleware.DefaultRateLimitConfig())
		bg.redisLimiter = redisLimiter
		authLimit = redisLimiter.Middleware()
		generalLimit = redisLimiter.Middleware()
		publicLimit = redisLimiter.Middleware()
	} else {
		authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
		publicRateLimiter := middleware.NewRateLimiter(middleware.PublicRateLimitConfig())
		bg.rateLimiters = []*middleware.RateLimiter{authRateLimiter, generalRateLimiter, publicRateLimiter}
		authLimit = middleware.RateLimitMiddleware(authRateLimiter)
		generalLimit = middleware.RateLimitMiddleware(generalRateLimiter)
		publicLimit = middleware.RateLimitMiddleware(publicRateLimiter)
	}

	// Public tracking endpoint (anonymous, rate limited by IP)
	router.GET("/track/:tracking_id", publicLimit, trackingHandlers.TrackHandler())

	// Customer portal
	portal := router.Group("/portal")
	{
		portal.POST("/register", authLimit, portalHandlers.RegisterHandler())
		portal.POST("/login", authLimit, portalHandlers.LoginHandler())

		portalAuthed := portal.Group("")
		portalAuthed.Use(generalLimit)
		portalAuthed.Use(middleware.CustomerAuthMiddleware(clientRepo))
		{
			portalAuthed.GET("/applications", portalHandlers.MyApplicationsHandler())
			portalAuthed.GET("/applications/:id", portalHandlers.MyApplicationHandler())
		}
	}

	// Staff API
	api := router.Group("/api")
	{
		api.POST("/auth/login", authLimit, authHandlers.LoginHandler())

		authed := api.Group("")
		authed.Use(generalLimit)
		authed.Use(middleware.AuthMiddleware(userRepo))
		{
			authed.POST("/auth/refresh", authHandlers.RefreshHandler())
			authed.GET("/auth/me", authHandlers.MeHandler())
			authed.PUT("/auth/password", authHandlers.ChangePasswordHandler())

			authed.GET("/stats/dashboard",
				middleware.RequirePermission(gate, auth.PermApplicationsView),
				statsHandlers.GetDashboardStatsHandler())

			clientsGroup := authed.Group("/clients")
			{
				clientsGroup.GET("", middleware.RequirePermission(gate, auth.PermClientsView), clientHandlers.ListClientsHandler())
				clientsGroup.GET("/:id", middleware.RequirePermission(gate, auth.PermClientsView), clientHandlers.GetClientHandler())
				clientsGroup.POST("", middleware.RequirePermission(gate, auth.PermClientsCreate), clientHandlers.CreateClientHandler())
				clientsGroup.PUT("/:id", middleware.RequirePermission(gate, auth.PermClientsEdit), clientHandlers.UpdateClientHandler())
				clientsGroup.DELETE("/:id", middleware.RequirePermission(gate, auth.PermClientsDelete), clientHandlers.DeleteClientHandler())
			}

			appsGroup := authed.Group("/applications")
			{
				appsGroup.GET("", middleware.RequirePermission(gate, auth.PermApplicationsView), appHandlers.ListApplicationsHandler())
				appsGroup.GET("/:id", middleware.RequirePermission(gate, auth.PermApplicationsView), appHandlers.GetApplicationHandler())
				appsGroup.GET("/:id/history", middleware.RequirePermission(gate, auth.PermApplicationsView), appHandlers.GetStatusHistoryHandler())
				appsGroup.POST("", middleware.RequirePermission(gate, auth.PermApplicationsCreate), appHandlers.CreateApplicationHandler())
				appsGroup.PUT("/:id", middleware.RequirePermission(gate, auth.PermApplicationsProcess), appHandlers.UpdateApplicationHandler())
				appsGroup.POST("/:id/status", middleware.RequirePermission(gate, auth.PermApplicationsProcess), appHandlers.TransitionStatusHandler())
				appsGroup.POST("/:id/assign", middleware.RequirePermission(gate, auth.PermApplicationsAssign), appHandlers.AssignApplicationHandler())
			}

			usersGroup := authed.Group("/users")
			{
				usersGroup.GET("", middleware.RequirePermission(gate, auth.PermUsersView), userHandlers.ListUsersHandler())
				usersGroup.GET("/search", middleware.RequirePermission(gate, auth.PermUsersView), userHandlers.SearchUsersHandler())
				usersGroup.GET("/:id", middleware.RequirePermission(gate, auth.PermUsersView), userHandlers.GetUserHandler())
				usersGroup.POST("", middleware.RequirePermission(gate, auth.PermUsersCreate), userHandlers.CreateUserHandler())
				usersGroup.PUT("/:id", middleware.RequirePermission(gate, auth.PermUsersEdit), userHandlers.UpdateUserHandler())
				usersGroup.PUT("/:id/roles", middleware.RequirePermission(gate, auth.PermUsersEdit), userHandlers.SetUserRolesHandler())
				usersGroup.DELETE("/:id", middleware.RequirePermission(gate, auth.PermUsersDelete), userHandlers.DeactivateUserHandler())
			}

			rolesGroup := authed.Group("/roles")
			{
				rolesGroup.GET("", middleware.RequirePermission(gate, auth.PermUsersView), roleHandlers.ListRolesHandler())
				rolesGroup.GET("/:id", middleware.RequirePermission(gate, auth.PermUsersView), roleHandlers.GetRoleHandler())
				rolesGroup.POST("", middleware.RequirePermission(gate, auth.PermSystemSettings), roleHandlers.CreateRoleHandler())
				rolesGroup.PUT("/:id", middleware.RequirePermission(gate, auth.PermSystemSettings), roleHandlers.UpdateRoleHandler())
				rolesGroup.DELETE("/:id", middleware.RequirePermission(gate, auth.PermSystemSettings), roleHandlers.DeleteRoleHandler())
			}
			authed.GET("/permissions", middleware.RequirePermission(gate, auth.PermUsersView), roleHandlers.ListPermissionsHandler())

			auditGroup := authed.Group("/audit-logs")
			auditGroup.Use(middleware.RequirePermission(gate, auth.PermSystemAudit))
			{
				auditGroup.GET("", auditLogHandlers.ListAuditLogsHandler())
				auditGroup.GET("/:id", auditLogHandlers.GetAuditLogHandler())
			}
		}
	}

	return router, bg, nil
}

// shipperConfigs converts the config file's audit shipper sections into the
// audit package's configuration types.
func shipperConfigs(cfg *config.Config) []audit.ShipperConfig {
	if !cfg.Audit.Enabled {
		return nil
	}

	out := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, s := range cfg.Audit.Shippers {
		sc := audit.ShipperConfig{
			Enabled: s.Enabled,
			Type:    s.Type,
		}
		if s.Syslog != nil {
			sc.Syslog = &audit.SyslogConfig{
				Network:  s.Syslog.Network,
				Address:  s.Syslog.Address,
				Tag:      s.Syslog.Tag,
				Facility: s.Syslog.Facility,
			}
		}
		if s.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:           s.Webhook.URL,
				Headers:       s.Webhook.Headers,
				Timeout:       time.Duration(s.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     s.Webhook.BatchSize,
				FlushInterval: time.Duration(s.Webhook.FlushInterval) * time.Second,
			}
		}
		if s.File != nil {
			sc.File = &audit.FileConfig{
				Path:       s.File.Path,
				MaxSizeMB:  s.File.MaxSizeMB,
				MaxBackups: s.File.MaxBackups,
			}
		}
		out = append(out, sc)
	}
	return out
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for the staff frontend and customer portal
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// @title           Tarim Tours Back Office API
// @version         1.0.0
// @description     Travel agency back office: clients, applications, staff, and the public tracking portal
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and profiling are served on a dedicated side-channel port (default: 9090) that is separate from the main API server. This keeps the scrape path off the public ingress and avoids rate-limiting middleware. Configure the port with TTB_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics. pprof (if enabled via TTB_TELEMETRY_PROFILING_ENABLED=true) is served on TTB_TELEMETRY_PROFILING_PORT (default: 6060) at the standard /debug/pprof/ paths. Neither endpoint is part of the OpenAPI spec because they are not served by the Gin router.

// Package main is the entry point for the back office server binary. It
// dispatches three subcommands — serve, migrate, and version — via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration
// on startup so freshly deployed containers never need a separate migration
// step.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof is NOT served on the main API listener (Gin router).

	// It only serves on a dedicated internal port when cfg.Telemetry.Profiling.Enabled=true.
	// DefaultServeMux is never passed to the Gin HTTP server.
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tarim-tours/backoffice/internal/api"
	"github.com/tarim-tours/backoffice/internal/auth"
	"github.com/tarim-tours/backoffice/internal/config"
	"github.com/tarim-tours/backoffice/internal/db"
	"github.com/tarim-tours/backoffice/internal/db/models"
	"github.com/tarim-tours/backoffice/internal/db/repositories"
	"github.com/tarim-tours/backoffice/internal/telemetry"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Tarim Tours Back Office v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	// Logger first so everything after it speaks the configured format/level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Refuse to start in production without a JWT secret.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// First run: create the initial admin account so the operator can log in.
	if err := bootstrapAdmin(database, sqlx.NewDb(database, "postgres")); err != nil {
		slog.Warn("admin bootstrap failed", "error", err)
	}

	// Watch the config file so the log level can be changed without a restart.
	config.Watch(configPath, func(newCfg *config.Config) {
		telemetry.SetupLogger(newCfg.Logging.Format, newCfg.Logging.Level)
		slog.Info("logging reconfigured", "level", newCfg.Logging.Level, "format", newCfg.Logging.Format)
	})

	startSidecarServers(cfg)

	router, bgServices, err := api.NewRouter(cfg, database)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Server.GetAddress(), "base_url", cfg.Server.BaseURL)

		var err error
		if cfg.Security.TLS.Enabled {
			slog.Info("TLS enabled", "cert", cfg.Security.TLS.CertFile, "key", cfg.Security.TLS.KeyFile)
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// openDatabase connects, starts the pool stats exporter, and brings the
// schema up to date.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	masked := "****"
	if cfg.Database.Password != "" {
		masked = cfg.Database.Password[:1] + "****"
	}
	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "user", cfg.Database.User,
		"password", masked, "dbname", cfg.Database.Name, "sslmode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	telemetry.StartDBStatsCollector(database)

	if err := db.RunMigrations(database, "up"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if schemaVersion, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database ready", "schema_version", schemaVersion, "dirty", dirty)
	}

	return database, nil
}

// startSidecarServers brings up the metrics and pprof listeners on their own
// ports, away from the public API ingress.
func startSidecarServers(cfg *config.Config) {
	if cfg.Telemetry.Metrics.Enabled {
		addr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go runSidecar("metrics", &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
	}

	if cfg.Telemetry.Profiling.Enabled {
		addr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		// net/http/pprof registers its handlers on http.DefaultServeMux at init time.
		go runSidecar("pprof", &http.Server{
			Addr:         addr,
			Handler:      http.DefaultServeMux, // #nosec G108 -- not the main listener; pprof-only internal port
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		})
	}
}

func runSidecar(name string, srv *http.Server) {
	slog.Info("starting "+name+" server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error(name+" server error", "error", err)
	}
}

// bootstrapAdmin creates the initial admin account when the users table is
// empty. The generated password is printed to the log exactly once; only the
// bcrypt hash is stored, so it must be changed (or noted) on first login.
func bootstrapAdmin(database *sql.DB, sqlxDB *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userRepo := repositories.NewUserRepository(database)
	count, err := userRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	password := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("TTB_BOOTSTRAP_ADMIN_EMAIL")))
	if adminEmail == "" {
		adminEmail = "admin@localhost"
	}

	user := &models.User{
		Email:        adminEmail,
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		IsActive:     true,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	rbacRepo := repositories.NewRBACRepository(sqlxDB)
	role, err := rbacRepo.GetRoleByName(ctx, "admin")
	if err != nil {
		return fmt.Errorf("look up admin role: %w", err)
	}
	if role == nil {
		return fmt.Errorf("admin role not found; migrations may not have run")
	}
	if err := rbacRepo.AssignRole(ctx, user.ID, role.ID); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	slog.Info("created initial admin account", "email", adminEmail, "password", password)
	slog.Info("change this password immediately after the first login")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", schemaVersion, dirty)
	return nil
}

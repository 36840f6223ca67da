package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/screenfleet/server/internal/auth"
	"github.com/screenfleet/server/internal/config"
	"github.com/screenfleet/server/internal/credentials"
	"github.com/screenfleet/server/internal/db"
	"github.com/screenfleet/server/internal/gateway"
	httphandler "github.com/screenfleet/server/internal/http"
	"github.com/screenfleet/server/internal/http/handlers"
	"github.com/screenfleet/server/internal/registration"
	"github.com/screenfleet/server/internal/repo"
)

func main() {
	// Load .env from CWD so it works from repo root (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	keyRepo := repo.NewKeyRepo(database)
	deviceRepo := repo.NewDeviceRepo(database)
	companyRepo := repo.NewCompanyRepo(database)
	attemptRepo := repo.NewAttemptRepo(database)
	heartbeatRepo := repo.NewHeartbeatRepo(database)

	// Registration pipeline
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	issuer := credentials.NewLocalIssuer(jwtService)
	limiter := registration.NewRateLimiter(registration.RateLimiterConfig{
		HourlyMax:     cfg.HourlyAttemptMax,
		DailyMax:      cfg.DailyAttemptMax,
		BlockAfter:    cfg.BlockFailureCount,
		BlockDuration: cfg.BlockDuration,
		Window:        cfg.AttemptRetention,
	})
	defer limiter.Close()
	pipeline := registration.NewPipeline(keyRepo, deviceRepo, companyRepo, attemptRepo, limiter, issuer, cfg.RiskHighThreshold)

	// Fleet gateway and background loops
	registry := gateway.NewConnectionRegistry()
	mailbox := gateway.NewOfflineMailbox(cfg.MailboxTTL, cfg.MailboxMaxPerDevice)
	gw := gateway.New(registry, mailbox, deviceRepo, heartbeatRepo, cfg.MailboxGCPeriod)
	gw.Start()
	defer gw.Close()

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	monitor := gateway.NewHeartbeatMonitor(registry, gw, deviceRepo, heartbeatRepo, cfg.HeartbeatPeriod, cfg.HeartbeatStaleAfter)
	go monitor.Run(loopCtx)
	go registration.PruneAttempts(loopCtx, attemptRepo, cfg.AttemptRetention)

	// Handlers and router
	registrationHandler := handlers.NewRegistrationHandler(pipeline)
	fleetHandler := handlers.NewFleetHandler(gw)
	socketHandler := gateway.NewSocketHandler(gw, jwtService)
	router := httphandler.NewRouter(registrationHandler, fleetHandler, socketHandler, jwtService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	log.Printf("Running migrations from %s", absDir)

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

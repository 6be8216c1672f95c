// Command server runs the LMS gamification HTTP API and its background jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aimd54/lms-gamification/internal/api/gamification"
	"github.com/aimd54/lms-gamification/internal/cache"
	"github.com/aimd54/lms-gamification/internal/config"
	"github.com/aimd54/lms-gamification/internal/repository"
	"github.com/aimd54/lms-gamification/internal/service/leaderboard"
	"github.com/aimd54/lms-gamification/internal/service/progression"
	"github.com/aimd54/lms-gamification/internal/service/scheduler"
	"github.com/aimd54/lms-gamification/internal/service/scoring"
	"github.com/aimd54/lms-gamification/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may be set by the orchestrator.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting LMS gamification server")

	if cfg.Database.Postgres.RunMigrations {
		if err := repository.Migrate(cfg.Database.Postgres.URL(), log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisCache, err := cache.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis")
		}
	}()

	ranks, err := progression.LoadRankTable(cfg.Gamification.RankTablePath)
	if err != nil {
		return fmt.Errorf("failed to load rank table: %w", err)
	}
	resolver, err := progression.NewResolver(ranks, cfg.Gamification.XPPerLevel, cfg.Gamification.MaxLevel)
	if err != nil {
		return fmt.Errorf("failed to build level resolver: %w", err)
	}
	log.Info().
		Int("rank_table_version", ranks.Version()).
		Int("ranks", len(ranks.Tiers())).
		Msg("Rank table loaded")

	rules, err := scoring.RulesFromConfig(&cfg.Gamification)
	if err != nil {
		return fmt.Errorf("invalid gamification rules: %w", err)
	}
	lbOpts, err := leaderboard.OptionsFromConfig(&cfg.Leaderboard, &cfg.Gamification)
	if err != nil {
		return fmt.Errorf("invalid leaderboard options: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	xpRepo := repository.NewXPRepository(db)

	scoringService := scoring.NewService(xpRepo, userRepo, resolver, rules, log.Component("scoring"))
	leaderboardService := leaderboard.NewService(userRepo, xpRepo, resolver, redisCache, lbOpts, log.Component("leaderboard"))

	sched := scheduler.NewService(cfg, leaderboardService, log.Component("scheduler"))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := gamification.NewHandler(scoringService, leaderboardService, userRepo, ranks, cfg.Server.UserHeader, log.Component("api"))
	routerOpts := gamification.RouterOptions{
		Checks: map[string]gamification.HealthChecker{
			"postgres": db,
			"redis":    redisCache,
		},
	}
	if cfg.Metrics.Prometheus.Enabled {
		routerOpts.MetricsPath = cfg.Metrics.Prometheus.Path
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.NewRouter(routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	sched.Stop(shutdownCtx)

	log.Info().Msg("Server stopped")
	return nil
}

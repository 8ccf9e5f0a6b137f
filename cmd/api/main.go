// Package main - точка входа HTTP API CollegeConnect.
//
// API отдаёт:
// - Ручной запуск и предпросмотр обхода ролей (только admin)
// - Изменение годов поступления и выпуска с переоценкой роли
// - Онлайн-присутствие и индикаторы набора текста (если включён Redis)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/collegeconnect/collegeconnect-hub/config"
	"github.com/collegeconnect/collegeconnect-hub/internal/app"
	httpapi "github.com/collegeconnect/collegeconnect-hub/internal/interface/http"
	"github.com/collegeconnect/collegeconnect-hub/internal/interface/http/handlers"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting CollegeConnect API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)

	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, every authenticated request will be rejected")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАВИСИМОСТИ (БД, Redis, шина событий, письма)
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing resources...")
		if err := a.Close(); err != nil {
			log.Error("failed to close resources", logger.Err(err))
		}
	}()

	busErr, err := a.RunBus(ctx)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewHealthChecker(cfg.App.Version)
	health.SetTimeout(cfg.HTTP.HealthCheckTimeout)
	if a.DB != nil {
		health.AddCheck("postgres", handlers.NewPingCheck(a.DB))
	}
	if a.Cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(a.Cache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Addr = cfg.HTTP.Addr()
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMin
	serverCfg.Location = cfg.App.Location
	serverCfg.Debug = cfg.App.Debug

	server, err := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		RunRoleSweepHandler:        a.RunRoleSweep,
		PreviewRoleSweepHandler:    a.PreviewRoleSweep,
		UpdateAcademicYearsHandler: a.UpdateAcademicYears,
		TrackPresenceHandler:       a.TrackPresence,
		GetOnlineNowHandler:        a.GetOnlineNow,
		Tokens:                     handlers.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		HealthChecker:              health,
		Logger:                     log,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("CollegeConnect API is running",
		logger.String("address", serverCfg.Addr),
		logger.Bool("presence", a.TrackPresence != nil),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		runErr = err
	case err := <-busErr:
		if err != nil {
			log.Error("event bus stopped", logger.Err(err))
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Err(err))
	}

	if runErr != nil {
		return runErr
	}
	log.Info("shutdown completed successfully")
	return nil
}

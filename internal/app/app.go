// Package app собирает зависимости CollegeConnect из конфигурации.
//
// Общая сборка используется обоими бинарниками: cmd/api и cmd/worker.
// Каждый из них берёт только нужные части (HTTP-сервер или планировщик),
// но хранилище, шина событий и рассылка писем у них одинаковые.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/collegeconnect/collegeconnect-hub/config"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/eventhandler"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/query"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/notification"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/external/email"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/messaging"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/memory"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/postgres"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/persistence/redis"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App - собранные зависимости процесса.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	Clock  timeutil.Clock

	// DB - nil, если DATABASE_URL не задан (используется память).
	DB *postgres.Connection

	// Cache - nil, если Redis выключен или недоступен.
	Cache *redis.Cache

	Users      user.Repository
	Bus        *messaging.EventBus
	Dispatcher notification.Dispatcher
	Evaluator  *lifecycle.Evaluator
	Planner    *lifecycle.Planner

	RunRoleSweep        *command.RunRoleSweepHandler
	PreviewRoleSweep    *query.PreviewRoleSweepHandler
	UpdateAcademicYears *command.UpdateAcademicYearsHandler

	// Присутствие доступно только с Redis и включённым флагом.
	TrackPresence *command.TrackPresenceHandler
	GetOnlineNow  *query.GetOnlineNowHandler

	closers []func() error
}

// New собирает приложение. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	a := &App{
		Config: cfg,
		Logger: log,
		Clock:  timeutil.NewSystemClock(cfg.App.Location),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ ПОЛЬЗОВАТЕЛЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.setupStorage(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	a.setupRedis()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	a.Bus, err = messaging.NewEventBus(messaging.DefaultConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}
	a.closers = append(a.closers, a.Bus.Close)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПИСЬМА
	// ─────────────────────────────────────────────────────────────────────────
	renderer, err := email.NewRenderer(cfg.Email.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("email renderer: %w", err)
	}
	a.Dispatcher = email.NewDispatcher(emailChannel(cfg.Email.Provider), email.SendGridConfig{
		APIKey:           cfg.Email.SendGridAPIKey,
		FromName:         cfg.Email.FromName,
		FromAddress:      cfg.Email.FromAddress,
		MaxAttempts:      cfg.Email.MaxRetries,
		RetryBaseDelay:   cfg.Email.RetryBaseDelay,
		BreakerThreshold: cfg.Email.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.Email.CircuitBreakerTimeout,
	}, renderer, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЖИЗНЕННЫЙ ЦИКЛ И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	a.setupHandlers()

	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is not set, using in-memory user storage")
		a.Users = memory.NewUserRepository()
		return nil
	}

	if cfg.Database.AutoMigrate {
		log.Info("applying migrations...")
		if err := migrate(cfg.Database.URL); err != nil {
			return err
		}
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.QueryTimeout = cfg.Database.QueryTimeout

	log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = conn
	a.closers = append(a.closers, func() error {
		conn.Close()
		return nil
	})
	a.Users = postgres.NewUserRepository(conn, pgCfg.QueryTimeout)
	log.Info("database connected")
	return nil
}

func migrate(url string) (err error) {
	m, err := postgres.NewMigrator(url)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := m.Up(); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// setupRedis подключает Redis. Недоступный Redis не фатален: без него
// отключаются присутствие и распределённая блокировка обхода.
func (a *App) setupRedis() {
	cfg, log := a.Config.Redis, a.Logger
	if cfg.Disabled {
		log.Info("redis disabled")
		return
	}

	rc := redis.DefaultConfig()
	rc.URL = cfg.URL
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout

	cache, err := redis.NewCache(rc)
	if err != nil {
		log.Warn("redis unavailable, continuing without it", logger.Err(err))
		return
	}
	a.Cache = cache
	a.closers = append(a.closers, cache.Close)
	log.Info("redis connected")
}

func (a *App) setupHandlers() {
	cfg, log := a.Config, a.Logger
	features := cfg.Features

	a.Evaluator = lifecycle.NewEvaluator(cfg.Academic.GraduationCutoffMonth)
	a.Planner = lifecycle.NewPlanner(a.Users, a.Evaluator)

	var lock command.SweepLock
	if a.Cache != nil && features.IsEnabled(config.FeatureSweepLock, nil) {
		lock = redis.NewSweepLock(a.Cache, cfg.Scheduler.RoleSweepLockTTL)
	}

	notify := features.IsEnabled(config.FeatureNotifyRoleChange, nil)

	a.RunRoleSweep = command.NewRunRoleSweepHandler(
		a.Planner, a.Users, a.Dispatcher, a.Bus, lock, a.Clock, log,
		command.RunRoleSweepHandlerConfig{NotifyRoleChanges: notify},
	)
	a.PreviewRoleSweep = query.NewPreviewRoleSweepHandler(a.Planner, a.Clock, log)
	a.UpdateAcademicYears = command.NewUpdateAcademicYearsHandler(
		a.Users, a.Evaluator, a.Bus, a.Clock, log,
		command.UpdateAcademicYearsHandlerConfig{
			AutoTransition: true,
			Rollout: func(userID string) bool {
				return features.IsEnabled(config.FeatureLifecycleAutoTransition, &config.FeatureContext{UserID: userID})
			},
		},
	)

	if a.Cache != nil && features.IsEnabled(config.FeaturePresenceTracking, nil) {
		registry := redis.NewPresenceRegistry(a.Cache, a.Clock, cfg.Presence.ConnectionTTL, cfg.Presence.TypingTTL)
		a.TrackPresence = command.NewTrackPresenceHandler(registry, a.Bus, a.Clock, log)
		a.GetOnlineNow = query.NewGetOnlineNowHandler(registry)
	}

	onRoleChanged := eventhandler.NewOnRoleChangedHandler(a.Users, a.Dispatcher, log,
		eventhandler.RoleChangedConfig{NotifyRoleChanges: notify},
	)
	a.Bus.Subscribe(shared.EventRoleChanged, "notify_role_changed", func(ctx context.Context, env shared.EventEnvelope) error {
		evt, err := messaging.DecodeRoleChanged(env)
		if err != nil {
			return err
		}
		return onRoleChanged.Handle(ctx, evt)
	})
}

// RunBus запускает обработку событий в фоне и ждёт готовности роутера.
// Возвращённый канал получает ошибку, когда роутер остановится.
func (a *App) RunBus(ctx context.Context) (<-chan error, error) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Bus.Run(ctx)
	}()
	select {
	case <-a.Bus.Running():
		return errCh, nil
	case err := <-errCh:
		return nil, fmt.Errorf("event bus: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func emailChannel(provider string) notification.ChannelType {
	if provider == "sendgrid" {
		return notification.ChannelEmail
	}
	return notification.ChannelLog
}

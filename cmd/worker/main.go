// Package main - точка входа для фоновых процессов (Worker) CollegeConnect.
//
// Worker отвечает за периодические задачи:
// - Ежемесячный обход ролей: студенты последнего курса становятся senior,
//   выпускники становятся alumni
// - Отправка писем о смене роли
//
// Обход можно запустить вручную один раз: worker -once [-date 2025-08-01].
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collegeconnect/collegeconnect-hub/config"
	"github.com/collegeconnect/collegeconnect-hub/internal/app"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/scheduler"
	"github.com/collegeconnect/collegeconnect-hub/internal/infrastructure/scheduler/jobs"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	once := flag.Bool("once", false, "run a single role sweep and exit")
	date := flag.String("date", "", "sweep date YYYY-MM-DD (with -once, default: today)")
	flag.Parse()

	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once, *date); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool, date string) error {
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
	}).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting CollegeConnect worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)

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
	// 4. РАЗОВЫЙ ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	if once {
		return runOnce(ctx, a, date)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, worker has nothing to do")
		return nil
	}

	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Clock:    a.Clock,
		Timezone: cfg.App.Location,
	})

	schedule, err := scheduler.ParseCron(cfg.Scheduler.RoleSweepCron, cfg.App.Location)
	if err != nil {
		return fmt.Errorf("role sweep schedule: %w", err)
	}
	job := jobs.NewRoleTransitionJob(a.RunRoleSweep, log, jobs.RoleTransitionConfig{
		Timeout: cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(job, schedule); err != nil {
		return fmt.Errorf("register %s: %w", job.Name(), err)
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if r.Error != nil {
			log.Error("job failed", logger.String("job", r.JobName), logger.Err(r.Error))
		}
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("CollegeConnect worker is running",
		logger.String("role_sweep_cron", cfg.Scheduler.RoleSweepCron),
	)

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-busErr:
		if err != nil {
			log.Error("event bus stopped", logger.Err(err))
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()

	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Error("scheduler stop failed", logger.Err(err))
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("shutdown timeout exceeded, jobs may be interrupted")
	}

	log.Info("shutdown completed successfully")
	return nil
}

// runOnce выполняет один обход и печатает итог.
func runOnce(ctx context.Context, a *app.App, date string) error {
	var today time.Time
	if date != "" {
		t, err := timeutil.ParseDate(date, a.Config.App.Location)
		if err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
		today = t
	}

	res, err := a.RunRoleSweep.Handle(ctx, command.RunRoleSweepCommand{
		Today:       today,
		TriggeredBy: command.TriggerManual,
	})
	if err != nil {
		return fmt.Errorf("role sweep: %w", err)
	}

	s := res.Summary
	a.Logger.Info("role sweep finished",
		logger.String("run_id", res.RunID),
		logger.Int("students_to_senior", s.StudentsToSenior),
		logger.Int("seniors_to_alumni", s.SeniorsToAlumni),
		logger.Int("overdue", s.Overdue),
		logger.Int("total_upgraded", s.TotalUpgraded),
		logger.Int("failed", s.Failed),
	)
	return nil
}

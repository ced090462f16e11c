package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hotdash/opsgate/pkg/approval"
	"github.com/hotdash/opsgate/pkg/archive"
	"github.com/hotdash/opsgate/pkg/automation"
	"github.com/hotdash/opsgate/pkg/config"
	"github.com/hotdash/opsgate/pkg/escalation"
	"github.com/hotdash/opsgate/pkg/executor"
	"github.com/hotdash/opsgate/pkg/observability"
	"github.com/hotdash/opsgate/pkg/sla"
	"github.com/hotdash/opsgate/pkg/store"
	"github.com/hotdash/opsgate/pkg/triage"
)

const lockTTL = 30 * time.Second

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	rules   *config.Rules
	logger  *slog.Logger
	store   store.ApprovalStore
	redis   *redis.Client
	machine *approval.Machine
	closers []func() error
}

// newApp loads configuration and the rule pack. Configuration problems are
// returned as *config.ConfigurationError.
func newApp(stderr io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.InitLogging(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "LOG_LEVEL", Reason: err.Error()}
	}
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	logger.Debug("opsgate configured", "store", cfg.StoreBackend(), "rules_version", rules.Version.String())
	return &app{cfg: cfg, rules: rules, logger: logger}, nil
}

// open connects the approval store and, when REDIS_ADDR is set, the
// distributed request lock, and builds the approval machine over them.
func (a *app) open(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	a.machine = approval.NewMachine(a.store).WithLogger(a.logger.With("component", "approval"))

	if a.cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, a.redis.Close)
		locker := store.NewRedisLockerFromClient(a.redis, lockTTL)
		if err := locker.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
		}
		a.machine.WithLocker(locker)
	}
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreBackend() {
	case "postgres":
		s, err := store.OpenPostgres(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	case "sqlite":
		s, err := store.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	default:
		a.store = store.NewMemoryStore()
	}
	return nil
}

// Close releases the store and redis connections in reverse order.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close failed", "error", err)
	}
}

func (a *app) classifier() *triage.Classifier {
	return triage.New(triage.WithTargets(a.rules.Targets))
}

func (a *app) monitor() *sla.Monitor {
	return sla.NewMonitor(sla.WithTargets(a.rules.Targets))
}

func (a *app) escalation() *escalation.Engine {
	return escalation.NewEngine(a.rules.EscalationOptions()...)
}

func (a *app) automation() (*automation.Engine, error) {
	return automation.NewEngine(a.rules.Thresholds)
}

// executor posts to EXECUTOR_URL when set and is a dry run otherwise.
func (a *app) executor() executor.Executor {
	if a.cfg.ExecutorURL == "" {
		return executor.NewDryRun()
	}
	return executor.NewStepExecutor("webhook", executor.NewHTTPDriver(a.cfg.ExecutorURL, 30*time.Second))
}

func (a *app) archiveStore(ctx context.Context) (archive.Store, error) {
	return archive.NewStore(ctx, archive.Config{
		Backend: a.cfg.ArchiveBackend,
		Dir:     a.cfg.ArchiveDir,
		Bucket:  a.cfg.ArchiveBucket,
		Prefix:  a.cfg.ArchivePrefix,
	})
}

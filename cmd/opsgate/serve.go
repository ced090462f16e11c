package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hotdash/opsgate/pkg/api"
	"github.com/hotdash/opsgate/pkg/archive"
	"github.com/hotdash/opsgate/pkg/contracts"
	"github.com/hotdash/opsgate/pkg/notify"
	"github.com/hotdash/opsgate/pkg/observability"
	"github.com/hotdash/opsgate/pkg/pipeline"
	"github.com/hotdash/opsgate/pkg/scheduler"
	"github.com/hotdash/opsgate/pkg/sources"
)

const shutdownTimeout = 15 * time.Second

func runServe(args []string, _, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	port := cmd.String("port", "", "Listen port (overrides PORT)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close()
	if err := a.open(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *port != "" {
		a.cfg.Port = *port
	}

	if err := serve(ctx, a); err != nil {
		a.logger.ErrorContext(ctx, "server stopped", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, a *app) error {
	telemetry, err := observability.New(ctx, observability.Config{
		ServiceVersion: version,
		Environment:    "production",
		OTLPEndpoint:   a.cfg.OTelEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		ExportInterval: 15 * time.Second,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = telemetry.Shutdown(sctx)
	}()

	sinks := []notify.Sink{notify.NewLogSink(a.logger.With("component", "notify"))}
	if len(a.cfg.KafkaBrokers) > 0 {
		k, err := notify.NewKafkaSink(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer func() { _ = k.Close() }()
		sinks = append(sinks, k)
	}
	disp := notify.NewDispatcher(sinks, notify.WithRate(a.cfg.NotifyRate, max(1, int(a.cfg.NotifyRate))))
	disp.Start(ctx)
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = disp.Close(cctx)
		st := disp.Stats()
		a.logger.Info("notifications drained", "sent", st.Sent, "failed", st.Failed, "dropped", st.Dropped)
	}()

	a.machine.
		OnTransition(telemetry.ApprovalHook()).
		OnTransition(func(_ context.Context, op string, req *contracts.ApprovalRequest) {
			disp.Notify(notify.ApprovalEvent(op, req))
		})

	engine, err := a.automation()
	if err != nil {
		return err
	}
	archiveStore, err := a.archiveStore(ctx)
	if err != nil {
		return err
	}
	exporter := archive.NewExporter(archiveStore)

	var pollers []*scheduler.Runner
	opts := []api.Option{
		api.WithExecutor(a.executor()),
		api.WithClassifier(a.classifier()),
		api.WithMonitor(a.monitor()),
		api.WithEscalation(a.escalation()),
		api.WithRateLimit(a.cfg.APIRateLimit, a.cfg.APIRateBurst),
		api.WithTelemetry(telemetry),
	}
	if a.redis != nil {
		opts = append(opts, api.WithIdempotency(api.NewRedisIdempotencyStore(a.redis, "opsgate:idem:", 24*time.Hour)))
	} else {
		opts = append(opts, api.WithIdempotency(api.NewMemoryIdempotencyStore(24*time.Hour)))
	}

	if a.cfg.WorkItemsFile != "" {
		job := pipeline.NewSLAJob(sources.FileConversations{Path: a.cfg.WorkItemsFile},
			pipeline.WithClassifier(a.classifier()),
			pipeline.WithMonitor(a.monitor()),
			pipeline.WithEscalation(a.escalation()),
			pipeline.WithSLANotifier(disp),
		)
		r := scheduler.New("sla", a.cfg.SLAPollInterval, tracked(telemetry, "sla", func(ctx context.Context) error {
			res, err := job.Run(ctx)
			telemetry.RecordSLAReport(ctx, res.Report)
			telemetry.RecordEscalations(ctx, res.Escalations)
			return err
		}), scheduler.WithImmediate())
		pollers = append(pollers, r)
		opts = append(opts, api.WithJob("sla", r))
	}
	if a.cfg.MetricsFile != "" {
		job := pipeline.NewScanJob(sources.FileMetrics{Path: a.cfg.MetricsFile}, engine, a.machine,
			pipeline.WithScanNotifier(disp))
		r := scheduler.New("scan", a.cfg.ScanPollInterval, tracked(telemetry, "scan", func(ctx context.Context) error {
			_, err := job.Run(ctx)
			return err
		}))
		pollers = append(pollers, r)
		opts = append(opts, api.WithJob("scan", r))
	}
	exportJob := scheduler.New("export", 24*time.Hour, tracked(telemetry, "export", func(ctx context.Context) error {
		_, err := exporter.ExportApplied(ctx, a.store)
		return err
	}))
	pollers = append(pollers, exportJob)
	opts = append(opts, api.WithJob("export", exportJob))

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           api.NewServer(a.machine, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "listening", "addr", srv.Addr, "store", a.cfg.StoreBackend(), "pollers", len(pollers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Group(gctx, pollers...)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// tracked wraps a job in a span and the operation counters.
func tracked(p *observability.Provider, name string, job scheduler.Job) scheduler.Job {
	return func(ctx context.Context) error {
		ctx, finish := p.TrackOperation(ctx, "job."+name, observability.AttrJob.String(name))
		err := job(ctx)
		finish(err)
		return err
	}
}

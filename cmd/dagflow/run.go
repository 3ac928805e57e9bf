package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/dagflow/internal/runtime/config"
	"github.com/drblury/dagflow/internal/runtime/flow"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/metrics"
	"github.com/drblury/dagflow/internal/runtime/router"
	"github.com/drblury/dagflow/internal/runtime/scheduler"
	"github.com/drblury/dagflow/internal/runtime/stage"
	"github.com/drblury/dagflow/internal/runtime/status"
	"github.com/drblury/dagflow/internal/runtime/telemetry"
	"github.com/drblury/dagflow/internal/runtime/tracing"
	"github.com/drblury/dagflow/transport"
)

const flowLabel = "hello"

// runOptions holds the run flags that are not part of config.Config.
type runOptions struct {
	Name      string
	Interval  time.Duration
	Runs      int
	Subscribe string
	Poison    string
	WatchDir  string
	Pattern   string
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo flow under the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := parseRunOptions(cmd)
			if err != nil {
				return err
			}
			log := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			log.Info("Loaded configuration", logging.LogFields{"config": cfg.String()})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts, cmd.OutOrStdout(), log)
		},
	}

	cmd.Flags().String("name", "World", "Name greeted when a payload carries none")
	cmd.Flags().Duration("interval", time.Second, "Interval between scheduled runs")
	cmd.Flags().Int("runs", 3, "Number of scheduled runs, -1 for unbounded, 0 to disable")
	cmd.Flags().String("subscribe", "", "Also feed the flow from this topic of the configured transport")
	cmd.Flags().String("poison", "", "Topic receiving deliveries the flow rejected")
	cmd.Flags().String("watch", "", "Also feed the flow with files written to this directory")
	cmd.Flags().String("pattern", "", "Glob the watched file names must match")
	return cmd
}

func parseRunOptions(cmd *cobra.Command) (runOptions, error) {
	var opts runOptions
	var errs []error
	var err error
	opts.Name, err = cmd.Flags().GetString("name")
	errs = append(errs, err)
	opts.Interval, err = cmd.Flags().GetDuration("interval")
	errs = append(errs, err)
	opts.Runs, err = cmd.Flags().GetInt("runs")
	errs = append(errs, err)
	opts.Subscribe, err = cmd.Flags().GetString("subscribe")
	errs = append(errs, err)
	opts.Poison, err = cmd.Flags().GetString("poison")
	errs = append(errs, err)
	opts.WatchDir, err = cmd.Flags().GetString("watch")
	errs = append(errs, err)
	opts.Pattern, err = cmd.Flags().GetString("pattern")
	errs = append(errs, err)
	return opts, errors.Join(errs...)
}

// run wires the demo flow, its triggers and the optional HTTP surfaces, and
// blocks until every trigger stopped and the flow drained.
func run(ctx context.Context, cfg config.Config, opts runOptions, out io.Writer, log logging.ServiceLogger) (err error) {
	tracers := tracing.Multi{tracing.NewLogTracer(log)}
	if cfg.TraceFile != "" {
		file, err := tracing.OpenFile(cfg.TraceFile)
		if err != nil {
			return err
		}
		tracers = append(tracers, file)
	}
	provider, shutdown, err := telemetry.Setup(ctx, telemetry.FromConfig(cfg))
	if err != nil {
		return err
	}
	if cfg.OTLPEndpoint != "" {
		tracers = append(tracers, tracing.NewOtelTracer(provider))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, tracers.Close(), shutdown(shutdownCtx))
	}()

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	if err := collector.Register(); err != nil {
		return err
	}

	f, err := flow.New(flowLabel, demoGraph(out),
		flow.WithConfig(cfg),
		flow.WithLogger(log),
		flow.WithTracer(tracers),
		flow.WithHooks(collector.Hooks(flowLabel).Merge(stage.LoggingHooks(log))),
	)
	if err != nil {
		return err
	}
	collector.Watch(f)
	// Workers outlive the signal context; the deferred Close stops them.
	if err := f.Init(context.WithoutCancel(ctx), stage.Params{"name": opts.Name}); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	sched := scheduler.New(scheduler.WithConfig(cfg), scheduler.WithLogger(log))
	if opts.Runs != 0 {
		if err := sched.AddFlow(f, scheduler.NewIntervalTrigger(opts.Interval, opts.Runs)); err != nil {
			return err
		}
	}
	if opts.Subscribe != "" {
		tr, buildErr := transport.Build(ctx, &cfg, logging.NewWatermillAdapter(log))
		if buildErr != nil {
			return buildErr
		}
		defer func() { err = errors.Join(err, tr.Close()) }()
		chain := router.DefaultMiddlewares(log)
		if opts.Poison != "" {
			poison, err := router.PoisonQueue(tr.Publisher, opts.Poison, nil)
			if err != nil {
				return err
			}
			chain = append([]router.Middleware{poison}, chain...)
		}
		if cfg.OTLPEndpoint != "" {
			chain = append([]router.Middleware{router.Tracing(provider)}, chain...)
		}
		trigger := &router.RouterTrigger{
			Subscriber:  tr.Subscriber,
			Topic:       opts.Subscribe,
			Middlewares: chain,
			Metrics:     registry,
			Envelope:    true,
			Logger:      log,
		}
		if err := sched.AddFlow(f, trigger); err != nil {
			return err
		}
	}
	if opts.WatchDir != "" {
		trigger := &scheduler.WatchTrigger{Dir: opts.WatchDir, Pattern: opts.Pattern, Logger: log}
		if err := sched.AddFlow(f, trigger); err != nil {
			return err
		}
	}

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	servers, serveCtx := errgroup.WithContext(serveCtx)
	if cfg.StatusEnabled {
		handler := status.NewHandler([]status.Flow{f},
			status.WithCORSOrigins(cfg.StatusCORSAllowedOrigins),
			status.WithLogger(log),
			status.WithTriggers(sched),
			status.WithMetrics(registry),
		)
		servers.Go(func() error {
			return status.Serve(serveCtx, fmt.Sprintf(":%d", cfg.StatusPort), handler, log)
		})
	}
	if cfg.MetricsEnabled {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		servers.Go(func() error {
			return status.Serve(serveCtx, fmt.Sprintf(":%d", cfg.MetricsPort), handler, log)
		})
	}

	if err := sched.Execute(ctx); err != nil {
		return err
	}
	schedErr := sched.Wait()
	drainErr := f.Wait(ctx)
	if errors.Is(drainErr, context.Canceled) || drainErr == f.Err() {
		drainErr = nil
	}
	stopServing()
	return errors.Join(schedErr, drainErr, f.Err(), servers.Wait())
}

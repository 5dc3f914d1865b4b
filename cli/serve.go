package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cytodx/db"
	"cytodx/errdefs"
	cxhttp "cytodx/http"
	"cytodx/monitoring"
	"cytodx/pipeline"
	"cytodx/serving"
	"cytodx/store"
)

const shutdownTimeout = 10 * time.Second

func (c *CLI) newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.HTTP.Port = port
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides http.port)")
	return cmd
}

func (c *CLI) serve(ctx context.Context) error {
	cfg, logger := c.cfg, c.logger
	metrics := monitoring.NewMetrics()
	st := store.New(cfg.Model.Dir, store.WithLogger(logger), store.WithRetain(cfg.Model.Keep))

	// stream is assigned before the first reload, so the hook never sees it nil afterwards.
	var stream *monitoring.Stream
	registry, err := serving.NewRegistry(st, cfg.Serving.CacheSize,
		serving.WithRegistryLogger(logger),
		serving.WithReloadHook(func(p *serving.Predictor) {
			meta := p.Metadata()
			metrics.ModelLoaded(p.Version(), string(meta.Algorithm), meta.Metrics.Accuracy)
			if stream != nil {
				stream.ModelLoaded(p)
			}
		}))
	if err != nil {
		return err
	}
	stream = monitoring.NewStream(registry, metrics, logger, cfg.HTTP.AllowedOrigins)
	go stream.Run(ctx)

	if _, err := registry.Reload(); err != nil {
		if !errors.Is(err, errdefs.ErrArtifactNotFound) {
			return err
		}
		logger.Warn("no model published yet, predictions unavailable until reload", zap.String("model_dir", st.Dir()))
	}

	runs, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer runs.Close()

	runner := pipeline.NewRunner(st,
		pipeline.WithRunLog(runs),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger))

	reload := func() {
		if _, err := registry.Reload(); err != nil {
			logger.Warn("model reload failed", zap.Error(err))
		}
	}

	if cfg.Serving.Watch {
		watcher, err := serving.NewWatcher(st.Dir(), reload, logger)
		if err != nil {
			return err
		}
		go watcher.Run(ctx)
	}

	if cfg.Training.Schedule != "" {
		job, err := jobFromConfig(cfg)
		if err != nil {
			return err
		}
		after := func(*pipeline.Result) {
			if !cfg.Serving.Watch {
				reload()
			}
		}
		scheduler, err := pipeline.NewScheduler(runner, cfg.Training.Schedule, job, after, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	server := cxhttp.NewServer(cxhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, cxhttp.Deps{
		Registry: registry,
		Runs:     runs,
		Runner:   runner,
		TrainJob: func() (pipeline.Job, error) { return jobFromConfig(cfg) },
		Stream:   stream,
		Metrics:  metrics,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return err
	}
	logger.Info("exiting")
	return nil
}

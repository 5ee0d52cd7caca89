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

	cli "github.com/urfave/cli/v3"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/diag"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/internal/logger"
	"github.com/cschleiden/go-wfnet/worker"
)

func serveCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "definitions",
			Aliases:  []string{"d"},
			Usage:    "Definition files or directories",
			Required: true,
			Sources:  cli.EnvVars("WFNET_DEFINITIONS"),
		},
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "Listen address of the diagnostics API",
			Value:   ":8080",
			Sources: cli.EnvVars("WFNET_ADDR"),
		},
		&cli.IntFlag{
			Name:    "pollers",
			Value:   worker.DefaultOptions.Pollers,
			Sources: cli.EnvVars("WFNET_POLLERS"),
		},
		&cli.DurationFlag{
			Name:    "polling-interval",
			Value:   worker.DefaultOptions.PollingInterval,
			Sources: cli.EnvVars("WFNET_POLLING_INTERVAL"),
		},
		&cli.StringFlag{
			Name:    "schedule",
			Usage:   "Cron expression for additional scheduler ticks",
			Sources: cli.EnvVars("WFNET_SCHEDULE"),
		},
		&cli.IntFlag{
			Name:    "instance-cache-size",
			Usage:   "Number of workflow instances kept in memory, 0 disables the cache",
			Sources: cli.EnvVars("WFNET_INSTANCE_CACHE_SIZE"),
		},
	}

	flags = append(flags, backendFlags()...)
	flags = append(flags, tracingFlags()...)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Process pending work and serve the diagnostics API",
		Flags:  flags,
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(os.Stderr, cmd.Root().String("log-level"), cmd.Root().String("log-format"))

	r, defs, err := loadRegistry(cmd.StringSlice("definitions"))
	if err != nil {
		return err
	}

	tp, shutdown, err := tracerProvider(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("flushing spans", "error", err)
		}
	}()

	b, err := openBackend(ctx, cmd, backend.WithLogger(log), backend.WithTracerProvider(tp))
	if err != nil {
		return fmt.Errorf("opening backend: %w", err)
	}
	defer b.Close()

	var opts []engine.Option
	if size := cmd.Int("instance-cache-size"); size > 0 {
		opts = append(opts, engine.WithInstanceCache(size, engine.DefaultOptions.InstanceCacheExpiration))
	}

	e := engine.New(b, r, opts...)

	w := worker.New(e, &worker.Options{
		Pollers:         cmd.Int("pollers"),
		PollingInterval: cmd.Duration("polling-interval"),
		TickTimeout:     worker.DefaultOptions.TickTimeout,
		Schedule:        cmd.String("schedule"),
		CacheEviction:   true,
	})
	if err := w.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cmd.String("addr"),
		Handler:           diag.NewServeMux(e, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutting down diagnostics API", "error", err)
		}
	}()

	log.Info("serving", "addr", srv.Addr, "backend", cmd.String("backend"), "definitions", len(defs))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		_ = w.WaitForCompletion()
		return fmt.Errorf("serving diagnostics API: %w", err)
	}

	return w.WaitForCompletion()
}

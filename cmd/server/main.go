package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/Tyrowin/roomcast/internal/hub"
	"github.com/Tyrowin/roomcast/internal/metrics"
	"github.com/Tyrowin/roomcast/internal/server"
	"github.com/Tyrowin/roomcast/internal/telemetry"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := server.LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log := server.NewLogger(cfg.LogLevel)
	if envErr != nil {
		log.Debug("No .env file found, using environment variables")
	}
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
	log.Info("Server exited")
}

func run(cfg *server.Config, log *logrus.Logger) error {
	log.Info("Starting roomcast server...")

	collector := metrics.New()
	h := hub.New(hub.WithLogger(log), hub.WithObserver(collector))

	opts := []server.Option{server.WithLogger(log), server.WithMetrics(collector)}
	var sim *telemetry.Simulator
	if cfg.Telemetry.Enabled {
		sim = telemetry.New(h, cfg.Telemetry.Namespace, cfg.Telemetry.Interval,
			telemetry.WithLogger(log.WithField("component", "telemetry")))
		opts = append(opts, server.WithRoomPolicy(server.AllowRooms(sim.Namespace(), sim.Rooms()...)))
	}
	srv := server.New(cfg, h, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg conc.WaitGroup
	if sim != nil {
		wg.Go(func() { sim.Run(ctx) })
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		log.Warn("Listener stopped before shutdown signal")
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	wg.Wait()
	return err
}

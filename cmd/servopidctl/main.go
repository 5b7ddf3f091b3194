package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hipsterbrown/servopid/internal/api"
	"github.com/hipsterbrown/servopid/internal/config"
	"github.com/hipsterbrown/servopid/internal/logging"
	"github.com/hipsterbrown/servopid/model"
	"github.com/hipsterbrown/servopid/servopid"
	"github.com/hipsterbrown/servopid/transports"
)

const syncTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "servopidctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("servopidctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	target := fs.String("target", "", "connection target: Mock, Simulator or a serial port")
	listPorts := fs.Bool("list-ports", false, "list serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := logging.ConfigureRuntime("servopidctl")

	if *listPorts {
		return printPorts()
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *target != "" {
		cfg.Target = *target
	}

	dialer := transports.Dialer{
		Serial: transports.SerialConfig{BaudRate: cfg.BaudRate, Logger: &logger},
	}
	engine := servopid.NewEngine(servopid.EngineConfig{
		Dialer:       dialer.Dial,
		PollInterval: cfg.PollInterval,
		Logger:       &logger,
		Metrics:      servopid.NewMetrics(prometheus.DefaultRegisterer),
	})
	defer engine.Close()

	app := model.NewApp()
	app.SetPollTelemetry(cfg.PollTelemetry)
	app.SetPidEnabled(cfg.PidEnabled)
	app.SetTarget(cfg.Target)

	// A failed connect is not fatal; the target can be changed over HTTP.
	if err := engine.SetModel(app); err != nil {
		logger.Warn().Err(err).Str("target", cfg.Target).Msg("Initial connect failed")
	}

	if cfg.Profile != "" {
		if err := applyProfile(engine, app, cfg.Profile, logger); err != nil {
			logger.Error().Err(err).Str("profile", cfg.Profile).Msg("Profile not applied")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HTTPAddr == "" {
		logger.Info().Msg("HTTP disabled, running until interrupted")
		<-ctx.Done()
		return nil
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(api.Config{
			Engine: engine,
			App:    app,
			Dialer: dialer,
			Logger: logger,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("Listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// applyProfile waits for discovery to finish and writes the profile's
// tunables through the engine.
func applyProfile(engine *servopid.Engine, app *model.App, path string, logger zerolog.Logger) error {
	profile, err := servopid.LoadProfile(path)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(syncTimeout)
	for engine.Phase() != servopid.PhaseSynced {
		if time.Now().After(deadline) {
			return fmt.Errorf("controller not synced after %v", syncTimeout)
		}
		time.Sleep(servopid.DefaultPollInterval)
	}

	var applied int
	var applyErr error
	if err := engine.Invoke(func() { applied, applyErr = profile.Apply(app) }); err != nil {
		return err
	}
	logger.Info().Int("channels", applied).Str("profile", path).Msg("Profile applied")
	return applyErr
}

func printPorts() error {
	ports, err := transports.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%s  USB %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
			continue
		}
		fmt.Println(p.Name)
	}
	return nil
}

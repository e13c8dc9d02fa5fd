package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"slippi-tracker/internal/config"
	"slippi-tracker/internal/constants"
	"slippi-tracker/internal/events"
	fxmodules "slippi-tracker/internal/fx"
	"slippi-tracker/internal/server"
	"slippi-tracker/internal/tracker"
)

func main() {
	optionsFile := pflag.StringP("config", "c", "", "YAML file with tracker options")
	envFile := pflag.String("env-file", "", "dotenv file to load (default .env)")
	logLevel := pflag.String("log-level", "", "log level (debug, info, warn, error)")
	pflag.Parse()

	setEnv("OPTIONS_FILE", *optionsFile)
	setEnv("ENV_FILE", *envFile)
	setEnv("LOG_LEVEL", *logLevel)

	fx.New(
		fxmodules.Module,
		fx.Invoke(run),
	).Run()
}

func setEnv(key, value string) {
	if value != "" {
		os.Setenv(key, value)
	}
}

func run(
	lc fx.Lifecycle,
	cfg *config.Config,
	tr *tracker.Tracker,
	srv *server.Server,
	bus *events.Bus,
	logger zerolog.Logger,
) {
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			tr.Start()
			if cfg.Options.PathToReplays != "" {
				go func() {
					if err := tr.InitTracker(context.Background(), cfg.Options); err != nil {
						logger.Error().Err(err).Msg("tracker init failed")
					}
				}()
			}

			go func() {
				logger.Info().Str("addr", httpSrv.Addr).Msg("server starting")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}
			if err := tr.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("tracker did not stop cleanly")
			}
			bus.Close()
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}

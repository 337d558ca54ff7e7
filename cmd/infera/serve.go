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

	"github.com/spf13/cobra"

	"infera/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr           string
		maxBody        int64
		predictTimeout time.Duration
		corsOrigins    string
		httpLogLevel   string
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API",
		Example: "  infera serve --addr :8080 --autoload-dir ~/models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("max-body-bytes") {
				cfg.MaxBodyBytes = maxBody
			}
			if origins := splitCSV(corsOrigins); len(origins) > 0 {
				cfg.CORSEnabled = true
				cfg.CORSAllowedOrigin = origins
			}

			rt, err := a.openRuntime(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					a.log.Warn().Err(err).Msg("close runtime")
				}
			}()

			httpapi.SetLogger(a.log)
			if httpLogLevel != "" {
				httpapi.SetDefaultLogLevel(httpLogLevel)
			}
			httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
			httpapi.SetPredictTimeout(predictTimeout)
			httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigin, nil, nil)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			httpapi.SetBaseContext(ctx)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(httpapi.FromRuntime(rt)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("event", "listen").Str("addr", cfg.Addr).Str("cache_dir", cfg.CacheDir).Msg("serving")
				fmt.Fprintf(cmd.ErrOrStderr(), "infera listening on %s (cache: %s)\n", cfg.Addr, cfg.CacheDir)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("graceful shutdown")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "HTTP listen address (defaults INFERA_ADDR or :8080)")
	f.Int64Var(&maxBody, "max-body-bytes", 0, "Maximum request body size (default 1 MiB)")
	f.DurationVar(&predictTimeout, "predict-timeout", 0, "Per-request predict timeout (0 disables)")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (enables CORS)")
	f.StringVar(&httpLogLevel, "http-log-level", "", "Default per-request log level: off|error|info|debug")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"infera/internal/boundary"
	"infera/internal/cache"
	"infera/internal/config"
)

// app carries the resolved configuration shared by every subcommand.
type app struct {
	cfgPath string
	cfg     config.Config
	log     zerolog.Logger
	out     io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout, log: zerolog.Nop()}
	var (
		cacheDir    string
		cacheLimit  int64
		logLevel    string
		logFormat   string
		autoloadDir string
		engine      string
	)
	root := &cobra.Command{
		Use:           "infera",
		Short:         "ONNX model registry, inference engine and remote-model cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", os.Getenv("INFERA_CONFIG"), "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&cacheDir, "cache-dir", "", "Remote-model cache directory (defaults INFERA_CACHE_DIR or $TMPDIR/infera_cache)")
	pf.Int64Var(&cacheLimit, "cache-size-limit", 0, "Cache size limit in bytes (defaults INFERA_CACHE_SIZE_LIMIT or 1 GiB)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults INFERA_LOG_LEVEL or warn)")
	pf.StringVar(&logFormat, "log-format", "", "Log format: json|console")
	pf.StringVar(&autoloadDir, "autoload-dir", "", "Directory of .onnx files loaded at startup")
	pf.StringVar(&engine, "engine", "", "GoMLX engine name (empty picks the pure Go engine)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(a.cfgPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		flags := cmd.Flags()
		if flags.Changed("cache-dir") {
			cfg.CacheDir = cacheDir
		}
		if flags.Changed("cache-size-limit") && cacheLimit > 0 {
			cfg.CacheSizeLimit = cacheLimit
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = strings.ToLower(logLevel)
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if flags.Changed("autoload-dir") {
			cfg.AutoloadDir = autoloadDir
		}
		if flags.Changed("engine") {
			cfg.Engine = engine
		}
		a.cfg = cfg
		a.log = cfg.Logger(cmd.ErrOrStderr())
		a.out = cmd.OutOrStdout()
		return nil
	}

	root.AddCommand(
		newServeCmd(a),
		newPredictCmd(a),
		newInspectCmd(a),
		newModelsCmd(a),
		newAutoloadCmd(a),
		newCacheCmd(a),
		newVersionCmd(a),
		newDoctorCmd(a),
	)
	return root
}

func (a *app) openRuntime(cfg config.Config) (*boundary.Runtime, error) {
	return boundary.Open(cfg, &a.log)
}

func (a *app) openCache() (*cache.Cache, error) {
	return cache.Open(cache.Options{
		Dir:           a.cfg.CacheDir,
		SizeLimit:     a.cfg.CacheSizeLimit,
		Timeout:       a.cfg.HTTPTimeout(),
		RetryAttempts: a.cfg.RetryAttempts,
		RetryDelay:    a.cfg.RetryDelay(),
		MaxAge:        a.cfg.CacheMaxAge(),
		Logger:        &a.log,
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitCSV splits a comma-separated list, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

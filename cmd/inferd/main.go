package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"raggate/internal/config"
	"raggate/internal/manager"
	"raggate/internal/registry"
	"raggate/internal/rpcapi"
	"raggate/pkg/types"
)

func main() {
	var (
		addr         string
		modelsDir    string
		defaultModel string
		configPath   string
		logLevel     string
		pretty       bool
	)

	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Inference daemon: owns model lifecycle and serves streaming chat and embeddings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel, pretty)

			cfg := config.InferenceConfig{}
			if configPath != "" {
				loaded, err := config.LoadInference(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			// flags override file values
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("models-dir") || cfg.ModelsDir == "" {
				cfg.ModelsDir = modelsDir
			}
			if cmd.Flags().Changed("default-model") {
				cfg.DefaultModel = defaultModel
			}
			return run(cfg, log)
		},
	}

	root.Flags().StringVar(&addr, "addr", envOr("INFERD_ADDR", ":8090"), "HTTP listen address")
	root.Flags().StringVar(&modelsDir, "models-dir", envOr("INFERD_MODELS_DIR", "~/models/llm"), "directory scanned for model files")
	root.Flags().StringVar(&defaultModel, "default-model", "", "generation model loaded at startup (default: first on disk)")
	root.Flags().StringVar(&configPath, "config", "", "path to a yaml/json/toml config file")
	root.Flags().StringVar(&logLevel, "log-level", envOr("INFERD_LOG_LEVEL", "info"), "debug|info|warn|error")
	root.Flags().BoolVar(&pretty, "pretty", false, "human-readable log output")

	if err := root.Execute(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("inferd failed")
	}
}

func run(cfg config.InferenceConfig, log zerolog.Logger) error {
	mgr := manager.New(manager.Config{
		ModelsDir:        cfg.ModelsDir,
		MaxHistoryChars:  cfg.MaxHistoryChars,
		KeepLastMessages: cfg.KeepLastMessages,
		SummaryMaxTokens: cfg.SummaryMaxTokens,
		CacheSize:        cfg.CacheSize,
		Logger:           log,
	})
	defer mgr.Close()

	autoloadDefault(mgr, cfg, log)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	rpcapi.SetLogger(log)
	rpcapi.SetBaseContext(baseCtx)

	srv := &http.Server{Addr: cfg.Addr, Handler: rpcapi.NewMux(mgr)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cancelBase()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// autoloadDefault kicks off loading the configured or first generation
// model. An empty models directory is a warning, not a startup failure;
// the daemon serves status and switch requests either way.
func autoloadDefault(mgr *manager.Manager, cfg config.InferenceConfig, log zerolog.Logger) {
	models, err := registry.ScanDir(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("model scan failed, nothing preloaded")
		return
	}
	name := cfg.DefaultModel
	if name == "" {
		if gens := registry.Names(models, types.KindGeneration); len(gens) > 0 {
			name = gens[0]
		}
	}
	if name == "" {
		log.Warn().Str("dir", cfg.ModelsDir).Msg("no generation models on disk, chat unavailable until one is uploaded")
		return
	}
	outcome, err := mgr.SwitchGeneration(name)
	if err != nil {
		log.Warn().Err(err).Str("model", name).Msg("startup model load not accepted")
		return
	}
	log.Info().Str("model", name).Str("outcome", string(outcome)).Msg("startup model load requested")
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var w = os.Stderr
	logger := zerolog.New(w)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

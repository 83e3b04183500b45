package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"raggate/internal/config"
	"raggate/internal/gateway"
	"raggate/internal/infclient"
	"raggate/internal/retrieval"
	"raggate/internal/session"
)

func main() {
	var (
		addr         string
		inferenceURL string
		modelsDir    string
		redisAddr    string
		configPath   string
		logLevel     string
		pretty       bool
	)

	root := &cobra.Command{
		Use:           "raggate",
		Short:         "RAG gateway: WebSocket/HTTP chat frontend over the inference daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel, pretty)

			cfg := config.GatewayConfig{}
			if configPath != "" {
				loaded, err := config.LoadGateway(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("inference-url") || cfg.InferenceURL == "" {
				cfg.InferenceURL = inferenceURL
			}
			if cmd.Flags().Changed("models-dir") {
				cfg.ModelsDir = modelsDir
			}
			if cmd.Flags().Changed("redis-addr") {
				cfg.RedisAddr = redisAddr
			}
			return run(cfg, log)
		},
	}

	root.Flags().StringVar(&addr, "addr", envOr("RAGGATE_ADDR", ":8080"), "HTTP listen address")
	root.Flags().StringVar(&inferenceURL, "inference-url", envOr("RAGGATE_INFERENCE_URL", "http://localhost:8090"), "base URL of the inference daemon")
	root.Flags().StringVar(&modelsDir, "models-dir", envOr("RAGGATE_MODELS_DIR", ""), "shared models directory for uploads (empty disables uploads)")
	root.Flags().StringVar(&redisAddr, "redis-addr", envOr("RAGGATE_REDIS_ADDR", ""), "redis address for session storage (empty uses in-memory sessions)")
	root.Flags().StringVar(&configPath, "config", "", "path to a yaml/json/toml config file")
	root.Flags().StringVar(&logLevel, "log-level", envOr("RAGGATE_LOG_LEVEL", "info"), "debug|info|warn|error")
	root.Flags().BoolVar(&pretty, "pretty", false, "human-readable log output")

	if err := root.Execute(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("raggate failed")
	}
}

func run(cfg config.GatewayConfig, log zerolog.Logger) error {
	client := infclient.New(cfg.InferenceURL)

	ttl := time.Duration(0)
	if cfg.SessionTTL != "" {
		d, err := time.ParseDuration(cfg.SessionTTL)
		if err != nil {
			return err
		}
		ttl = d
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, ttl)
		log.Info().Str("redis", cfg.RedisAddr).Msg("using redis session store")
	} else {
		mem := session.NewMemoryStore(ttl)
		defer mem.Close()
		sessions = mem
	}

	retriever := retrieval.NewRetriever(client, retrieval.NewMemoryStore(), cfg.TopK, cfg.ChunkChars, log)
	orch := gateway.NewOrchestrator(sessions, retriever, client, log)
	_, handler := gateway.NewServer(gateway.Config{
		Orchestrator:   orch,
		Inference:      client,
		Knowledge:      retriever,
		ModelsDir:      cfg.ModelsDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
	})

	if err := client.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Str("url", cfg.InferenceURL).Msg("inference daemon unreachable at startup, continuing")
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("inference_url", cfg.InferenceURL).Msg("raggate listening")
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
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

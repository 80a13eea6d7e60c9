package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/navikt/aap-inntekt/internal/actuator"
	"github.com/navikt/aap-inntekt/internal/inntekt"
	"github.com/navikt/aap-inntekt/internal/inntektskomponent"
	"github.com/navikt/aap-inntekt/internal/ledger"
	"github.com/navikt/aap-inntekt/internal/popp"
	"github.com/navikt/aap-inntekt/internal/upstream"
	"github.com/navikt/aap-inntekt/pkg/azure"
	"github.com/navikt/aap-inntekt/pkg/config"
	"github.com/navikt/aap-inntekt/pkg/health"
	"github.com/navikt/aap-inntekt/pkg/kafka"
	"github.com/navikt/aap-inntekt/pkg/logger"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	pkgredis "github.com/navikt/aap-inntekt/pkg/redis"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume, enrich and republish income requests",
		Long: `Start the enrichment stage and the actuator server.

The stage runs until SIGINT or SIGTERM. A processor failure stops
consumption and turns the liveness probe red, but the actuator keeps
serving so the orchestrator can observe it and restart the pod.`,
		RunE: runServe,
	}
	cmd.Flags().StringP("config", "c", "", "path to config file")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	configPath, _ := cmd.Flags().GetString("config")

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting inntekt",
		"version", Version,
		"topic", cfg.Kafka.Topics.Inntekter,
		"threads", cfg.Kafka.Threads,
	)

	secure, secureCloser, err := logger.NewSecure(cfg.Logging.SecurePath, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer secureCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				logger.SetLevel(next.Logging.Level)
				logger.SetSecureLevel(next.Logging.Level)
				slog.Info("log level updated", "level", logger.Level().String())
			})
			if err != nil {
				slog.Warn("config watch stopped", "error", err)
			}
		}()
	}

	m := metrics.New()
	checker := health.NewChecker()
	var closers []io.Closer

	var tokenCache azure.Cache
	if cfg.Redis.Enabled {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		closers = append(closers, rdb)
		tokenCache = azure.NewRedisCache(rdb)
		checker.Register(health.Readiness, "redis", func(ctx context.Context) health.ComponentHealth {
			if err := rdb.Ping(ctx); err != nil {
				return health.FromBool(false, err.Error())
			}
			return health.FromBool(true, "")
		})
		slog.Info("token cache backed by redis", "addr", cfg.Redis.Addr)
	}
	tokens := azure.NewTokenProvider(cfg.Azure, nil, tokenCache)

	failures := ledger.Discard
	if cfg.Postgres.Enabled {
		store, err := ledger.Open(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("opening failure ledger: %w", err)
		}
		closers = append(closers, store)
		failures = store
		slog.Info("failure ledger enabled")
	}

	inntektskomponentHTTP := upstream.New(upstream.Options{
		Name:         inntektskomponent.Name,
		BaseURL:      cfg.Inntektskomponent.BaseURL,
		Scope:        cfg.Inntektskomponent.Scope,
		RateLimitRPS: cfg.Inntektskomponent.RateLimitRPS,
		HTTP:         cfg.HTTPClient,
	}, tokens, m, secure)
	poppHTTP := upstream.New(upstream.Options{
		Name:         popp.Name,
		BaseURL:      cfg.Popp.BaseURL,
		Scope:        cfg.Popp.Scope,
		RateLimitRPS: cfg.Popp.RateLimitRPS,
		HTTP:         cfg.HTTPClient,
	}, tokens, m, secure)

	stage := inntekt.NewStage(
		inntektskomponent.NewClient(inntektskomponentHTTP, cfg.Inntektskomponent.Filter, cfg.Inntektskomponent.Formaal),
		popp.NewClient(poppHTTP),
		m,
		inntekt.StageOptions{
			Ledger:  failures,
			Secure:  secure,
			Tracing: cfg.Tracing.Enabled,
		},
	)

	producer, err := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Inntekter, m)
	if err != nil {
		return fmt.Errorf("creating producer: %w", err)
	}
	topology := inntekt.NewTopology(cfg.Kafka.Topics.Inntekter, stage, producer, m, secure)

	readers, err := kafka.NewGroupReaderFactory(cfg.Kafka, cfg.Kafka.Topics.Inntekter)
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}
	engine := kafka.NewEngine(cfg.Kafka.Threads, readers, topology.Handle, m)
	registerEngineChecks(checker, engine)

	server := actuator.NewServer(cfg.Server, m, checker)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()

	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(engineCtx) }()

	var runErr error
	engineStopped := false
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case runErr = <-serverErr:
	case runErr = <-engineDone:
		engineStopped = true
		// Keep serving probes until the orchestrator restarts us.
		slog.Error("stream engine failed", "error", runErr)
		select {
		case <-ctx.Done():
		case err := <-serverErr:
			if err != nil {
				slog.Error("actuator server failed", "error", err)
			}
		}
	}

	stopEngine()
	if !engineStopped {
		if err := <-engineDone; err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := producer.Close(); err != nil {
		slog.Error("failed to close producer", "error", err)
	}
	inntektskomponentHTTP.Close()
	poppHTTP.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Error("failed to close resource", "error", err)
		}
	}
	if err := server.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("actuator shutdown error", "error", err)
	}

	slog.Info("inntekt stopped")
	return runErr
}

// registerEngineChecks reports the engine on liveness and readiness.
// Liveness carries the processor failure, readiness the processors that are
// not polling.
func registerEngineChecks(checker *health.Checker, engine *kafka.Engine) {
	checker.Register(health.Liveness, "kafka-streams", func(context.Context) health.ComponentHealth {
		msg := "stream engine in state " + engine.State().String()
		if err := engine.Err(); err != nil {
			msg += ": " + err.Error()
		}
		return health.FromBool(engine.Live(), msg)
	})
	checker.Register(health.Readiness, "kafka-streams", func(context.Context) health.ComponentHealth {
		msg := "stream engine in state " + engine.State().String()
		if ids := engine.Unready(); len(ids) > 0 {
			msg += fmt.Sprintf(", processors %v not polling", ids)
		}
		return health.FromBool(engine.Ready(), msg)
	})
}

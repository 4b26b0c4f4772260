package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/config"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/metrics"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/queue"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/server"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/storage"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/worker"
)

const (
	redisConsumerGroup = "webhooksig-archivers"
	shutdownTimeout    = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		port                int
		disableVerification bool
		logLevel            string
	)

	cmd := &cobra.Command{
		Use:   "serve MODE",
		Short: "Run the webhook receiver and/or archiving worker",
		Long: `Serve runs the service in one of three modes:

  all-in-one  receiver and worker in one process (in-memory queue by default)
  receiver    verifies deliveries on POST /webhook and publishes them
  worker      consumes published events and archives them to storage

Configuration comes from WEBHOOKSIG_* environment variables; flags that are
set explicitly take precedence.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(config.ModeAllInOne), string(config.ModeReceiver), string(config.ModeWorker)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := config.Mode(args[0])

			if cmd.Flags().Changed("port") {
				os.Setenv("WEBHOOKSIG_PORT", fmt.Sprintf("%d", port))
			}
			if cmd.Flags().Changed("disable-verification") {
				os.Setenv("WEBHOOKSIG_DISABLE_VERIFICATION", fmt.Sprintf("%t", disableVerification))
			}

			cfg, err := config.Load(mode)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger, err := newLogger(cmd.ErrOrStderr(), logLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, mode, logger)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().BoolVar(&disableVerification, "disable-verification", false, "Accept deliveries without checking signatures (local development only)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// serve wires the components the mode needs and blocks until ctx is done or
// one of them fails.
func serve(ctx context.Context, cfg *config.Config, mode config.Mode, logger *slog.Logger) error {
	logger = logger.With("mode", string(mode))
	m := metrics.New()

	q, err := newQueue(ctx, cfg, mode, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	var w *worker.Worker
	if mode != config.ModeReceiver {
		store, err := newStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		w, err = worker.New(worker.Config{Queue: q, Storage: store, Metrics: m, Logger: logger})
		if err != nil {
			return err
		}
	}

	srv := server.New(server.Config{Port: cfg.Port, Logger: logger, Metrics: m})

	if mode != config.ModeWorker {
		secrets := make([][]byte, len(cfg.Verification.Secrets))
		for i, s := range cfg.Verification.Secrets {
			secrets[i] = []byte(s)
		}

		handler, err := server.NewWebhookHandler(server.HandlerConfig{
			Secrets:             secrets,
			DisableVerification: cfg.Verification.Disabled,
			Tolerance:           cfg.Verification.Tolerance,
			HeaderName:          cfg.Verification.HeaderName,
			MaxBodyBytes:        cfg.Verification.MaxBodyBytes,
			Queue:               q,
			Metrics:             m,
			Logger:              logger,
		})
		if err != nil {
			return err
		}
		srv.Mux().Handle("/webhook", handler)
	}

	logger.Info("starting webhooksig",
		"version", version,
		"port", cfg.Port,
		"queue", string(cfg.Queue.Type),
		"storage", string(cfg.Storage.Type),
		"secrets", len(cfg.Verification.Secrets),
	)

	return run(ctx, srv, w, q)
}

// run starts srv, and w when it is not nil, and blocks until ctx is done or
// one of them fails. The server is shut down before the worker is stopped,
// so events accepted by in-flight requests still reach the worker.
func run(ctx context.Context, srv *server.Server, w *worker.Worker, q queue.MessageQueue) error {
	g, gctx := errgroup.WithContext(ctx)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	if w != nil {
		g.Go(func() error { return w.Run(workerCtx) })
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// Nothing publishes any more. The in-memory queue only holds events
		// in this process, so close it and let the worker empty the buffer;
		// the other backends keep what is left for the next consumer.
		if mem, ok := q.(*queue.InMemoryQueue); ok {
			mem.Close()
			time.AfterFunc(shutdownTimeout, stopWorker)
		} else {
			stopWorker()
		}
		return err
	})

	return g.Wait()
}

func newQueue(ctx context.Context, cfg *config.Config, mode config.Mode, logger *slog.Logger) (queue.MessageQueue, error) {
	switch cfg.Queue.Type {
	case config.QueueTypeInMemory:
		return queue.NewInMemoryQueue(queue.InMemoryConfig{Logger: logger}), nil

	case config.QueueTypeRedis:
		consumer, err := os.Hostname()
		if err != nil || consumer == "" {
			consumer = "webhooksig"
		}
		q, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
			Address:           cfg.Queue.RedisAddr,
			Password:          cfg.Queue.RedisPassword,
			DB:                cfg.Queue.RedisDB,
			StreamKey:         cfg.Queue.RedisStream,
			ConsumerGroup:     redisConsumerGroup,
			ConsumerName:      strings.ToLower(consumer),
			CreateIfNotExists: true,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis queue: %w", err)
		}
		return q, nil

	case config.QueueTypePubSub:
		q, err := queue.NewPubSubQueue(ctx, queue.PubSubConfig{
			ProjectID:         cfg.Queue.PubSubProjectID,
			TopicName:         cfg.Queue.PubSubTopicID,
			SubscriptionName:  cfg.Queue.PubSubSubscription,
			CreateIfNotExists: true,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub queue: %w", err)
		}
		return q, nil

	default:
		return nil, fmt.Errorf("unsupported queue type for %s: %s", mode, cfg.Queue.Type)
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	s, err := storage.New(ctx, storage.Config{
		Type: storage.Type(cfg.Storage.Type),
		GCS:  storage.GCSConfig{Bucket: cfg.Storage.GCSBucket},
		MinIO: storage.MinIOConfig{
			Endpoint:        cfg.Storage.MinIOEndpoint,
			AccessKeyID:     cfg.Storage.MinIOAccessKey,
			SecretAccessKey: cfg.Storage.MinIOSecretKey,
			UseSSL:          cfg.Storage.MinIOUseSSL,
			Bucket:          cfg.Storage.MinIOBucket,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", cfg.Storage.Type, err)
	}
	return s, nil
}

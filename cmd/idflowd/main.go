// Command idflowd runs an idflow router with its HTTP gateway, and has
// one-shot publish and request commands for poking at a deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/miladsoleymani/idflow/broker"
	"github.com/miladsoleymani/idflow/config"
	"github.com/miladsoleymani/idflow/core"
	"github.com/miladsoleymani/idflow/core/middleware"
	"github.com/miladsoleymani/idflow/gateway"
	"github.com/miladsoleymani/idflow/prefs"

	_ "github.com/miladsoleymani/idflow/plugins/kafka"
	_ "github.com/miladsoleymani/idflow/plugins/memory"
	_ "github.com/miladsoleymani/idflow/plugins/nats"
	_ "github.com/miladsoleymani/idflow/plugins/rabbitmq"
)

var (
	configPath     string
	publishID      string
	requestTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "idflowd",
	Short:         "Identifier-multiplexed message router",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the router and the HTTP gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <topic> <value>",
	Short: "Publish one message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		b, err := newBroker(cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		id := publishID
		if id == "" {
			id = uuid.NewString()
		}
		msg := core.NewMessage(nil, []byte(args[1]), map[string]string{cfg.CorrelationHeader: id})
		if err := b.Publish(cmd.Context(), args[0], msg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var requestCmd = &cobra.Command{
	Use:   "request <topic> <value>",
	Short: "Publish a request and print the reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.ReplyTopic == "" {
			return core.ErrNoReplyTopic
		}

		r, err := newRouter(cfg, logger)
		if err != nil {
			return err
		}
		// Only the reply topic is needed here.
		r.SetReplyTopic(cfg.ReplyTopic)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		started := make(chan error, 1)
		go func() { started <- r.Start(ctx) }()

		reqCtx, reqCancel := context.WithTimeout(ctx, requestTimeout)
		defer reqCancel()

		reply, err := r.Request(reqCtx, args[0], core.NewMessage(nil, []byte(args[1]), nil))
		cancel()
		if startErr := <-started; startErr != nil && err == nil {
			err = startErr
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(reply.Value()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "idflow.yaml", "path to the configuration file")
	publishCmd.Flags().StringVar(&publishID, "id", "", "correlation id (default: a new UUID)")
	requestCmd.Flags().DurationVar(&requestTimeout, "timeout", 10*time.Second, "how long to wait for the reply")

	rootCmd.AddCommand(serveCmd, publishCmd, requestCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newLogger returns a slog.Logger backed by a charmbracelet logger.
func newLogger(level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("idflowd: log level: %w", err)
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
		Level:           lvl,
	})
	return slog.New(handler), nil
}

func newBroker(cfg *config.Config, logger *slog.Logger) (core.Broker, error) {
	if !slices.Contains(broker.Names(), cfg.Broker.Name) {
		return nil, fmt.Errorf("idflowd: unknown broker %q (have %v)", cfg.Broker.Name, broker.Names())
	}
	b, err := broker.Create(cfg.Broker.Name, cfg.Broker.Config)
	if err != nil {
		return nil, err
	}
	logger.Debug("Created broker", "name", cfg.Broker.Name, "brokers", cfg.Broker.Brokers)
	return b, nil
}

func newRouter(cfg *config.Config, logger *slog.Logger) (*core.Router, error) {
	b, err := newBroker(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := append(cfg.StreamOptions(), core.WithLogger(logger.With("component", "stream")))
	r := core.New(b, opts...)
	r.SetLogger(logger.With("component", "router"))
	r.SetCorrelationHeader(cfg.CorrelationHeader)
	return r, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	r, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}
	r.SetReplyTopic(cfg.ReplyTopic)
	for _, t := range cfg.Listen {
		r.Listen(t)
	}

	counters := middleware.NewCounters()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger.With("component", "handler")))
	r.Use(middleware.Metrics(counters))

	// Route every delivery through the middleware so the stats endpoint
	// counts it. Stream consumers read deliveries independently.
	r.Handle("#", func(c core.Context) error {
		return c.Ack()
	})

	var store *prefs.Store
	if cfg.Prefs.Dir != "" {
		store, err = prefs.Open(cfg.Prefs.Dir, cfg.Prefs.Name, logger.With("component", "prefs"))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	gw := gateway.New(logger.With("component", "gateway"), r, store, cfg.Gateway)
	gw.SetStats(func() any {
		return map[string]any{
			"published": r.Stream().Published(),
			"topics":    counters.Snapshot(),
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- r.Start(ctx) }()
	go func() { errCh <- gw.Run(ctx) }()

	logger.Info("Serving", "broker", cfg.Broker.Name, "topics", cfg.Listen, "addr", cfg.Gateway.Addr)

	var errs []error
	for range 2 {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
		// Either side stopping stops both.
		cancel()
	}
	logger.Info("Stopped")
	return errors.Join(errs...)
}

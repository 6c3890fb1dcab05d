package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	handler "github.com/raid-guild/hive-x402-facilitator-go/api"
	"github.com/raid-guild/hive-x402-facilitator-go/auth"
	"github.com/raid-guild/hive-x402-facilitator-go/clients"
	"github.com/raid-guild/hive-x402-facilitator-go/config"
	"github.com/raid-guild/hive-x402-facilitator-go/core"
	"github.com/raid-guild/hive-x402-facilitator-go/events"
	"github.com/raid-guild/hive-x402-facilitator-go/ratelimit"
	"github.com/raid-guild/hive-x402-facilitator-go/store"
)

const shutdownTimeout = 10 * time.Second

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen":            "listen",
	"log-level":         "log_level",
	"max-body-bytes":    "max_body_bytes",
	"trusted-proxies":   "trusted_proxies",
	"hive-nodes":        "hive.nodes",
	"hive-timeout":      "hive.timeout",
	"hive-chain-id":     "hive.chain_id",
	"nonce-backend":     "nonce.backend",
	"badger-dir":        "nonce.badger_dir",
	"redis-url":         "nonce.redis_url",
	"postgres-url":      "nonce.postgres_url",
	"nonce-retention":   "nonce.retention",
	"rate-limit":        "rate_limit.enabled",
	"rate-limit-max":    "rate_limit.max",
	"rate-limit-window": "rate_limit.window",
	"api-key":           "auth.static_key",
	"auth-database-url": "auth.database_url",
	"amqp-url":          "events.amqp_url",
}

// NewServeCmd returns the command that runs the facilitator HTTP server.
func NewServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the facilitator",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	AddServeFlags(cmd)
	return cmd
}

// AddServeFlags adds flags to the serve command.
func AddServeFlags(cmd *cobra.Command) {
	d := config.NewDefaultConfig()

	cmd.Flags().String("config", "", "Configuration file (yaml, toml or json)")
	cmd.Flags().StringP("listen", "l", "", fmt.Sprintf("Listen address (default %q, or :$FACILITATOR_PORT)", config.DefaultListen))
	cmd.Flags().String("log-level", d.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Int64("max-body-bytes", d.MaxBodyBytes, "Maximum request body size")
	cmd.Flags().StringSlice("trusted-proxies", nil, "Proxy IPs or CIDRs allowed to set X-Forwarded-For (default none)")

	// Ledger
	cmd.Flags().StringSlice("hive-nodes", d.Hive.Nodes, "Hive API nodes, in failover order")
	cmd.Flags().Duration("hive-timeout", d.Hive.Timeout, "Per node request timeout")
	cmd.Flags().String("hive-chain-id", d.Hive.ChainID, "Hive chain id (hex)")

	// Nonce store
	cmd.Flags().String("nonce-backend", d.Nonce.Backend, "badger, redis, postgres or memory")
	cmd.Flags().String("badger-dir", d.Nonce.BadgerDir, "Badger data directory")
	cmd.Flags().String("redis-url", "", "Redis url for the redis backend")
	cmd.Flags().String("postgres-url", "", "Postgres url for the postgres backend")
	cmd.Flags().Duration("nonce-retention", d.Nonce.Retention, "How long spent nonces are kept")

	// Admission
	cmd.Flags().Bool("rate-limit", d.RateLimit.Enabled, "Rate limit /verify and /settle per client IP")
	cmd.Flags().Int("rate-limit-max", d.RateLimit.Max, "Requests allowed per window")
	cmd.Flags().Duration("rate-limit-window", d.RateLimit.Window, "Rate limit window")
	cmd.Flags().String("api-key", "", "Static API key required in X-API-Key")
	cmd.Flags().String("auth-database-url", "", "Postgres url of the users table holding API keys")

	// Events
	cmd.Flags().String("amqp-url", "", "RabbitMQ url for settlement events")
}

// loadConfig binds the changed flags to v, reads the optional config file and
// decodes the configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, err
		}
	}

	if file, _ := cmd.Flags().GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return config.Load(v)
}

func serve(ctx context.Context, c *config.Config) error {
	logger := c.Logger()

	logger.WithFields(logrus.Fields{
		"listen":        c.Listen,
		"log_level":     c.LogLevel,
		"hive.nodes":    c.Hive.Nodes,
		"hive.timeout":  c.Hive.Timeout,
		"nonce.backend": c.Nonce.Backend,
		"rate_limit":    c.RateLimit.Enabled,
		"proxies":       c.TrustedProxies,
		"auth":          c.Auth.StaticKey != "" || c.Auth.DatabaseURL != "",
		"events":        c.Events.AMQPURL != "",
	}).Debug("SERVE")

	// Ledger gateway
	pool, err := clients.DialPool(ctx, c.Hive.Nodes, c.Hive.Timeout, logger)
	if err != nil {
		return fmt.Errorf("failed to dial hive nodes: %w", err)
	}
	defer pool.Close()

	// Nonce ledger
	nonces, err := store.New(ctx, c.Nonce, logger)
	if err != nil {
		return fmt.Errorf("failed to open nonce store: %w", err)
	}
	defer nonces.Close()

	// Settlement events
	var publisher events.Publisher = events.NopPublisher{}
	if c.Events.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(c.Events.AMQPURL, c.Events.Exchange, c.Events.RoutingKey)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		publisher = rabbit
	}
	defer publisher.Close()

	authenticator, err := auth.Open(c.Auth.StaticKey, c.Auth.DatabaseURL)
	if err != nil {
		return err
	}
	defer authenticator.Close()

	var limiter *ratelimit.Limiter
	if c.RateLimit.Enabled {
		limiter = ratelimit.New(c.RateLimit.Max, c.RateLimit.Window)
		defer limiter.Close()
	}

	facilitator := core.NewFacilitator(core.FacilitatorConfig{
		ChainID:   c.ChainID(),
		Client:    pool,
		Store:     nonces,
		Publisher: publisher,
		Logger:    logger,
	})

	router := handler.NewRouter(handler.Options{
		Facilitator:    facilitator,
		Limiter:        limiter,
		Auth:           authenticator,
		MaxBodyBytes:   c.MaxBodyBytes,
		TrustedProxies: c.TrustedProxies,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              c.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("listen", c.Listen).Info("hive x402 facilitator listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

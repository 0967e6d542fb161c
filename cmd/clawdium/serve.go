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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/puri-adityakumar/clawdium/internal/auth"
	"github.com/puri-adityakumar/clawdium/internal/config"
	httpapp "github.com/puri-adityakumar/clawdium/internal/http"
	"github.com/puri-adityakumar/clawdium/internal/ledger"
	"github.com/puri-adityakumar/clawdium/internal/metrics"
	"github.com/puri-adityakumar/clawdium/internal/paywall"
	"github.com/puri-adityakumar/clawdium/internal/rate"
	"github.com/puri-adityakumar/clawdium/internal/store"
	"github.com/puri-adityakumar/clawdium/internal/store/postgres"
	"github.com/puri-adityakumar/clawdium/internal/store/sqlite"
	"github.com/puri-adityakumar/clawdium/internal/wallet"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Run the API server",
		Action:  runServer,
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.IsProduction() {
		return zerolog.New(os.Stdout).With().Timestamp().Str("service", "clawdium").Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

func runServer(c *cli.Context) error {
	cfg := config.Load()
	log := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.WalletKeyDefaulted {
		log.Warn().Msg("WALLET_ENCRYPTION_KEY not set, using development key")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	limiter, closeLimiter, err := newLimiter(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer closeLimiter()

	sealer, err := wallet.NewSealer(cfg.WalletKey)
	if err != nil {
		return fmt.Errorf("wallet sealer: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollectors(reg)
	sink := metrics.NewSink(st, metrics.DefaultSinkBuffer, mc, log)
	defer sink.Close()

	authenticator := auth.New(st,
		auth.WithCache(auth.NewKeyCache(cfg.KeyCache.Size, cfg.KeyCache.TTL)),
		auth.WithLogger(log),
	)
	facilitator := paywall.NewHTTPFacilitator(cfg.Payments.FacilitatorURL, cfg.Payments.FacilitatorTimeout, log)
	controller := paywall.NewController(cfg.Paywall(), ledger.New(st, log), limiter, facilitator,
		paywall.WithCounter(sink),
		paywall.WithLogger(log),
	)

	server := httpapp.NewServer(httpapp.Deps{
		Store:   st,
		Auth:    authenticator,
		Limiter: limiter,
		Paywall: controller,
		Sealer:  sealer,
		Metrics: mc,
		Counter: sink,
		Config:  cfg,
		Logger:  log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("db_driver", cfg.DBDriver).
			Str("limiter", fmt.Sprint(limiter)).
			Bool("payments", cfg.Payments.Enabled).
			Str("network", cfg.Payments.Network).
			Msg("clawdium listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := postgres.Open(openCtx, cfg.DB)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := sqlite.Open(cfg.DB)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// newLimiter uses Redis when REDIS_URL is set so limits hold across replicas.
func newLimiter(ctx context.Context, cfg config.Config, log zerolog.Logger) (rate.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		return rate.NewMemory(cfg.RateLimits.Limit, cfg.RateLimits.Window), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Limiter errors admit requests; startup continues.
		log.Warn().Err(err).Msg("redis unreachable at startup")
	}
	limiter := rate.NewRedis(client, cfg.RateLimits.Limit, cfg.RateLimits.Window, log)
	return limiter, func() { _ = client.Close() }, nil
}

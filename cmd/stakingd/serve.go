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
	"go.uber.org/zap"

	"staking-ledger/internal/api"
	"staking-ledger/internal/config"
	"staking-ledger/internal/custody"
	"staking-ledger/internal/events"
	"staking-ledger/internal/logging"
	"staking-ledger/internal/reward"
	"staking-ledger/internal/staking"
	"staking-ledger/internal/storage"
	chstore "staking-ledger/internal/storage/clickhouse"
	"staking-ledger/internal/storage/memory"
	"staking-ledger/internal/storage/migrations"
	pgstore "staking-ledger/internal/storage/postgres"
)

const shutdownTimeout = 15 * time.Second

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the staking ledger HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	cmdServe.Flags().String("http-addr", ":8080", "HTTP listen address")
	cmdServe.Flags().String("backend", config.BackendMemory, "Ledger storage backend (memory, postgres)")
	check(v.BindPFlag("http.addr", cmdServe.Flags().Lookup("http-addr")))
	check(v.BindPFlag("storage.backend", cmdServe.Flags().Lookup("backend")))
}

// stores holds the storage implementations selected by configuration.
type stores struct {
	ledger  storage.Ledger
	events  storage.EventStore
	custody custody.Book
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	StartedAt     string `json:"started_at"`
	Backend       string `json:"backend"`
	EventStore    string `json:"event_store"`
	Owner         string `json:"owner"`
	Custody       string `json:"custody"`
	AnnualRateBps uint64 `json:"annual_rate_bps"`
	PenaltyBps    uint64 `json:"refund_penalty_bps"`
	LastID        uint64 `json:"last_investigation_id"`
	Subscribers   int    `json:"stream_subscribers"`
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	hub := events.NewHub(events.DefaultBufferSize, logger)
	recorder := events.NewRecorder(st.events, hub, logger)

	svc, err := staking.NewService(staking.Config{
		Owner:            cfg.OwnerAddress(),
		Ledger:           st.ledger,
		Transferrer:      st.custody,
		Calculator:       reward.NewCalculator(reward.RatePerDayFromAnnualBps(cfg.Reward.AnnualRateBps)),
		RefundPenaltyBps: cfg.Refund.PenaltyBps,
		Recorder:         recorder,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	startedAt := time.Now()
	eventBackend := "memory"
	if cfg.Clickhouse.DSN != "" {
		eventBackend = "clickhouse"
	}
	status := func() interface{} {
		resp := StatusResponse{
			Status:        "running",
			Uptime:        time.Since(startedAt).Round(time.Second).String(),
			StartedAt:     startedAt.UTC().Format(time.RFC3339),
			Backend:       cfg.Storage.Backend,
			EventStore:    eventBackend,
			Owner:         svc.Owner().Hex(),
			Custody:       st.custody.Custody().Hex(),
			AnnualRateBps: cfg.Reward.AnnualRateBps,
			PenaltyBps:    cfg.Refund.PenaltyBps,
			Subscribers:   hub.Len(),
		}
		if id, ok, err := svc.GetLastID(ctx); err == nil && ok {
			resp.LastID = id
		}
		return resp
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Options{
			Service: svc,
			Events:  st.events,
			Hub:     hub,
			Custody: st.custody,
			Status:  status,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("backend", cfg.Storage.Backend),
			zap.String("event_store", eventBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	// A second signal aborts the graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing shutdown", zap.String("signal", sig.String()))
			shutdownCancel()
		case <-shutdownCtx.Done():
		}
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
	logger.Info("shutdown complete")
	return nil
}

// createStores opens the configured ledger, custody book and event store
// and applies migrations. Custody lives next to the ledger so that a
// persistent ledger never pairs with holdings that vanish on restart.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	var st stores
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logApplied(logger, "postgres", applied)
		st.ledger = pgstore.NewLedger(pool)
		st.custody = pgstore.NewCustody(pool, cfg.CustodyAddress())
		logger.Info("using postgres ledger and custody")
	default:
		st.ledger = memory.NewLedger()
		st.custody = custody.NewVault(cfg.CustodyAddress())
		logger.Warn("using in-memory ledger; state is lost on restart")
	}

	if cfg.Clickhouse.DSN != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logApplied(logger, "clickhouse", applied)
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse", zap.Error(err))
			}
		})
		st.events = chstore.NewEventStore(conn)
		logger.Info("using clickhouse event store")
	} else {
		st.events = memory.NewEventStore()
	}

	return &st, cleanup, nil
}

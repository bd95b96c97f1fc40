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

	"sheild-gateway/internal/alerting"
	"sheild-gateway/internal/anomaly"
	"sheild-gateway/internal/api"
	"sheild-gateway/internal/auth"
	"sheild-gateway/internal/config"
	"sheild-gateway/internal/data"
	"sheild-gateway/internal/ingest"
	"sheild-gateway/internal/logger"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/prediction"
	"sheild-gateway/internal/pubsub"
	"sheild-gateway/internal/storage"
	"sheild-gateway/internal/websocket"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the data ingestion and dashboard servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgDir)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// --- Storage and messaging ---
	stores, err := openStores(ctx, cfg.Mongo, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := stores.Close(closeCtx); err != nil {
			log.Warn("close stores", zap.Error(err))
		}
	}()

	broker, err := pubsub.Open(ctx, cfg.PubSub)
	if err != nil {
		return err
	}
	defer broker.Close()

	if err := seedMachines(ctx, stores.Machines, cfg.Machines); err != nil {
		return err
	}

	// --- Components ---
	m := metrics.New()
	hub := websocket.NewHub(log)
	hub.OnClientCountChange(func(namespace string, n int) {
		m.WebsocketClients.WithLabelValues(namespace).Set(float64(n))
	})
	alerter := alerting.NewAlerter(broker, cfg.Alerts.Namespace, hub, m, log).WithStore(stores.Alerts)
	predictions := prediction.NewService(stores.Machines, stores.Predictions, m, log)

	var datasetClient prediction.PredictionClient = predictions
	if cfg.Prediction.Mode == config.PredictionRemote {
		datasetClient = prediction.NewHTTPClient(cfg.Prediction.Remote)
		log.Info("dataset predictions use remote service", zap.String("base_url", cfg.Prediction.Remote.BaseURL))
	}

	handler := api.NewAPIHandler(api.Deps{
		Machines:       stores.Machines,
		Reports:        stores.Reports,
		Alerts:         stores.Alerts,
		Maintenance:    stores.Maintenance,
		SensorLogs:     stores.SensorLogs,
		Readings:       storage.NewReadingBuffer(cfg.Ingest.BufferSize),
		Detector:       anomaly.NewDetector(log),
		Alerter:        alerter,
		Hub:            hub,
		Predictions:    predictions,
		Analyzer:       ingest.NewAnalyzer(datasetClient, m, log),
		Auth:           auth.NewAuthManager(cfg.Auth),
		Metrics:        m,
		Logger:         log,
		AllowedOrigins: cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
	})
	rl := api.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)

	servers := []*http.Server{
		{
			Addr:              fmt.Sprintf(":%d", cfg.Server.DataPort),
			Handler:           api.SetupDataRouter(handler, rl),
			ReadHeaderTimeout: 10 * time.Second,
		},
		{
			Addr:              fmt.Sprintf(":%d", cfg.Server.UIPort),
			Handler:           api.SetupUIRouter(handler, rl),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// --- Start ---
	// Subscribe before serving so the first ingested alert is not dropped.
	if _, err := alerter.Start(ctx); err != nil {
		return err
	}
	errCh := make(chan error, len(servers))
	go hub.Run(ctx)
	go rl.Cleanup(ctx)
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	// --- Graceful shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("gateway stopped", zap.Error(runErr))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	cancel()
	return runErr
}

// openStores uses MongoDB when a URI is configured and memory otherwise.
func openStores(ctx context.Context, cfg storage.MongoConfig, log *zap.Logger) (*storage.Stores, error) {
	if cfg.URI == "" {
		log.Warn("mongo.uri not set, records are kept in memory only")
		return storage.NewMemoryStores(), nil
	}
	stores, err := storage.OpenMongo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("connected to mongo", zap.String("database", cfg.Database))
	return stores, nil
}

// seedMachines registers configured machines. Health state of machines that
// already exist is kept.
func seedMachines(ctx context.Context, store storage.MachineStore, machines []data.Machine) error {
	for _, m := range machines {
		existing, err := store.Get(ctx, m.MachineID)
		switch {
		case err == nil:
			m.Status, m.HealthScore, m.LastSeenAt = existing.Status, existing.HealthScore, existing.LastSeenAt
		case errors.Is(err, storage.ErrNotFound):
			m.Status, m.HealthScore = data.MachineNormal, 100
		default:
			return fmt.Errorf("seed %s: %w", m.MachineID, err)
		}
		if m.Name == "" {
			m.Name = m.MachineID
		}
		if err := store.Upsert(ctx, &m); err != nil {
			return fmt.Errorf("seed %s: %w", m.MachineID, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chowline/cmd/server/config"
	"chowline/internal/dispatch"
	"chowline/internal/model"
	"chowline/internal/observability"
	"chowline/internal/payments"
	"chowline/internal/realtime"
	"chowline/internal/store"
	"chowline/internal/webhook"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

func run(ctx context.Context) error {
	cfg, err := config.LoadApp()
	if err != nil {
		return err
	}

	st, cleanupStore, err := buildStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer cleanupStore()

	registry := dispatch.NewRegistry()
	locations, cleanupSink, err := buildLocationSink(ctx, registry)
	if err != nil {
		return err
	}
	defer cleanupSink()

	dispatcher := dispatch.NewDispatcher(st, registry, nil, log.Printf)

	hub := realtime.NewHub()
	go hub.Run()

	metrics := observability.NewMetrics()
	metrics.SetDegradedProbe(st.Degraded)

	ingest := webhook.NewHandler(st, nil, webhookSecrets(cfg), log.Printf)
	ingest.SetStatusSink(hubSink{hub: hub})

	reconciler := payments.NewReconciler(st, cfg.StripeWebhookSecret, log.Printf)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newMux(st, ingest, reconciler, dispatcher, locations, hub, metrics),
	}
	obsMux := http.NewServeMux()
	obsMux.Handle("/metrics", observability.Handler(metrics))
	obsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: obsMux}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := obsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(0)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obsSrv.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildStore opens the durable backend and wraps it with the in-memory
// fallback facade.
func buildStore(ctx context.Context, databaseURL string) (*store.Failover, func(), error) {
	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, nil, err
	}

	var primary store.Store
	pg, err := store.NewPostgresStoreWithSchema(ctx, db)
	if err != nil {
		// An unreachable database at boot is the same condition the
		// failover latch guards against at runtime; start degraded rather
		// than refusing to serve.
		log.Printf("storage: schema init failed, starting without durable backend: %v", err)
		primary = store.NewPostgresStore(db)
	} else {
		primary = pg
	}

	facade := store.NewFailover(primary, store.NewMemoryStore(), log.Printf)
	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}
	return facade, cleanup, nil
}

// webhookSecrets maps configured platform secrets to their digest
// conventions. Uber Eats signs base64, the rest hex.
func webhookSecrets(cfg config.AppConfig) map[model.Platform]webhook.Secret {
	secrets := make(map[model.Platform]webhook.Secret)
	if cfg.IfoodWebhookSecret != "" {
		secrets[model.PlatformIfood] = webhook.Secret{Key: cfg.IfoodWebhookSecret, Encoding: webhook.EncodingHex}
	}
	if cfg.UberEatsWebhookSecret != "" {
		secrets[model.PlatformUberEats] = webhook.Secret{Key: cfg.UberEatsWebhookSecret, Encoding: webhook.EncodingBase64}
	}
	if cfg.QueroWebhookSecret != "" {
		secrets[model.PlatformQuero] = webhook.Secret{Key: cfg.QueroWebhookSecret, Encoding: webhook.EncodingHex}
	}
	if cfg.GenericWebhookSecret != "" {
		secrets[model.PlatformGeneric] = webhook.Secret{Key: cfg.GenericWebhookSecret, Encoding: webhook.EncodingHex}
	}
	return secrets
}

// hubSink forwards applied status changes to the dashboard hub.
type hubSink struct {
	hub *realtime.Hub
}

func (s hubSink) OrderStatusChanged(tenantID, orderID string, prev, next model.OrderStatus) {
	s.hub.Events <- realtime.OrderEvent{
		TenantID: tenantID,
		OrderID:  orderID,
		Previous: prev,
		Status:   next,
		At:       time.Now().UTC(),
	}
}

// Command itemd serves the item graph: storage, type catalog, change
// notifications, inventory exports and the admin HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"itemcore/internal/adapters/httpapi"
	"itemcore/internal/blob"
	"itemcore/internal/catalog"
	"itemcore/internal/export"
	"itemcore/internal/item"
	"itemcore/internal/notify"
	"itemcore/internal/observability"
	"itemcore/internal/persistence"
	"itemcore/internal/platform/config"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is fine; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "itemd: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("itemd stopped", "error", err)
		os.Exit(1)
	}
}

// run wires every component and serves until ctx is cancelled. When ready is
// non-nil it receives the bound listen address.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, ready chan<- string) error {
	gin.SetMode(gin.ReleaseMode)

	shutdownTracing, err := observability.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := persistence.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	types, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	logger.Info("type catalog loaded", "path", cfg.CatalogPath, "types", types.Len())

	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewPrometheusRecorder(reg)
	if err != nil {
		return err
	}

	hub := notify.NewHub(notify.WithLogger(logger), notify.WithQueueSize(cfg.NotifyQueue))
	defer hub.Close()

	factory := item.NewFactory(store, types,
		item.WithLogger(logger),
		item.WithMetricsRecorder(metrics),
		item.WithTracer(observability.NewTracer(otel.GetTracerProvider())),
		item.WithNotifier(hub),
		item.WithStrictInvariants(cfg.StrictInvariants),
	)
	defer factory.Close()
	if err := metrics.TrackResident(factory.Len); err != nil {
		return err
	}

	exporter := export.New(factory, archive, export.WithLogger(logger))
	worker := export.NewWorker(exporter, export.DefaultQueueSize)
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	router := httpapi.NewRouter(httpapi.Config{
		Items:   factory,
		Exports: worker,
		Archive: exporter,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Events:  hub.Handler(),
		Logger:  logger,
	})
	return serve(ctx, cfg.HTTPAddr, router, logger, ready)
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("itemd listening", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

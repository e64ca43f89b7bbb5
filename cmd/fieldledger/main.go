// Command fieldledger serves the supply ledger over HTTP.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"fieldledger/internal/adapters/cashbook"
	"fieldledger/internal/adapters/httpapi"
	"fieldledger/internal/blob"
	"fieldledger/internal/config"
	"fieldledger/internal/core"
	"fieldledger/internal/infra/events"
	"fieldledger/internal/infra/lock"
	"fieldledger/internal/infra/logging"
	"fieldledger/internal/infra/metrics"
	"fieldledger/internal/infra/tracing"
	"fieldledger/internal/readmodel"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fieldledger stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "policy", cfg.Ledger.Policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// app is the wired process: service, adapters and everything that needs closing.
type app struct {
	svc     *core.Service
	router  *gin.Engine
	closers []func(context.Context) error
	logger  *logging.Logger
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *logging.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(cfg.Storage, engine)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRec, err := metrics.NewRecorder(reg, "")
	if err != nil {
		return nil, err
	}
	expRec := core.NewExpvarMetricsRecorder("")

	opts := []core.ServiceOption{
		core.WithLogger(logger.Named("ledger")),
		core.WithMetricsRecorder(fanout{promRec, expRec}),
		core.WithAuditRecorder(core.LoggerAuditRecorder{Logger: logger.Named("audit")}),
		core.WithReservationPolicy(cfg.Ledger.Policy),
	}

	if cfg.Tracing.Enabled {
		tp := tracing.NewProvider(cfg.Tracing.Service, tracing.NewLogExporter(logger.Named("trace")))
		otel.SetTracerProvider(tp)
		a.closers = append(a.closers, tp.Shutdown)
		opts = append(opts, core.WithTracer(tracing.New(tp)))
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		key := cfg.Redis.LockKey
		if cfg.Storage.Account != "" {
			key += ":" + cfg.Storage.Account
		}
		opts = append(opts, core.WithLocker(lock.New(rdb, lock.WithTTL(cfg.Redis.LockTTL)), key))
	}

	a.svc = core.NewService(store, opts...)

	cache, err := readmodel.NewSupplyCache(store, cfg.CacheLRU)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { cache.Close(); return nil })

	if cfg.PubSub.ProjectID != "" {
		if err := a.attachEvents(ctx, cfg, store); err != nil {
			return nil, err
		}
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	exporter := cashbook.NewExporter(a.svc, blobs, cashbook.WithAccount(cfg.Storage.Account))

	gin.SetMode(cfg.Server.GinMode)
	a.router = httpapi.New(a.svc,
		httpapi.WithSupplyCache(cache),
		httpapi.WithExporter(exporter),
		httpapi.WithMetricsHandler(metrics.Handler(reg)),
		httpapi.WithLogger(logger.Named("http")),
	).Router()
	a.router.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	return a, nil
}

func (a *app) attachEvents(ctx context.Context, cfg config.Config, store core.PersistentStore) error {
	var creds string
	if cfg.PubSub.CredentialsFile != "" {
		raw, err := os.ReadFile(cfg.PubSub.CredentialsFile)
		if err != nil {
			return fmt.Errorf("read pubsub credentials: %w", err)
		}
		creds = string(raw)
	}
	client, err := events.NewClient(ctx, cfg.PubSub.ProjectID, creds)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	topic, err := events.EnsureTopic(ctx, client, cfg.PubSub.Topic)
	if err != nil {
		return err
	}
	pub := events.NewPublisher(topic, events.WithAccount(cfg.Storage.Account), events.WithLogger(a.logger.Named("events")))
	detach := pub.Attach(store)
	a.closers = append(a.closers, func(context.Context) error {
		detach()
		pub.Close()
		return nil
	})
	return nil
}

// fanout forwards observations to several recorders.
type fanout []core.MetricsRecorder

func (f fanout) Observe(ctx context.Context, op string, err error, d time.Duration) {
	for _, r := range f {
		r.Observe(ctx, op, err, d)
	}
}

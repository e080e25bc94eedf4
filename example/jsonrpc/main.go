// Command jsonrpc serves the user directory over JSON-RPC.
//
// Configuration comes from the environment, optionally loaded from a .env
// file, and may be overridden with flags:
//
//	OPENSPEC_ADDR              listen address (default :8080)
//	OPENSPEC_DATABASE_URL      PostgreSQL DSN; empty uses an in-memory store
//	OPENSPEC_SPEC_PATH         write the OpenRPC document here at startup
//	OPENSPEC_DEV               development logging
//	OPENSPEC_MAX_ASYNC         cap on concurrently running async handlers
//	OPENSPEC_RATE              requests per second per client
//	OPENSPEC_BURST             rate limiter burst
//	OPENSPEC_CORS_ORIGINS      comma separated origins allowed to call /rpc
//	OPENSPEC_SHUTDOWN_TIMEOUT  grace period for in-flight calls
//
// Endpoints:
//
//	POST /rpc            JSON-RPC over HTTP
//	GET  /ws             JSON-RPC over WebSocket
//	GET  /openrpc.json   OpenRPC document (also .yaml and .cbor)
//	GET  /metrics        Prometheus metrics
//	GET  /healthz        liveness
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mnehpets/openspec/endpoint"
	"github.com/mnehpets/openspec/example/userstore"
	"github.com/mnehpets/openspec/jsonrpc"
	"github.com/mnehpets/openspec/middleware"
	"github.com/mnehpets/openspec/spec"
)

type config struct {
	Addr            string        `env:"OPENSPEC_ADDR"`
	DatabaseURL     string        `env:"OPENSPEC_DATABASE_URL"`
	SpecPath        string        `env:"OPENSPEC_SPEC_PATH"`
	Dev             bool          `env:"OPENSPEC_DEV"`
	MaxAsync        int           `env:"OPENSPEC_MAX_ASYNC"`
	Rate            float64       `env:"OPENSPEC_RATE"`
	Burst           int           `env:"OPENSPEC_BURST"`
	CORSOrigins     string        `env:"OPENSPEC_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `env:"OPENSPEC_SHUTDOWN_TIMEOUT"`
}

func loadConfig() config {
	envFile := flag.String("env", ".env", "dotenv file to load")
	addr := flag.String("addr", "", "listen address")
	specPath := flag.String("spec", "", "write the OpenRPC document to this path (.json, .yaml or .cbor)")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No %s file found, using environment variables", *envFile)
	}

	cfg := config{
		Addr:            ":8080",
		MaxAsync:        64,
		Rate:            50,
		Burst:           100,
		ShutdownTimeout: 10 * time.Second,
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		log.Fatalf("config: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "spec":
			cfg.SpecPath = *specPath
		case "dev":
			cfg.Dev = *dev
		}
	})
	return cfg
}

func newLogger(dev bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

func openStore(ctx context.Context, cfg config, logger *zap.Logger) (userstore.Store, func()) {
	logger.Info("opening user store", zap.String("kind", storeKind(cfg)))
	if cfg.DatabaseURL == "" {
		return userstore.NewMemoryStore(), func() {}
	}
	s, err := userstore.OpenSQLStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open user store", zap.Error(err))
	}
	return s, func() { _ = s.Close() }
}

func storeKind(cfg config) string {
	if cfg.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}

// specRoutes serves the module's document in each export format.
func specRoutes(r chi.Router, m *jsonrpc.Module[userstore.State], processors ...endpoint.Processor) {
	r.Get("/openrpc.json", endpoint.HandleFunc(jsonrpc.DocumentEndpoint(m, spec.FormatJSON), processors...))
	r.Get("/openrpc.yaml", endpoint.HandleFunc(jsonrpc.DocumentEndpoint(m, spec.FormatYAML), processors...))
	r.Get("/openrpc.cbor", endpoint.HandleFunc(jsonrpc.DocumentEndpoint(m, spec.FormatCBOR), processors...))
}

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := jsonrpc.NewPrometheusObserver("openspec", reg)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	info := spec.NewInfo("User Directory", "1.0.0")
	info.Description = "Creates, lists and deletes users."
	m := jsonrpc.New(info, userstore.State{
		Service: "users",
		Started: time.Now(),
		Labels:  map[string]string{"store": storeKind(cfg)},
		Users:   store,
	},
		jsonrpc.WithLogger(logger),
		jsonrpc.WithObserver(observer),
		jsonrpc.WithMaxConcurrency(cfg.MaxAsync),
		jsonrpc.WithDiscovery(),
		jsonrpc.WithServers(spec.Server{Name: "local", URL: "http://localhost" + cfg.Addr + "/rpc"}),
	)
	if err := userstore.Register(m); err != nil {
		logger.Fatal("register methods", zap.Error(err))
	}
	m.Seal()

	if cfg.SpecPath != "" {
		if err := m.Export(cfg.SpecPath); err != nil {
			logger.Fatal("export spec", zap.Error(err))
		}
		logger.Info("wrote OpenRPC document", zap.String("path", cfg.SpecPath))
	}

	limiter := middleware.NewRateLimitProcessor(cfg.Rate, cfg.Burst)
	limiter.Logger = logger
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Prune(10 * time.Minute)
			}
		}
	}()

	var headerOpts []middleware.APIHeadersOption
	if cfg.CORSOrigins != "" {
		headerOpts = append(headerOpts, middleware.WithCORS(middleware.CORSConfig{
			AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		}))
	}
	processors := []endpoint.Processor{
		middleware.NewRequestIDProcessor(true),
		middleware.NewAccessLogProcessor(logger),
		middleware.NewAPIHeadersProcessor(headerOpts...),
		limiter,
	}

	rpc := jsonrpc.NewServer(m,
		jsonrpc.WithServerLogger(logger),
		jsonrpc.WithProcessors(processors...),
	)

	r := chi.NewRouter()
	r.Handle("/rpc", rpc)
	r.Get("/ws", endpoint.HandleFunc(func(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
		// The upgrade takes over the connection, so it runs as the renderer.
		return endpoint.RendererFunc(func(w http.ResponseWriter, r *http.Request) error {
			rpc.ServeWebSocket(w, r)
			return nil
		}), nil
	}, processors[0], processors[1], limiter))
	specRoutes(r, m, processors[0], processors[1])
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", endpoint.HandleFunc(func(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
		return &endpoint.StringRenderer{Body: "ok\n"}, nil
	}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Strings("methods", m.Methods()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := m.Shutdown(shutdownCtx); err != nil {
		logger.Warn("module shutdown", zap.Error(err))
	}
}

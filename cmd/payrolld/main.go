// Command payrolld is the thin process entrypoint that wires the payroll
// and PSP services together, bootstraps their schemas, starts the
// reconciliation/reservation-expiry scheduler, and exposes the pay-run,
// funding-gate, payment, and reconciliation operations on a chi router.
// The HTTP/REST surface is deliberately minimal: request authentication
// and routing concerns beyond this thin dispatch layer are an external
// collaborator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ledgerline/payroll-psp/internal/config"
	"github.com/ledgerline/payroll-psp/internal/events"
	"github.com/ledgerline/payroll-psp/internal/eventstore"
	"github.com/ledgerline/payroll-psp/internal/fundinggate"
	"github.com/ledgerline/payroll-psp/internal/ledger"
	"github.com/ledgerline/payroll-psp/internal/payments"
	"github.com/ledgerline/payroll-psp/internal/payroll"
	"github.com/ledgerline/payroll-psp/internal/railprovider"
	"github.com/ledgerline/payroll-psp/internal/ratecard"
	"github.com/ledgerline/payroll-psp/internal/reconciliation"
	"github.com/ledgerline/payroll-psp/internal/scheduler"
	"github.com/ledgerline/payroll-psp/internal/tenant"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("invalid LOG_LEVEL, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	configPath := flag.String("config", "config/payrolld.example.yaml", "path to the frozen configuration tree")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("connected to database")

	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build rail provider registry")
	}

	emitter := events.NewEmitter()
	eventStoreSvc := eventstore.NewService(pool)
	emitter.OnAll("event_store", eventStoreSvc.EmitterSink())

	tenantSvc := tenant.NewService(pool)
	rateSvc := ratecard.NewService(pool)
	ledgerSvc := ledger.NewService(pool, emitter)
	payrollSvc := payroll.NewService(pool, emitter)
	fundingSvc := fundinggate.NewService(pool, ledgerSvc, emitter)
	paymentsSvc := payments.NewService(pool, registry, emitter)
	reconSvc := reconciliation.NewService(pool, registry, paymentsSvc, emitter)

	schemas := []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"eventstore", eventStoreSvc.EnsureSchema},
		{"tenant", tenantSvc.EnsureSchema},
		{"ratecard", rateSvc.EnsureSchema},
		{"ledger", ledgerSvc.EnsureSchema},
		{"payroll", payrollSvc.EnsureSchema},
		{"fundinggate", fundingSvc.EnsureSchema},
		{"payments", paymentsSvc.EnsureSchema},
		{"reconciliation", reconSvc.EnsureSchema},
	}
	for _, s := range schemas {
		if err := s.ensure(ctx); err != nil {
			log.Fatal().Err(err).Str("component", s.name).Msg("failed to ensure schema")
		}
	}

	schedulerConfig := scheduler.DefaultConfig()
	if cfg.Reconciliation.Schedule != "" {
		schedulerConfig.ReconciliationSchedule = cfg.Reconciliation.Schedule
	}
	sched := scheduler.NewScheduler(pool, reconSvc, ledgerSvc, schedulerConfig)
	if err := sched.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to start scheduler")
	}

	h := &handlers{
		cfg:            cfg,
		payroll:        payrollSvc,
		funding:        fundingSvc,
		payments:       paymentsSvc,
		reconciliation: reconSvc,
	}
	r := setupRouter(h)

	srv := &http.Server{
		Addr:         addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		schedulerCtx := sched.Stop()
		<-schedulerCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("starting payrolld")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func addr() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

// buildRegistry constructs one stub rail provider per configured provider
// entry and assembles them into a closed registry keyed by configured
// priority (§4.8, §4.9). Sandbox providers never touch a real rail; they
// settle deterministically in-process.
func buildRegistry(cfg *config.Config) (*railprovider.Registry, error) {
	providers := make(map[string]railprovider.Provider, len(cfg.Providers))
	priorities := make(map[string]int, len(cfg.Providers))
	for _, p := range cfg.Providers {
		var base railprovider.Provider
		switch p.ProviderType {
		case config.ProviderACH:
			base = railprovider.NewACHStub(p.Sandbox)
		case config.ProviderFedNow:
			base = railprovider.NewFedNowStub(p.Sandbox)
		default:
			// Wire/RTP/Check stubs are a future extension; nothing
			// implements their adapter yet.
			return nil, fmt.Errorf("no stub adapter for provider_type %q (provider %q)", p.ProviderType, p.Name)
		}
		providers[p.Name] = base
		priorities[p.Name] = p.Priority
	}
	return railprovider.NewRegistry(providers, priorities)
}

func setupRouter(h *handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Tenant-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/pay-runs/{payRunID}", func(r chi.Router) {
		r.Post("/preview", h.previewRun)
		r.Post("/approve", h.approveRun)
		r.Post("/commit", h.commitRun)
		r.Post("/reopen", h.reopenRun)
		r.Post("/void", h.voidRun)
	})

	r.Post("/funding/evaluate", h.evaluateGate)
	r.Post("/instructions", h.createInstruction)
	r.Post("/instructions/{instructionID}/submit", h.submitInstruction)
	r.Post("/reconciliation/run", h.runReconciliation)

	return r
}

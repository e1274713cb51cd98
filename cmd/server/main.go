// main wires the stores, services, and HTTP surface, and runs the server
// lifecycle. Business logic lives in the internal service packages.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certledger/internal/certificates"
	certhandler "certledger/internal/certificates/handler"
	"certledger/internal/document/pdfdoc"
	"certledger/internal/issuance"
	issuancemetrics "certledger/internal/issuance/metrics"
	issuerstore "certledger/internal/issuer/store"
	keyhandler "certledger/internal/keys/handler"
	keyservice "certledger/internal/keys/service"
	keystore "certledger/internal/keys/store"
	ledgerstore "certledger/internal/ledger/store"
	"certledger/internal/platform/config"
	"certledger/internal/platform/httpserver"
	"certledger/internal/platform/logger"
	"certledger/internal/platform/middleware"
	"certledger/internal/platform/postgres"
	"certledger/internal/verification"
	verifmetrics "certledger/internal/verification/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	ctx := context.Background()

	var (
		keyStore    keystore.Store
		ledgerStore ledgerstore.Store
		issuers     issuerstore.Store
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		pgKeys := keystore.NewPostgres(db)
		keyStore = pgKeys
		ledgerStore = ledgerstore.NewPostgres(db, pgKeys)
		issuers = issuerstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		memKeys := keystore.NewInMemory()
		keyStore = memKeys
		ledgerStore = ledgerstore.NewInMemory(memKeys)

		memIssuers := issuerstore.NewInMemory()
		bootstrap := issuerstore.SeedBootstrapIssuer(memIssuers)
		issuers = memIssuers
		log.Info("using in-memory stores", "bootstrap_issuer_id", bootstrap.ID)
	}

	keys, err := keyservice.New(keyStore, keyservice.WithLogger(log))
	if err != nil {
		log.Error("key service init failed", "error", err)
		os.Exit(1)
	}

	renderer := pdfdoc.New()
	issuanceSvc, err := issuance.New(keys, ledgerStore, renderer, cfg.Verify.BaseURL,
		issuance.WithLogger(log),
		issuance.WithMetrics(issuancemetrics.New()),
		issuance.WithIssuerDirectory(issuers),
	)
	if err != nil {
		log.Error("issuance service init failed", "error", err)
		os.Exit(1)
	}
	verifier, err := verification.New(ledgerStore, pdfdoc.NewExtractor(),
		verification.WithLogger(log),
		verification.WithMetrics(verifmetrics.New()),
	)
	if err != nil {
		log.Error("verification service init failed", "error", err)
		os.Exit(1)
	}
	certs, err := certificates.New(ledgerStore, certificates.WithLogger(log))
	if err != nil {
		log.Error("certificates service init failed", "error", err)
		os.Exit(1)
	}

	auth := middleware.NewIssuerAuthenticator(cfg.Auth.JWTSecret)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))

	certhandler.New(issuanceSvc, verifier, certs, auth, log).Register(router)
	keyhandler.New(keys, auth, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Server.ListenAddr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

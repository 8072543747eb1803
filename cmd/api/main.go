package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/auth/profile"
	"manusfisio.app/internal/auth/provider"
	"manusfisio.app/internal/config"
	"manusfisio.app/internal/httpapi"
	"manusfisio.app/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "none"
)

func main() {
	log.SetFlags(0)

	// Observability primeiro: métricas registradas antes de qualquer handler
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.FromEnv()
	obs.SetMockMode(cfg.Mode.Mock)

	// A decisão de modo é registrada exatamente uma vez, na inicialização
	if cfg.Mode.Mock && !cfg.Mode.Intentional {
		log.Printf("WARNING: credential backend misconfigured (%s); falling back to MOCK auth. All sign-ins are fake.", cfg.Mode.Reason)
	} else {
		log.Printf("auth mode: %s", cfg.Mode)
	}

	var (
		db    *sql.DB
		prov  provider.Provider
		store profile.Store
	)
	if cfg.Mode.Mock {
		prov = provider.NewMock()
	} else {
		var err error
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		signer, err := auth.NewSigner(cfg.AuthSecret)
		if err != nil {
			log.Fatalf("signer: %v", err)
		}
		prov, err = provider.NewLocal(db, signer, provider.WithAccessTTL(cfg.AccessTTL))
		if err != nil {
			log.Fatalf("provider: %v", err)
		}
		store = profile.NewPGStore(db)
	}

	resolver, err := profile.NewResolver(store, profile.StrategyFor(cfg.IsDevelopment()), cfg.Mode.Mock)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	log.Printf("profile fallback strategy: %s", resolver.Strategy())

	api := httpapi.New(cfg, prov, resolver, store, db)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Sem WriteTimeout: o stream SSE de /v1/auth/events é de longa duração
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var grpcHealth *httpapi.GRPCHealth
	if cfg.GRPCAddr != "" {
		grpcHealth = httpapi.NewGRPCHealth()
		go func() {
			log.Printf("gRPC health on %s", cfg.GRPCAddr)
			if err := grpcHealth.Serve(cfg.GRPCAddr); err != nil {
				log.Fatalf("grpc listen: %v", err)
			}
		}()
	}

	log.Printf("Starting manus-fisio-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	if grpcHealth != nil {
		grpcHealth.SetReady(false)
		grpcHealth.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

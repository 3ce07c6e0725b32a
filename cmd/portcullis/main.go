package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BrandonDHaskell/Portcullis/internal/config"
	"github.com/BrandonDHaskell/Portcullis/internal/db"
	"github.com/BrandonDHaskell/Portcullis/internal/httpapi"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/firewall"
	fwiptables "github.com/BrandonDHaskell/Portcullis/internal/knock/firewall/iptables"
	fwmemory "github.com/BrandonDHaskell/Portcullis/internal/knock/firewall/memory"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/service"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store/memory"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store/sqlite"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "portcullis ", log.LstdFlags|log.LUTC)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit stores (memory in dev, sqlite in prod).
	var knockEvents store.KnockEventStore
	var grantEvents store.GrantEventStore
	if cfg.Env == "prod" {
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
		if err != nil {
			logger.Fatalf("open db: %v", err)
		}
		defer conn.Close()

		writer := db.NewWorker(conn)
		defer writer.Close()

		knockEvents = sqlite.NewKnockEventStore(conn, writer)
		grantEvents = sqlite.NewGrantEventStore(conn, writer)
	} else {
		knockEvents = memory.NewKnockEventStore()
		grantEvents = memory.NewGrantEventStore()
	}

	// Firewall backend. iptables also installs the default DROP for the
	// protected port, so a bare restart keeps it closed.
	var fw firewall.Controller
	switch cfg.Firewall {
	case "iptables":
		fw, err = fwiptables.New(cfg.ProtectedPort)
		if err != nil {
			logger.Fatalf("firewall: %v", err)
		}
	default:
		logger.Printf("using in-memory firewall; grants are not enforced")
		fw = fwmemory.NewController()
	}

	tracker := service.NewSequenceTracker(cfg.Sequence, time.Duration(cfg.WindowSeconds)*time.Second)
	grants := service.NewGrantService(fw, grantEvents, time.Duration(cfg.OpenSeconds)*time.Second, logger)

	// Every knock port must bind or we do not run at all.
	listeners := service.NewListenerSet(cfg.ListenHost, cfg.Sequence, logger)
	if err := listeners.Bind(); err != nil {
		logger.Fatalf("listen: %v", err)
	}
	logger.Printf("listening for knocks on %v (protected port %d, window %ds)",
		cfg.Sequence, cfg.ProtectedPort, cfg.WindowSeconds)

	events := make(chan types.KnockEvent, 64)
	go listeners.Run(ctx, events)

	engine := service.NewEngine(tracker, grants, knockEvents, service.EngineConfig{}, logger)
	engine.Start(ctx, events)

	pruner := service.NewEventPruner(knockEvents, service.PrunerConfig{
		RetentionDays: cfg.EventRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        logger,
		Addr:          cfg.HTTPAddr,
		Tracker:       tracker,
		Grants:        grants,
		ProtectedPort: cfg.ProtectedPort,
	})

	go func() {
		logger.Printf("admin api on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Active grants survive shutdown on purpose; see Engine.Stop.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	engine.Stop()
	pruner.Stop()
	listeners.Close()
}

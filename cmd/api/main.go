package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/broadcast"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/realtime"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

type backends struct {
	records attendance.Repository
	users   roster.Users
	classes roster.Classes
	checks  []handler.Check
	close   func()
}

func openStore(ctx context.Context, cfg config.App) (backends, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Println("store: in-memory backend, data is lost on exit")
		people := roster.NewMemoryStore()
		return backends{
			records: attendance.NewMemoryRepository(),
			users:   people,
			classes: people,
			close:   func() {},
		}, nil

	case "mongo":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return backends{}, err
		}
		records, err := attendance.NewMongoRepository(ctx, m.DB)
		if err != nil {
			_ = m.Close(ctx)
			return backends{}, err
		}
		people, err := roster.NewMongoStore(ctx, m.DB)
		if err != nil {
			_ = m.Close(ctx)
			return backends{}, err
		}
		log.Printf("store: mongo database %s", cfg.MongoDB)
		return backends{
			records: records,
			users:   people,
			classes: people,
			checks:  []handler.Check{{Name: "mongo", Healthy: m.Healthy}},
			close:   func() { _ = m.Close(context.Background()) },
		}, nil

	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return backends{}, err
		}
		people := roster.NewPostgresStore(db.Client)
		log.Println("store: postgres")
		return backends{
			records: attendance.NewPostgresRepository(db.Client),
			users:   people,
			classes: people,
			checks:  []handler.Check{{Name: "db", Healthy: db.Healthy}},
			close:   func() { _ = db.Close() },
		}, nil
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bus := broadcast.NewBus(broadcast.WithObserver(m), broadcast.WithVerboseLog(cfg.LogBroadcast))
	var pub broadcast.Publisher = bus
	checks := be.checks

	if cfg.BroadcastBackend == "redis" {
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		relay := broadcast.NewRedisRelay(rdb.Client, cfg.BroadcastChannel, bus)
		if err := relay.Subscribe(ctx); err != nil {
			return err
		}
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Printf("broadcast relay stopped: %v", err)
			}
		}()
		pub = relay
		checks = append(checks, handler.Check{Name: "redis", Healthy: relay.Healthy})
	}

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL)
	att := attendance.NewService(be.records, be.classes, pub,
		attendance.WithObserver(m),
		attendance.WithBulkConcurrency(cfg.BulkConcurrency),
	)
	people := roster.NewService(be.users, be.classes, be.records, auth.NewBcryptHasher(cfg.BcryptCost), signer)

	r := handler.NewRouter(handler.New(people, att), handler.Options{
		Signer:      signer,
		Stream:      realtime.NewStream(bus, cfg.WSSendBuffer, cfg.CORSOrigins),
		Limiter:     httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Gatherer:    reg,
		CORSOrigins: cfg.CORSOrigins,
		Checks:      checks,
		AccessLog:   true,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (store=%s, broadcast=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.BroadcastBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

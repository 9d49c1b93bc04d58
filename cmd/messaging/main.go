package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contactsapp/message-dispatch/internal/api"
	"github.com/contactsapp/message-dispatch/internal/cache"
	"github.com/contactsapp/message-dispatch/internal/config"
	"github.com/contactsapp/message-dispatch/internal/provider"
	"github.com/contactsapp/message-dispatch/internal/reconcile"
	"github.com/contactsapp/message-dispatch/internal/service"
	"github.com/contactsapp/message-dispatch/internal/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("message-dispatch starting (addr=%s, provider=%s, postgres=%v, redis=%v)",
		cfg.Server.Address,
		cfg.Email.Provider,
		cfg.Database.PostgresURL != "",
		cfg.Redis.Enabled,
	)

	messages, err := buildStore(cfg)
	if err != nil {
		log.Fatal(err)
	}

	gateway, err := provider.FromConfig(cfg.Email)
	if err != nil {
		log.Fatal(err)
	}

	var dispatch cache.DispatchCache = cache.Noop{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		dispatch = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	svc := service.New(messages, gateway, dispatch, cfg.Send)

	rec, err := reconcile.New(cfg.Reconcile.Interval, cfg.Reconcile.SendingDeadline, messages)
	if err != nil {
		log.Fatal(err)
	}
	rec.Start()
	defer rec.Stop()

	handler := api.NewHandler(svc, rec)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func buildStore(cfg *config.Config) (store.MessageStore, error) {
	if cfg.Database.PostgresURL == "" {
		slog.Warn("POSTGRES_URL not set, using in-memory message store")
		return store.NewMemoryStore(), nil
	}

	db, err := store.Open(cfg.Database.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return store.NewPostgresStore(db), nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

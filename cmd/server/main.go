package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"footprintiq-backend/services/alert-engine/internal/api"
	"footprintiq-backend/services/alert-engine/internal/bus"
	"footprintiq-backend/services/alert-engine/internal/config"
	"footprintiq-backend/services/alert-engine/internal/engine"
	"footprintiq-backend/services/alert-engine/internal/logger"
	"footprintiq-backend/services/alert-engine/internal/metricstore"
	"footprintiq-backend/services/alert-engine/internal/notify"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer store.Close()
	repo := storage.NewRepository(store)
	metricSource := metricstore.NewPostgresSource(store)

	publisher, err := bus.NewPublisher(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer publisher.Close()
	subscriber, err := bus.NewSubscriber(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer subscriber.Close()

	dispatcher := notify.NewDispatcher(repo, cfg.EmailServiceURL)
	lifecycle := engine.NewLifecycle(repo, repo, dispatcher, publisher)
	evaluator := engine.NewEvaluator(metricSource, repo, repo)
	trainer := engine.NewTrainer(metricSource, repo, publisher)
	runner := engine.NewRunner(repo, evaluator, lifecycle, cfg.EvaluationInterval, cfg.Workers)

	runPass := func() {
		passCtx, cancel := context.WithTimeout(context.Background(), cfg.PassTimeout)
		defer cancel()
		if _, err := runner.RunEvaluationPass(passCtx); err != nil {
			log.Error().Err(err).Msg("evaluation pass failed")
		}
	}

	if _, err := subscriber.Subscribe(bus.SubjectEvaluate, func([]byte) { runPass() }); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to evaluate subject")
	}

	handler := &api.Handler{
		Runner:   runner,
		Alerts:   lifecycle,
		Trainer:  trainer,
		Notifier: dispatcher,
		Reader:   repo,
		Timeout:  cfg.HTTPTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.PassTimeout + 5*time.Second))

	handler.RegisterRoutes(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.PassTimeout + 10*time.Second,
		IdleTimeout:       30 * time.Second,
	}

	tickerCtx, stopTicker := context.WithCancel(ctx)
	defer stopTicker()
	if cfg.SchedulerEnabled {
		go func() {
			ticker := time.NewTicker(cfg.EvaluationInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					runPass()
				case <-tickerCtx.Done():
					return
				}
			}
		}()
		log.Info().Dur("interval", cfg.EvaluationInterval).Msg("internal scheduler enabled")
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		stopTicker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", cfg.Port).Msg("alert-engine listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server error")
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/speakerhub/pkg/cache"
	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/database"
	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/metrics"
	mw "github.com/diagnosis/speakerhub/pkg/middleware"
	"github.com/diagnosis/speakerhub/services/bookings/internal/calendar"
	"github.com/diagnosis/speakerhub/services/bookings/internal/handlers"
	"github.com/diagnosis/speakerhub/services/bookings/internal/repository"
	"github.com/diagnosis/speakerhub/services/bookings/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			logger.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Idempotency replay is optional; without Redis every request is processed.
	var idempotency mw.IdempotencyStore
	if rdb, err := cache.NewRedisClient(ctx, cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, idempotency keys disabled", "error", err)
	} else {
		defer rdb.Close()
		idempotency = cache.NewIdempotencyStore(rdb)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if bus, err := events.NewNATSEventBus(cfg.NATS.URL, "speakerhub-bookings"); err != nil {
		logger.Warn("NATS unavailable, domain events disabled", "error", err)
	} else {
		defer bus.Close()
		publisher = bus
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg, "bookings")

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	speakerRepo := repository.NewSpeakerRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	var notifier calendar.Notifier
	var connector handlers.CalendarConnector
	if cfg.Calendar.DevMode {
		logger.Info("Calendar running in dev mode, events are logged only")
		notifier = calendar.NewDevNotifier()
	} else {
		google := calendar.NewGoogleNotifier(cfg.Calendar, repository.NewCalendarTokenRepository(pool))
		notifier = google
		connector = google
	}

	// Initialize services
	bookingService := service.NewBookingService(userRepo, sessionRepo, notifier, publisher, collector, cfg)
	speakerService := service.NewSpeakerService(userRepo, speakerRepo, sessionRepo, publisher, cfg)

	limiter := mw.NewUserRateLimiter(cfg.Booking.RatePerMinute, cfg.Booking.RateBurst, 10*time.Minute)
	defer limiter.Stop()

	h := handlers.New(bookingService, speakerService, connector, idempotency, limiter, cfg)

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics(collector, reg))
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BookingsPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down bookings service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Bookings service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting bookings service", "port", cfg.Server.BookingsPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Bookings service error", "error", err)
		os.Exit(1)
	}
}

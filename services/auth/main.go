package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/speakerhub/pkg/config"
	"github.com/diagnosis/speakerhub/pkg/database"
	"github.com/diagnosis/speakerhub/pkg/events"
	"github.com/diagnosis/speakerhub/pkg/logger"
	"github.com/diagnosis/speakerhub/pkg/mailer"
	"github.com/diagnosis/speakerhub/pkg/metrics"
	mw "github.com/diagnosis/speakerhub/pkg/middleware"
	"github.com/diagnosis/speakerhub/services/auth/internal/handlers"
	"github.com/diagnosis/speakerhub/services/auth/internal/repository"
	"github.com/diagnosis/speakerhub/services/auth/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// Without NATS the service mails passcodes itself.
	var delivery events.Requester
	if bus, err := events.NewNATSEventBus(cfg.NATS.URL, "speakerhub-auth"); err != nil {
		logger.Warn("NATS unavailable, sending OTP emails directly", "error", err)
		delivery = unreachableBus{err: err}
	} else {
		defer bus.Close()
		delivery = bus
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg, "auth")

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	otpRepo := repository.NewOTPRepository(pool)
	counter := mw.NewPGWindowCounter(pool)

	authService := service.NewAuthService(userRepo, otpRepo, mailer.New(cfg.Email), delivery, cfg)
	h := handlers.New(authService, counter, cfg)

	go cleanupLoop(ctx, counter, otpRepo)

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("auth"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics(collector, reg))
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.AuthPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Auth service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting auth service", "port", cfg.Server.AuthPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}

// cleanupLoop prunes expired rate-limit windows and stale passcodes.
func cleanupLoop(ctx context.Context, counter *mw.PGWindowCounter, otps repository.OTPRepository) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := counter.CleanupExpired(ctx); err != nil {
				logger.Warn("Rate limit cleanup failed", "error", err)
			} else if n > 0 {
				logger.Debug("Pruned rate limit windows", "count", n)
			}
			if n, err := otps.DeleteExpired(ctx); err != nil {
				logger.Warn("OTP cleanup failed", "error", err)
			} else if n > 0 {
				logger.Debug("Pruned expired passcodes", "count", n)
			}
		}
	}
}

// unreachableBus fails every request so passcodes take the direct mail path.
type unreachableBus struct {
	err error
}

func (b unreachableBus) Request(context.Context, string, interface{}) error { return b.err }

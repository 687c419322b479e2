package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"kasirinaja/checkout/internal/cache"
	"kasirinaja/checkout/internal/config"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/httpapi"
	"kasirinaja/checkout/internal/obs"
	"kasirinaja/checkout/internal/payment"
	"kasirinaja/checkout/internal/rates"
	"kasirinaja/checkout/internal/receipt"
	"kasirinaja/checkout/internal/service"
	"kasirinaja/checkout/internal/store"
	"kasirinaja/checkout/internal/store/memory"
	pgstore "kasirinaja/checkout/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("json", "info").Fatal().Err(err).Msg("load configuration")
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}
	obs.MustRegisterMetrics(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate schema")
		}
		if err := seedCatalogIfMissing(ctx, pg, cfg.EventID, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed catalog")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.EventID, logger)
		logger.Info().Msg("repository: in-memory")
	}

	rateCache := cache.RateCache(cache.NoopRateCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using noop cache")
		} else {
			rateCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info().Msg("cache: redis")
		}
	} else {
		logger.Info().Msg("cache: noop")
	}

	var provider payment.Provider
	if cfg.PaymentGatewayURL != "" {
		provider = payment.NewGateway(payment.GatewayConfig{BaseURL: cfg.PaymentGatewayURL, APIKey: cfg.PaymentGatewayKey}, logger)
		logger.Info().Str("url", cfg.PaymentGatewayURL).Msg("payments: gateway")
	} else {
		provider = payment.NewSimulated(logger)
		logger.Warn().Msg("payments: simulated, no money is moved")
	}

	var refresher *rates.Refresher
	if cfg.RateServiceURL != "" {
		refresher = rates.NewRefresher(rates.NewHTTPFetcher(cfg.RateServiceURL, 0), repo, rateCache, cfg.EventID, cfg.RateCacheTTL(), logger)
	}

	receipts := receipt.NewDispatcher(receipt.LogSender{Logger: logger}, logger, 0)
	svcCfg := service.Config{
		EventID:     cfg.EventID,
		Provider:    provider,
		Receipts:    receipts,
		MaxAttempts: cfg.SettlementMaxAttempts,
		Logger:      logger,
	}
	if refresher != nil {
		svcCfg.Rates = refresher
	}
	svc := service.New(repo, svcCfg)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo, logger)
	if err := bootstrapManager(ctx, repo, auth, logger); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap manager account")
	}
	api := httpapi.New(svc, auth, httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Logger: logger})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Provider charges can take a while on a card reader.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	if refresher != nil {
		if _, err := refresher.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial rate refresh failed, keeping configured rates")
		}
		go refresher.Run(runCtx, cfg.RateRefreshInterval)
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Str("event_id", cfg.EventID).Msg("checkout server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopRun()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	receipts.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

type catalogSeeder interface {
	LoadCatalog(ctx context.Context, eventID string) (domain.Catalog, error)
	SaveCatalog(ctx context.Context, catalog domain.Catalog) error
}

// seedCatalogIfMissing loads the demo festival catalog into an empty database.
func seedCatalogIfMissing(ctx context.Context, repo catalogSeeder, eventID string, logger zerolog.Logger) error {
	_, err := repo.LoadCatalog(ctx, eventID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := repo.SaveCatalog(ctx, memory.SeedCatalog(eventID)); err != nil {
		return err
	}
	logger.Warn().Str("event_id", eventID).Msg("no catalog found, seeded the demo catalog")
	return nil
}

// bootstrapManager creates the first manager from SEED_MANAGER_PASSWORD when the user store is empty.
func bootstrapManager(ctx context.Context, repo store.Repository, auth *httpapi.AuthManager, logger zerolog.Logger) error {
	users, err := repo.ListUsers(ctx)
	if err != nil || len(users) > 0 {
		return err
	}
	password := os.Getenv("SEED_MANAGER_PASSWORD")
	if password == "" {
		logger.Warn().Msg("no operator accounts and SEED_MANAGER_PASSWORD unset; nobody can log in")
		return nil
	}
	_, err = auth.CreateOperator(ctx, domain.OperatorCreateRequest{Username: "manager", Password: password, Role: domain.RoleManager})
	if err == nil {
		logger.Info().Msg("bootstrapped manager account")
	}
	return err
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects common, repeated-digit and sequential PINs.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "121212": true,
		"112233": true, "123123": true, "696969": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}

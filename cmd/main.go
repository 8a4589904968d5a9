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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/pos-service/internal/audit"
	"github.com/fjod/go_cart/pos-service/internal/authz"
	"github.com/fjod/go_cart/pos-service/internal/catalog"
	"github.com/fjod/go_cart/pos-service/internal/commerce"
	"github.com/fjod/go_cart/pos-service/internal/config"
	"github.com/fjod/go_cart/pos-service/internal/customer"
	h "github.com/fjod/go_cart/pos-service/internal/http"
	"github.com/fjod/go_cart/pos-service/internal/logger"
	"github.com/fjod/go_cart/pos-service/internal/loyalty"
	"github.com/fjod/go_cart/pos-service/internal/pricing"
	"github.com/fjod/go_cart/pos-service/internal/terminal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pos-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, "pos-service")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	engine, err := pricing.NewEngine(cfg.Pricing)
	if err != nil {
		return fmt.Errorf("pricing config: %w", err)
	}

	commerceClient, err := commerce.NewClient(commerce.Config{
		BaseURL: cfg.CommerceBaseURL,
		Timeout: cfg.CommerceTimeout,
	}, log)
	if err != nil {
		return err
	}

	// Redis is a cache only; the service keeps working when it is down.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, loyalty profiles will not be cached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancelPing()

	customers := customer.NewService(
		commerceClient,
		customer.NewRedisCache(redisClient, cfg.CustomerCacheTTL),
		loyalty.DefaultTiers(),
		log,
	)

	catalogRepo, closeCatalog, err := openCatalog(cfg, log)
	if err != nil {
		return err
	}
	defer closeCatalog()

	var publisher audit.Publisher = audit.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = audit.NewKafkaPublisher(audit.NewKafkaWriter(cfg.AuditTopic, cfg.KafkaBrokers...), log)
		log.Info("publishing authorization audit events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.AuditTopic))
	}
	defer publisher.Close()

	registry := terminal.NewRegistry(engine, commerceClient, authz.Options{
		AllowedRoles:    cfg.AuthAllowedRoles,
		SessionDuration: cfg.AuthSessionDuration,
	})

	router := h.NewRouter(
		h.RouterConfig{RequestTimeout: cfg.RequestTimeout, MaxRequestBodySize: cfg.MaxRequestBodySize},
		h.NewBarcodeHandler(log),
		h.NewTerminalHandler(registry, catalogRepo, customers, publisher, log, cfg.RequestTimeout),
		log,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("pos-service starting", zap.String("addr", srv.Addr), zap.String("stacking_order", cfg.Pricing.Order.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

// openCatalog connects to MongoDB when MONGO_URI is set and falls back to an
// empty in-memory catalog otherwise.
func openCatalog(cfg *config.Config, log *zap.Logger) (catalog.Repository, func(), error) {
	if cfg.MongoURI == "" {
		log.Warn("MONGO_URI not set, using an empty in-memory catalog")
		return catalog.NewMemoryRepository(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, err := catalog.OpenMongoRepository(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to catalog", zap.String("database", cfg.MongoDBName))

	return repo, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.Close(ctx); err != nil {
			log.Warn("failed to disconnect from MongoDB", zap.Error(err))
		}
	}, nil
}

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

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/kiranabazaar/api/internal/domain"
	"github.com/kiranabazaar/api/internal/handlers"
	"github.com/kiranabazaar/api/internal/payments"
	"github.com/kiranabazaar/api/internal/platform/config"
	pfirestore "github.com/kiranabazaar/api/internal/platform/firestore"
	"github.com/kiranabazaar/api/internal/platform/idempotency"
	"github.com/kiranabazaar/api/internal/platform/jobs"
	"github.com/kiranabazaar/api/internal/platform/observability"
	"github.com/kiranabazaar/api/internal/platform/secrets"
	firestoreRepo "github.com/kiranabazaar/api/internal/repositories/firestore"
	"github.com/kiranabazaar/api/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("api")

	fetcher, err := secrets.NewFetcher(ctx, os.Getenv("GOOGLE_CLOUD_PROJECT"), secrets.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		return fmt.Errorf("initialise firestore client: %w", err)
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		return err
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		return err
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		return err
	}

	shippingPolicy := domain.ShippingPolicy{
		FreeThreshold: cfg.Shipping.FreeThresholdPaise,
		FlatFee:       cfg.Shipping.FlatFeePaise,
	}

	serviceLogger := observability.ServiceEventLogger()

	razorpayProvider, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		Logger:    serviceLogger,
	})
	if err != nil {
		return fmt.Errorf("initialise razorpay provider: %w", err)
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"razorpay": razorpayProvider,
	}, payments.WithDefaultProvider("razorpay"))
	if err != nil {
		return fmt.Errorf("initialise payment manager: %w", err)
	}

	var eventPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.PubSub.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("initialise pubsub client: %w", err)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.PubSub.OrderEventTopic))
		if err != nil {
			return err
		}
		eventPublisher = publisher
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:    cartRepo,
		Catalog:  catalogRepo,
		Shipping: shippingPolicy,
		Logger:   serviceLogger,
	})
	if err != nil {
		return err
	}
	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:    cartRepo,
		Payments: paymentManager,
		Shipping: shippingPolicy,
		Logger:   serviceLogger,
	})
	if err != nil {
		return err
	}
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderRepo,
		Carts:    cartRepo,
		Shipping: shippingPolicy,
		Events:   eventPublisher,
		Logger:   serviceLogger,
	})
	if err != nil {
		return err
	}

	idemStore := idempotency.NewFirestoreStore(firestoreClient)

	router := handlers.NewRouter(handlers.RouterDeps{
		Logger:           logger,
		Cart:             handlers.NewCartHandler(cartService),
		Checkout:         handlers.NewCheckoutHandler(checkoutService),
		Orders:           handlers.NewOrderHandler(orderService),
		Health:           handlers.NewHealthHandler(readinessChecks(firestoreProvider)),
		IdempotencyStore: idemStore,
		IdempotencyOpts: []idempotency.MiddlewareOption{
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(logger),
		},
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func readinessChecks(provider *pfirestore.Provider) map[string]handlers.ReadinessChecker {
	return map[string]handlers.ReadinessChecker{
		"firestore": func(ctx context.Context) error {
			_, err := provider.Client(ctx)
			return err
		},
	}
}

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
	"google.golang.org/api/iterator"

	"github.com/fieldstone/storefront/internal/handlers"
	"github.com/fieldstone/storefront/internal/platform/auth"
	"github.com/fieldstone/storefront/internal/platform/config"
	"github.com/fieldstone/storefront/internal/platform/events"
	pfirestore "github.com/fieldstone/storefront/internal/platform/firestore"
	"github.com/fieldstone/storefront/internal/platform/idempotency"
	"github.com/fieldstone/storefront/internal/platform/observability"
	"github.com/fieldstone/storefront/internal/repositories"
	firestoreRepo "github.com/fieldstone/storefront/internal/repositories/firestore"
	"github.com/fieldstone/storefront/internal/services"
)

const (
	checkoutRateLimit  = 5
	checkoutRateWindow = time.Minute
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check: func(checkCtx context.Context) error {
				_, err := firestoreClient.Collections(checkCtx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		},
	})
	if err != nil {
		logger.Fatal("failed to build health repository", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to build repository registry", zap.Error(err))
	}

	var publisher services.EventPublisher
	if cfg.PubSub.OrderTopic != "" || cfg.PubSub.StockTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		var orderTopic, stockTopic *pubsub.Topic
		if cfg.PubSub.OrderTopic != "" {
			orderTopic = pubsubClient.Topic(cfg.PubSub.OrderTopic)
			defer orderTopic.Stop()
		}
		if cfg.PubSub.StockTopic != "" {
			stockTopic = pubsubClient.Topic(cfg.PubSub.StockTopic)
			defer stockTopic.Stop()
		}

		publisher, err = events.NewPubSubPublisher(orderTopic, stockTopic)
		if err != nil {
			logger.Fatal("failed to build event publisher", zap.Error(err))
		}
	} else {
		logger.Info("event publishing disabled; no pubsub topics configured")
	}

	serviceLogger := newServiceLogger(logger.Named("services"))

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog: registry.Catalog(),
	})
	if err != nil {
		logger.Fatal("failed to build catalog service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:   registry.Carts(),
		Catalog: registry.Catalog(),
		Logger:  serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to build cart service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:    registry.Carts(),
		Catalog:  registry.Catalog(),
		Stock:    registry.Stock(),
		Orders:   registry.Orders(),
		Counters: registry.Counters(),
		Events:   publisher,
		Logger:   serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to build checkout service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: registry.Orders(),
		Events: publisher,
		Logger: serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to build order service", zap.Error(err))
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: registry.Health(),
	})
	if err != nil {
		logger.Fatal("failed to build system service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupDone := make(chan struct{})
	go func() {
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupDone:
				return
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency records expired", zap.Int("removed", removed))
				}
			}
		}
	}()

	authn := auth.NewMiddleware(auth.WithHeader(cfg.Server.CustomerHeader))

	productHandlers := handlers.NewProductHandlers(catalogService)
	cartHandlers := handlers.NewCartHandlers(authn, cartService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authn, checkoutService,
		handlers.NewRateLimiter(checkoutRateLimit, checkoutRateWindow))
	orderHandlers := handlers.NewOrderHandlers(authn, orderService)
	healthHandlers := handlers.NewHealthHandlers(systemService)

	projectID := cfg.Firestore.ProjectID
	router := handlers.NewRouter(
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithCheckoutTimeout(cfg.Server.CheckoutTimeout),
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	close(cleanupDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newServiceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}

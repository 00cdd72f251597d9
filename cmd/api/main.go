package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/flss-ops/api/internal/commerce"
	"github.com/flss-ops/api/internal/handlers"
	"github.com/flss-ops/api/internal/platform/auth"
	"github.com/flss-ops/api/internal/platform/config"
	pfirestore "github.com/flss-ops/api/internal/platform/firestore"
	"github.com/flss-ops/api/internal/platform/idempotency"
	"github.com/flss-ops/api/internal/platform/jobs"
	"github.com/flss-ops/api/internal/platform/observability"
	"github.com/flss-ops/api/internal/platform/secrets"
	firestoreRepo "github.com/flss-ops/api/internal/repositories/firestore"
	"github.com/flss-ops/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if cfg.Firestore.EmulatorHost != "" {
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
			logger.Fatal("failed to point firestore at emulator", zap.Error(err))
		}
	}

	var providerOpts []pfirestore.ProviderOption
	if cfg.Firestore.DatabaseID != "" {
		providerOpts = append(providerOpts, pfirestore.WithDatabaseID(cfg.Firestore.DatabaseID))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore.ProjectID, providerOpts...)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	priceListRepo, err := firestoreRepo.NewPriceListRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise price list repository", zap.Error(err))
	}

	commerceClient, err := commerce.NewClient(commerce.ClientDeps{
		ShopDomain:  cfg.Commerce.ShopDomain,
		APIVersion:  cfg.Commerce.APIVersion,
		AccessToken: cfg.Commerce.AccessToken,
		MaxAttempts: cfg.Commerce.MaxAttempts,
		Logger:      logger.Named("commerce"),
	})
	if err != nil {
		logger.Fatal("failed to initialise commerce client", zap.Error(err))
	}

	pricingService, err := services.NewPricingService(services.PricingServiceDeps{
		PriceLists:   priceListRepo,
		Orders:       commerceClient,
		TierCacheTTL: cfg.Pricing.TierCacheTTL,
		Logger:       eventLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing service", zap.Error(err))
	}

	priceListService, err := services.NewPriceListService(services.PriceListServiceDeps{
		PriceLists: priceListRepo,
		Logger:     eventLogger(logger.Named("price_lists")),
	})
	if err != nil {
		logger.Fatal("failed to initialise price list service", zap.Error(err))
	}

	var publisher services.ReconciliationEventPublisher
	var pubsubClient *pubsub.Client
	var reconciliationTopic *pubsub.Topic
	if cfg.Pubsub.ReconciliationTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Pubsub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		reconciliationTopic = pubsubClient.Topic(cfg.Pubsub.ReconciliationTopic)
		publisher, err = jobs.NewPubSubReconciliationPublisher(reconciliationTopic)
		if err != nil {
			logger.Fatal("failed to initialise reconciliation publisher", zap.Error(err))
		}
	}
	defer func() {
		if reconciliationTopic != nil {
			reconciliationTopic.Stop()
		}
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	statusStore := services.NewReconciliationStatusStore(cfg.Pricing.StatusCapacity)
	reconciliationService, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Orders:      commerceClient,
		Pricing:     pricingService,
		Statuses:    statusStore,
		Publisher:   publisher,
		KnownTiers:  cfg.Pricing.KnownTiers,
		DefaultTier: cfg.Pricing.DefaultTier,
		Logger:      eventLogger(logger.Named("reconciliation")),
	})
	if err != nil {
		logger.Fatal("failed to initialise reconciliation service", zap.Error(err))
	}

	draftOrderService, err := services.NewDraftOrderService(services.DraftOrderServiceDeps{
		Orders:  commerceClient,
		Pricing: pricingService,
		Logger:  eventLogger(logger.Named("draft_orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise draft order service", zap.Error(err))
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewFirestoreStore(firestoreClient),
		idempotency.WithTTL(24*time.Hour),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessCheck("firestore", firestoreCheck(firestoreClient)),
	)

	pricingHandlers := handlers.NewPricingHandlers(pricingService)
	draftOrderHandlers := handlers.NewDraftOrderHandlers(draftOrderService)
	reconciliationHandlers := handlers.NewReconciliationHandlers(reconciliationService)
	priceListHandlers := handlers.NewPriceListHandlers(priceListService)

	projectID := cfg.Firestore.ProjectID
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPricingRoutes(pricingHandlers.Routes),
		handlers.WithDraftOrderRoutes(func(r chi.Router) {
			r.Use(idempotencyMiddleware)
			draftOrderHandlers.Routes(r)
			reconciliationHandlers.Routes(r)
		}),
		handlers.WithAdminRoutes(priceListHandlers.Routes),
		handlers.WithAdminMiddlewares(auth.APIKeyMiddleware(cfg.Auth.APIKeys)),
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
		serverLogger.Info("flss ops api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// eventLogger adapts a zap logger to the map-based event logging the
// services expect.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

func firestoreCheck(client *firestore.Client) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer cancel()
		iter := client.Collections(checkCtx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := keyValuePairsFromEnv(env, "API_SECRET_PROJECT_IDS"); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := keyValuePairsFromEnv(env, "API_SECRET_VERSION_PINS"); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_GOOGLE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve through the
// secret fetcher, derived from which env values carry secret references.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if isSecretReference(env["API_COMMERCE_ACCESS_TOKEN"]) {
		required = append(required, "Commerce.AccessToken")
	}
	for name, value := range keyValuePairsFromEnv(env, "API_AUTH_KEYS") {
		if isSecretReference(value) {
			required = append(required, fmt.Sprintf("Auth.APIKeys[%s]", name))
		}
	}
	return required
}

func isSecretReference(value string) bool {
	value = strings.TrimSpace(value)
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func keyValuePairsFromEnv(env map[string]string, key string) map[string]string {
	raw := ""
	if env != nil {
		raw = env[key]
	}
	pairs := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if name == "" || value == "" {
			continue
		}
		pairs[name] = value
	}
	return pairs
}

// Package server builds the application's dependencies and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/api"
	"github.com/JakeFAU/creator-discovery/internal/auth"
	"github.com/JakeFAU/creator-discovery/internal/clock/system"
	"github.com/JakeFAU/creator-discovery/internal/config"
	"github.com/JakeFAU/creator-discovery/internal/dispatcher"
	"github.com/JakeFAU/creator-discovery/internal/id/uuid"
	"github.com/JakeFAU/creator-discovery/internal/ledger"
	"github.com/JakeFAU/creator-discovery/internal/logging"
	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/plan"
	memorypublisher "github.com/JakeFAU/creator-discovery/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/creator-discovery/internal/publisher/pubsub"
	"github.com/JakeFAU/creator-discovery/internal/publisher/qstash"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
	"github.com/JakeFAU/creator-discovery/internal/status"
	memorystorage "github.com/JakeFAU/creator-discovery/internal/storage/memory"
	pgstore "github.com/JakeFAU/creator-discovery/internal/storage/postgres"
	"github.com/JakeFAU/creator-discovery/internal/suggest"
	"github.com/JakeFAU/creator-discovery/internal/telemetry"
	"github.com/JakeFAU/creator-discovery/internal/webhooks"
)

const shutdownTimeout = 10 * time.Second

// backend is everything the services need from persistence.
type backend interface {
	scraping.JobStore
	scraping.CampaignStore
	scraping.UserStore
	scraping.UsageReader
	ledger.Store
}

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	pg              *pgstore.Store
	redis           *redis.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	tracerShutdown  func(context.Context) error
}

// Build creates the application's dependencies. Backends left unconfigured
// fall back to in-memory implementations.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Service:     cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.String("queue_provider", cfg.Queue.Provider),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
	)

	metrics.Init()
	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	store, err := app.setupStore(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, scheduler, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	clock := system.New()
	ids := uuid.NewUUIDGenerator()
	enforcer := plan.NewEnforcer(store, store, clock, plan.Options{
		Production:    cfg.IsProduction(),
		BypassEnabled: cfg.Plans.BypassEnabled,
	}, logger)
	dispatch := dispatcher.New(store, store, enforcer, publisher, clock, ids, dispatcher.Config{
		CallbackURL:    cfg.Queue.CallbackURL,
		TimeoutWindows: cfg.TimeoutWindows(),
		Runners:        cfg.Jobs.Runners,
	}, logger)

	webhook, err := webhooks.NewClerkHandler(webhooks.ClerkConfig{
		Secret:        cfg.Auth.WebhookSecret,
		TrialCheckURL: cfg.Queue.TrialCheckURL,
		TrialLength:   cfg.TrialLength(),
	}, store, ledger.New(store, clock, logger), scheduler, clock, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("webhook handler init failed: %w", err)
	}

	suggestions, err := app.setupSuggestions(clock)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	deps := api.Deps{
		Dispatcher:   dispatch,
		Status:       status.NewReader(store, clock, logger),
		Plans:        enforcer,
		Campaigns:    store,
		IDs:          ids,
		Clock:        clock,
		Suggest:      suggestions,
		ClerkWebhook: webhook,
		Auth:         app.setupAuth(),
		Ready:        app.ready,
	}
	app.apiServer = api.NewServer(deps, cfg, logger)
	return app, nil
}

func (a *App) setupStore(ctx context.Context) (backend, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory stores")
		return memorystorage.New(), nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pg = store
	a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	return store, nil
}

// setupPublisher returns the job publisher and, when the provider can delay
// delivery, the scheduler used for trial expiry checks.
func (a *App) setupPublisher(ctx context.Context) (scraping.Publisher, webhooks.Scheduler, error) {
	switch a.cfg.Queue.Provider {
	case config.QueueQStash:
		pub, err := qstash.New(qstash.Config{
			BaseURL:            a.cfg.Queue.QStash.BaseURL,
			Token:              a.cfg.Queue.QStash.Token,
			Retries:            a.cfg.Queue.Retries,
			FailureCallbackURL: a.cfg.Queue.FailureCallbackURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("qstash publisher init failed: %w", err)
		}
		a.logger.Info("QStash publisher initialized", zap.String("callback_url", a.cfg.Queue.CallbackURL))
		return pub, pub, nil
	case config.QueuePubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Queue.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPublisher = gcppublisher.New(client.Publisher(a.cfg.Queue.PubSub.TopicName))
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Queue.PubSub.ProjectID),
			zap.String("topic", a.cfg.Queue.PubSub.TopicName),
		)
		// Pub/Sub has no delayed delivery; trial checks are recorded but not scheduled.
		return a.pubsubPublisher, nil, nil
	default:
		a.logger.Warn("no queue provider configured, using in-memory publisher")
		pub := memorypublisher.New()
		return pub, pub, nil
	}
}

func (a *App) setupSuggestions(clock *system.Clock) (*suggest.Service, error) {
	if a.cfg.Suggest.AnthropicAPIKey == "" {
		a.logger.Warn("no Anthropic API key configured, suggestions disabled")
		return nil, nil
	}
	gen, err := suggest.NewAnthropicGenerator(suggest.AnthropicConfig{
		APIKey:    a.cfg.Suggest.AnthropicAPIKey,
		Model:     a.cfg.Suggest.Model,
		MaxTokens: a.cfg.Suggest.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion generator init failed: %w", err)
	}
	var cache suggest.Cache
	if a.cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		cache = suggest.NewRedisCache(a.redis)
		a.logger.Info("redis suggestion cache initialized", zap.String("addr", a.cfg.Redis.Addr))
	} else {
		cache = suggest.NewMemoryCache(a.cfg.Suggest.CacheMaxEntries, clock)
	}
	return suggest.NewService(gen, cache, a.cfg.SuggestCacheTTL(), a.logger), nil
}

func (a *App) setupAuth() func(http.Handler) http.Handler {
	opts := auth.MiddlewareOptions{Logger: a.logger}
	if a.cfg.Auth.ClerkIssuer != "" {
		opts.Verifier = auth.NewClerkVerifier(a.cfg.Auth.ClerkIssuer, nil)
	}
	if !a.cfg.IsProduction() {
		opts.DevUserID = a.cfg.Auth.DevUserID
	}
	if opts.Verifier == nil && opts.DevUserID == "" {
		a.logger.Warn("no Clerk issuer or dev user configured, authenticated routes will reject every request")
	}
	return auth.Middleware(opts)
}

func (a *App) ready(ctx context.Context) error {
	if a.pg != nil {
		if err := a.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
		close(errCh)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close(shutdownCtx)

	if err := <-errCh; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases connections and flushes telemetry.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure()
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

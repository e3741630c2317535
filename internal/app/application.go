package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/jobs"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/services/auth"
	"github.com/seanotes/seanotes/internal/app/services/billing"
	"github.com/seanotes/seanotes/internal/app/services/email"
	"github.com/seanotes/seanotes/internal/app/services/environments"
	"github.com/seanotes/seanotes/internal/app/services/events"
	"github.com/seanotes/seanotes/internal/app/services/invoice"
	"github.com/seanotes/seanotes/internal/app/services/noteintel"
	"github.com/seanotes/seanotes/internal/app/services/notes"
	"github.com/seanotes/seanotes/internal/app/services/objectstore"
	"github.com/seanotes/seanotes/internal/app/services/search"
	"github.com/seanotes/seanotes/internal/app/services/status"
	"github.com/seanotes/seanotes/internal/app/services/users"
	"github.com/seanotes/seanotes/internal/app/storage"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/app/system"
	"github.com/seanotes/seanotes/internal/cache"
	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/metrics"
	"github.com/seanotes/seanotes/internal/ratelimit"
)

const (
	janitorInterval   = time.Minute
	rateLimitInterval = time.Minute
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Subscriptions storage.SubscriptionStore
	Notes         storage.NoteStore
	Chunks        storage.ChunkStore
	Environments  storage.EnvironmentStore
	Tokens        storage.TokenStore
	Invoices      storage.InvoiceStore
	Pinger        storage.Pinger
	// Backend names the store for the status page, e.g. "postgres" or "memory".
	Backend string
}

// Dependencies overrides external adapters. Nil fields are selected from configuration.
type Dependencies struct {
	AI        ai.Provider
	Billing   billing.Provider
	Objects   objectstore.Storage
	Mailer    email.Sender
	RateStore ratelimit.Store
	Metrics   *metrics.Metrics
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger
	closers []func() error

	Config     *config.Config
	Metrics    *metrics.Metrics
	Limiter    *ratelimit.Limiter
	Hub        *events.Hub
	Background *system.Background
	Jobs       *jobs.Runner

	AI           *ai.Service
	Auth         *auth.Service
	Users        *users.Service
	Notes        *notes.Service
	Environments *environments.Service
	Search       *search.Service
	Intel        *noteintel.Service
	Billing      *billing.Service
	Invoices     *invoice.Service
	Status       *status.Service
}

// New builds a fully initialised application. Adapters missing from deps are
// chosen by cfg: unconfigured integrations fall back to local or disabled
// implementations so the API stays usable in development.
func New(cfg *config.Config, stores Stores, deps Dependencies, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logging.NewDefault("app")
	}
	stores = withMemoryDefaults(stores)

	a := &Application{
		manager: system.NewManager(),
		log:     log,
		Config:  cfg,
		Metrics: deps.Metrics,
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	provider, err := a.aiProvider(cfg.AI, deps.AI)
	if err != nil {
		return nil, err
	}
	var (
		completer ai.Completer
		embedder  ai.Embedder
	)
	if provider != nil {
		completer = provider
		embedder, err = a.embedder(cfg.AI, provider)
		if err != nil {
			return nil, err
		}
	}
	billingProvider, err := billingProvider(cfg.Billing, deps.Billing, log)
	if err != nil {
		return nil, err
	}
	objects, err := objectStorage(cfg, deps.Objects)
	if err != nil {
		return nil, err
	}
	mailer, err := emailSender(cfg.Email, deps.Mailer, log)
	if err != nil {
		return nil, err
	}
	rateStore, err := a.rateLimitStore(cfg.Redis, deps.RateStore)
	if err != nil {
		return nil, err
	}
	a.Limiter = ratelimit.New(rateStore)

	noteCache := cache.New[notes.ListResult]("notes", 50, 10*time.Minute).WithMetrics(a.Metrics)
	userCache := cache.New[user.User]("user", 100, 30*time.Minute).WithMetrics(a.Metrics)
	apiCache := cache.New[status.Report]("api", 200, 5*time.Minute).WithMetrics(a.Metrics)

	a.Hub = events.NewHub(log.Named("events"), a.Metrics)
	a.Background = system.NewBackground(log.Named("background"))
	a.AI = ai.NewService(provider, log.Named("ai"))

	a.Intel = noteintel.New(stores.Notes, stores.Chunks, completer, embedder,
		noteintel.Options{MaxContextChunks: cfg.AI.MaxContextChunks}, log.Named("noteintel"))

	a.Notes = notes.New(stores.Notes, stores.Users, log.Named("notes"))
	a.Notes.AttachAI(a.AI)
	a.Notes.AttachNotifier(a.Hub)
	a.Notes.AttachRunner(a.Background)
	a.Notes.AttachCache(noteCache)
	if a.Intel.Configured() {
		a.Notes.AttachIndexer(a.Intel)
	}

	a.Environments = environments.New(stores.Environments, log.Named("environments"))
	a.Environments.AttachAI(a.AI)
	a.Environments.AttachNotifier(a.Hub)
	a.Environments.AttachRunner(a.Background)

	a.Search = search.New(stores.Notes, log.Named("search"))

	catalog := config.LoadPlansOrDefault(cfg.PlansPath)
	a.Billing = billing.New(billingProvider, stores.Subscriptions, catalog, cfg.Billing, log.Named("billing"))

	a.Users = users.New(stores.Users, stores.Subscriptions, userCache, log.Named("users"))
	a.Auth = auth.New(stores.Users, stores.Tokens, a.Billing, mailer, auth.Config{
		Secret:      []byte(cfg.Auth.Secret),
		TokenTTL:    cfg.Auth.TokenTTL,
		AdminEmails: cfg.Auth.Admins(),
		BaseURL:     cfg.Server.BaseURL,
	}, log.Named("auth"))
	a.Auth.AttachUserCache(a.Users)

	generator := invoice.NewGenerator(completer, log.Named("invoice"))
	a.Invoices = invoice.New(generator, stores.Users, stores.Invoices, a.Billing, objects, mailer, log.Named("invoice"))

	a.Status = status.New(checkers(cfg, stores, provider, objects, mailer, a.Billing, generator), status.Options{
		Timeout:     cfg.Status.CheckTimeout,
		Environment: cfg.Server.Environment,
		Metrics:     a.Metrics,
		Cache:       apiCache,
	}, log.Named("status"))

	a.Jobs = jobs.NewRunner(log.Named("jobs"), a.Metrics)
	for _, job := range []jobs.Job{
		jobs.StatusRefresh(cfg.Status.PollSchedule, a.Status),
		jobs.PurgeExpiredTokens(a.Auth),
		jobs.EmbeddingBackfill(stores.Chunks, a.Intel),
	} {
		if err := a.Jobs.Add(job); err != nil {
			return nil, err
		}
	}

	janitors := system.FuncService{ServiceName: "cache-janitor"}
	var stopJanitors context.CancelFunc
	var janitorDone []<-chan struct{}
	janitors.StartFunc = func(context.Context) error {
		ctx, cancel := context.WithCancel(context.Background())
		stopJanitors = cancel
		janitorDone = []<-chan struct{}{
			noteCache.StartJanitor(ctx, janitorInterval),
			userCache.StartJanitor(ctx, janitorInterval),
			apiCache.StartJanitor(ctx, janitorInterval),
		}
		if mem, ok := rateStore.(*ratelimit.MemoryStore); ok {
			janitorDone = append(janitorDone, mem.StartCleanup(ctx, rateLimitInterval))
		}
		return nil
	}
	janitors.StopFunc = func(ctx context.Context) error {
		if stopJanitors == nil {
			return nil
		}
		stopJanitors()
		for _, done := range janitorDone {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	initialCheck := system.FuncService{
		ServiceName: "status-check",
		StartFunc: func(ctx context.Context) error {
			st := a.Status.Check(ctx, true)
			if st.IsHealthy {
				log.Info("All required services are healthy")
			} else {
				log.Warn("Some required services have issues")
			}
			return nil
		},
	}

	for _, svc := range []system.Service{a.Hub, a.Background, janitors, initialCheck, a.Jobs} {
		if err := a.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	ok = true
	return a, nil
}

func withMemoryDefaults(stores Stores) Stores {
	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Subscriptions == nil {
		stores.Subscriptions = mem
	}
	if stores.Notes == nil {
		stores.Notes = mem
	}
	if stores.Chunks == nil {
		stores.Chunks = mem
	}
	if stores.Environments == nil {
		stores.Environments = mem
	}
	if stores.Tokens == nil {
		stores.Tokens = mem
	}
	if stores.Invoices == nil {
		stores.Invoices = mem
	}
	if stores.Pinger == nil {
		stores.Pinger = mem
		stores.Backend = "memory"
	}
	if stores.Backend == "" {
		stores.Backend = "postgres"
	}
	return stores
}

// aiProvider returns nil when inference is not configured.
func (a *Application) aiProvider(cfg config.AIConfig, override ai.Provider) (ai.Provider, error) {
	if override != nil {
		return override, nil
	}
	if !cfg.Configured() {
		a.log.WithField("provider", cfg.Provider).Warn("AI provider not configured; titles fall back to timestamps and QA is disabled")
		return nil, nil
	}
	p, err := ai.NewProvider(context.Background(), cfg, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	return p, nil
}

// embedder wraps p with the embedding cache. The cache lives on disk when
// EMBEDDING_CACHE_DIR is set and in memory otherwise.
func (a *Application) embedder(cfg config.AIConfig, p ai.Provider) (ai.Embedder, error) {
	db, err := ai.OpenEmbeddingCache(cfg.EmbeddingCacheDir)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	return ai.NewCachedEmbedder(p, ai.EmbeddingModel(cfg), db, a.Metrics), nil
}

func billingProvider(cfg config.BillingConfig, override billing.Provider, log *logging.Logger) (billing.Provider, error) {
	if override != nil {
		return override, nil
	}
	if !cfg.Configured() {
		log.Warn("STRIPE_SECRET_KEY not set; using local billing provider")
		return billing.NewLocalProvider(), nil
	}
	p, err := billing.NewStripeProvider(billing.StripeConfig{SecretKey: cfg.SecretKey}, log.Named("stripe"))
	if err != nil {
		return nil, fmt.Errorf("create billing provider: %w", err)
	}
	return p, nil
}

// objectStorage returns nil in production when Spaces is not configured, which
// disables invoice generation.
func objectStorage(cfg *config.Config, override objectstore.Storage) (objectstore.Storage, error) {
	if override != nil {
		return override, nil
	}
	if !cfg.Storage.Configured() {
		if cfg.IsProduction() {
			return nil, nil
		}
		return objectstore.NewMemory(), nil
	}
	s, err := objectstore.NewSpaces(objectstore.SpacesConfig{
		KeyID:     cfg.Storage.KeyID,
		KeySecret: cfg.Storage.KeySecret,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage: %w", err)
	}
	return s, nil
}

func emailSender(cfg config.EmailConfig, override email.Sender, log *logging.Logger) (email.Sender, error) {
	if override != nil {
		return override, nil
	}
	if !cfg.Enabled || !cfg.Configured() {
		return email.NewDisabledSender(log.Named("email")), nil
	}
	s, err := email.NewResendSender(email.ResendConfig{APIKey: cfg.APIKey, From: cfg.Sender}, log.Named("email"))
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	return s, nil
}

// rateLimitStore uses Redis when REDIS_URL is set so limits hold across replicas.
func (a *Application) rateLimitStore(cfg config.RedisConfig, override ratelimit.Store) (ratelimit.Store, error) {
	if override != nil {
		return override, nil
	}
	if cfg.URL == "" {
		return ratelimit.NewMemoryStore(), nil
	}
	client, err := ratelimit.NewRedisClient(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedisStore(client, "seanotes:ratelimit:"), nil
}

func checkers(cfg *config.Config, stores Stores, provider ai.Provider, objects objectstore.Storage,
	mailer email.Sender, bill *billing.Service, gen *invoice.Generator) []status.Checker {

	var (
		aiCheck    status.ConfigChecker
		storeCheck status.ConfigChecker
	)
	if provider != nil {
		aiCheck = provider
	}
	if objects != nil {
		storeCheck = objects
	}
	return []status.Checker{
		status.Database(stores.Pinger, stores.Backend),
		status.Auth(cfg.Auth),
		status.Storage(cfg.Storage, storeCheck),
		status.Email(cfg.Email, mailer),
		status.Billing(cfg.Billing, bill),
		status.Invoice(cfg.AI, gen.Configured()),
		status.AI(cfg.AI, aiCheck),
	}
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services, then releases caches and connections.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	return errors.Join(err, a.close())
}

// Logger returns the application logger.
func (a *Application) Logger() *logging.Logger {
	return a.log
}

func (a *Application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package service wires the cache, quote engine, dispatcher and workers
// into the operations served by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/okian/pinnacle/internal/adapters/cache"
	"github.com/okian/pinnacle/internal/adapters/mq/dispatch"
	"github.com/okian/pinnacle/internal/adapters/mq/queue"
	"github.com/okian/pinnacle/internal/adapters/mq/worker"
	"github.com/okian/pinnacle/internal/adapters/notify"
	"github.com/okian/pinnacle/internal/adapters/render"
	"github.com/okian/pinnacle/internal/config"
	"github.com/okian/pinnacle/internal/domain/activity"
	"github.com/okian/pinnacle/internal/domain/leads"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/internal/domain/quotes"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	bootPingTimeout        = 2 * time.Second
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every component and exposes the core operations.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	cache      *cache.Store
	renderer   *render.PDFRenderer
	quotes     *quotes.Engine
	leads      *leads.Service
	activities *activity.Scheduler

	// Background work
	registry   *worker.Registry
	executor   *worker.Executor
	dispatcher dispatch.Dispatcher
	jobQueue   *queue.InMemoryQueue
	pool       *worker.Pool
	consumer   *dispatch.Consumer
	amqpConn   *dispatch.Connection

	// Overrides, mostly for tests
	cacheBackend    cache.Backend
	smsSender       notify.Sender
	whatsAppSender  notify.Sender
	leadSource      leads.Source
	shutdownTimeout time.Duration

	// State
	started bool
	cancel  context.CancelFunc

	base   logger.Logger
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.base = l
		}
	}
}

// WithCacheBackend replaces the backend selected by cache_backend.
func WithCacheBackend(b cache.Backend) Option {
	return func(s *Service) {
		s.cacheBackend = b
	}
}

// WithSMSSender replaces the sender used by send_sms.
func WithSMSSender(sender notify.Sender) Option {
	return func(s *Service) {
		s.smsSender = sender
	}
}

// WithWhatsAppSender replaces the sender used by send_whatsapp.
func WithWhatsAppSender(sender notify.Sender) Option {
	return func(s *Service) {
		s.whatsAppSender = sender
	}
}

// WithLeadSource sets where lead listings are computed from on a cache miss.
func WithLeadSource(src leads.Source) Option {
	return func(s *Service) {
		s.leadSource = src
	}
}

// WithShutdownTimeout bounds how long Stop waits for queued jobs.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New constructs a Service from cfg. A nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:             cfg,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts every component. Unreachable cache or broker do
// not fail the start: the cache degrades and the dispatcher falls back to
// the in-memory queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.base == nil {
		s.base = logger.Get()
	}
	s.logger = s.base.Named("service")
	s.logger.Info(ctx, "starting pinnacle service...")

	renderer, err := render.NewPDFRenderer(s.cfg.QuoteDir, render.WithLogger(s.base.Named("render")))
	if err != nil {
		return fmt.Errorf("quote renderer: %w", err)
	}
	s.renderer = renderer
	s.cache = s.buildCache(ctx)

	s.registry = worker.NewRegistry()
	notify.RegisterJobs(s.registry, s.buildSMSSender(ctx), s.buildWhatsAppSender(ctx))
	s.executor = s.buildExecutor()

	// Workers outlive the caller's ctx so Stop can drain them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.startDispatcher(ctx, runCtx)

	s.quotes = quotes.NewEngine(quotes.NewCollection(), s.renderer,
		quotes.WithCurrency(s.cfg.CurrencySymbol),
		quotes.WithLogger(s.base.Named("quotes")),
	)
	leadOpts := []leads.Option{
		leads.WithLeadTTL(s.cfg.LeadTTL()),
		leads.WithListTTL(s.cfg.LeadsListTTL()),
		leads.WithWelcomeMessage(s.cfg.WelcomeMessage),
		leads.WithLogger(s.base.Named("leads")),
	}
	if s.leadSource != nil {
		leadOpts = append(leadOpts, leads.WithSource(s.leadSource))
	}
	s.leads = leads.New(s.cache, s.dispatcher, leadOpts...)
	s.activities = activity.NewScheduler(s.dispatcher, s.base)

	s.started = true
	s.logger.Info(ctx, "pinnacle service started",
		logger.String("cache", s.cfg.CacheBackend),
		logger.Bool("cacheEnabled", s.cache.Enabled()),
		logger.String("dispatcher", s.dispatcher.Kind()),
		logger.Int("workers", s.cfg.WorkerCount),
		logger.String("quoteDir", s.renderer.Dir()),
	)
	return nil
}

// Stop drains accepted jobs and releases the cache and broker.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping pinnacle service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		}
	}
	if s.consumer != nil {
		if err := s.consumer.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "consumer did not stop cleanly", logger.Error(err))
		}
	}
	if err := s.dispatcher.Close(); err != nil {
		s.logger.Warn(ctx, "closing dispatcher", logger.Error(err))
	}
	if s.amqpConn != nil {
		if err := s.amqpConn.Close(); err != nil {
			s.logger.Warn(ctx, "closing broker connection", logger.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Warn(ctx, "closing cache", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "pinnacle service stopped")
}

func (s *Service) buildCache(ctx context.Context) *cache.Store {
	opts := []cache.Option{
		cache.WithTimeout(s.cfg.CacheTimeout()),
		cache.WithLogger(s.base.Named("cache")),
	}
	backend := s.cacheBackend
	if backend == nil {
		switch s.cfg.CacheBackend {
		case config.CacheBackendNone:
			s.logger.Warn(ctx, "cache disabled; every lead is treated as new")
			return cache.Disabled(opts...)
		case config.CacheBackendMemory:
			backend = cache.NewMemoryBackend()
		default:
			backend = cache.NewRedisBackend(cache.RedisConfig{
				Addr:     s.cfg.RedisAddr,
				Password: s.cfg.RedisPassword,
				DB:       s.cfg.RedisDB,
				Timeout:  s.cfg.CacheTimeout(),
			})
		}
	}
	store := cache.New(backend, opts...)

	pingCtx, cancel := context.WithTimeout(ctx, bootPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		s.logger.Warn(ctx, "cache unreachable at boot; requests degrade until it recovers",
			logger.String("backend", s.cfg.CacheBackend),
			logger.Error(err),
		)
	}
	return store
}

func (s *Service) buildSMSSender(ctx context.Context) notify.Sender {
	if s.smsSender != nil {
		return s.smsSender
	}
	if s.cfg.SMTPHost != "" {
		sender, err := notify.NewMailSender(notify.MailConfig{
			Host:     s.cfg.SMTPHost,
			Port:     s.cfg.SMTPPort,
			User:     s.cfg.SMTPUser,
			Password: s.cfg.SMTPPassword,
			From:     s.cfg.SMTPFrom,
		}, s.base)
		if err == nil {
			return sender
		}
		s.logger.Warn(ctx, "smtp sender not configured; logging messages", logger.Error(err))
	}
	return notify.NewLogSender("sms", s.base)
}

func (s *Service) buildWhatsAppSender(ctx context.Context) notify.Sender {
	if s.whatsAppSender != nil {
		return s.whatsAppSender
	}
	if s.cfg.WhatsAppToken != "" || s.cfg.WhatsAppPhoneID != "" {
		sender, err := notify.NewWhatsAppSender(notify.WhatsAppConfig{
			Token:   s.cfg.WhatsAppToken,
			PhoneID: s.cfg.WhatsAppPhoneID,
			BaseURL: s.cfg.WhatsAppBaseURL,
		}, nil, s.base)
		if err == nil {
			return sender
		}
		s.logger.Warn(ctx, "whatsapp sender not configured; logging messages", logger.Error(err))
	}
	return notify.NewLogSender("whatsapp", s.base)
}

func (s *Service) buildExecutor() *worker.Executor {
	opts := []worker.ExecutorOption{
		worker.WithMaxRetries(s.cfg.JobMaxRetries),
		worker.WithBackoff(
			time.Duration(s.cfg.JobBackoffInitialMS)*time.Millisecond,
			time.Duration(s.cfg.JobBackoffMaxMS)*time.Millisecond,
		),
		worker.WithExecutorLogger(s.base.Named("executor")),
	}
	if r := s.cfg.NotifyRatePerSecond; r > 0 {
		burst := int(math.Ceil(r))
		opts = append(opts, worker.WithRateLimit(rate.NewLimiter(rate.Limit(r), burst)))
	}
	return worker.NewExecutor(s.registry, opts...)
}

func (s *Service) startDispatcher(ctx, runCtx context.Context) {
	if s.cfg.Dispatcher == config.DispatcherRabbitMQ {
		err := s.startRabbitMQ(runCtx)
		if err == nil {
			return
		}
		metrics.RecordErrorByComponent("dispatch", "broker_unreachable")
		s.logger.Warn(ctx, "broker unreachable; falling back to in-memory dispatcher", logger.Error(err))
	}

	s.jobQueue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.dispatcher = dispatch.NewMemory(s.jobQueue, dispatch.WithLogger(s.base))
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.jobQueue, s.executor, worker.WithLogger(s.base.Named("worker")))
	s.pool.Start(runCtx)
}

func (s *Service) startRabbitMQ(runCtx context.Context) (err error) {
	conn, err := dispatch.Dial(s.cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	pubCh, err := conn.Channel()
	if err != nil {
		return err
	}
	publisher, err := dispatch.NewRabbitMQ(pubCh, dispatch.WithLogger(s.base))
	if err != nil {
		return err
	}
	subCh, err := conn.Channel()
	if err != nil {
		return err
	}
	consumer, err := dispatch.NewConsumer(subCh, s.executor,
		dispatch.WithLogger(s.base),
		dispatch.WithPrefetch(s.cfg.WorkerCount),
	)
	if err != nil {
		return err
	}
	if err := consumer.Start(runCtx); err != nil {
		return err
	}

	s.amqpConn = conn
	s.dispatcher = publisher
	s.consumer = consumer
	return nil
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// IngestLead deduplicates and syncs one lead.
func (s *Service) IngestLead(ctx context.Context, lead model.Lead) (leads.Result, error) {
	if err := s.ready(); err != nil {
		return leads.Result{}, err
	}
	return s.leads.Ingest(ctx, lead)
}

// ListLeads returns the lead listing, cached for the list TTL.
func (s *Service) ListLeads(ctx context.Context) ([]model.LeadRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.leads.List(ctx)
}

// CreateQuote renders and stores version 1 of a new quote.
func (s *Service) CreateQuote(ctx context.Context, contactID string, items []model.Item) (model.Quote, error) {
	if err := s.ready(); err != nil {
		return model.Quote{}, err
	}
	return s.quotes.Create(ctx, contactID, items)
}

// ReviseQuote replaces the items of a quote and renders the next version.
func (s *Service) ReviseQuote(ctx context.Context, id string, items []model.Item) (model.Quote, error) {
	if err := s.ready(); err != nil {
		return model.Quote{}, err
	}
	return s.quotes.Revise(ctx, id, items)
}

// GetQuote returns the latest version of one quote.
func (s *Service) GetQuote(ctx context.Context, id string) (model.Quote, error) {
	if err := s.ready(); err != nil {
		return model.Quote{}, err
	}
	return s.quotes.Get(ctx, id)
}

// ListQuotes returns every quote in creation order.
func (s *Service) ListQuotes(ctx context.Context) ([]model.Quote, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.quotes.List(ctx), nil
}

// OpenArtifact opens a rendered quote file by name.
func (s *Service) OpenArtifact(ctx context.Context, filename string) (io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.renderer.Open(ctx, filename)
}

// ScheduleActivity validates an activity and notifies the contact.
func (s *Service) ScheduleActivity(ctx context.Context, a model.Activity) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.activities.Schedule(ctx, a)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"cacheBackend": s.cfg.CacheBackend,
		"workerCount":  s.cfg.WorkerCount,
	}
	if !s.started {
		return stats
	}

	stats["cacheEnabled"] = s.cache.Enabled()
	stats["dispatcher"] = s.dispatcher.Kind()
	stats["jobs"] = s.registry.Names()
	quoteCount := s.quotes.Count()
	stats["totalQuotes"] = quoteCount
	metrics.UpdateQuotesTotal(quoteCount)

	if s.jobQueue != nil {
		queueLen := s.jobQueue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["queueCapacity"] = s.jobQueue.Capacity()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

// Package leads ingests inbound leads with cache-backed deduplication and
// serves the cached lead directory.
//
// Deduplication is best effort. Two first-seen requests for the same email
// can both pass the existence check before either writes the cache, and each
// will then enqueue a welcome message. No lock is taken to prevent this.
package leads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pinnacle/internal/domain/apperr"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLeadTTL        = time.Hour
	DefaultListTTL        = 5 * time.Minute
	DefaultWelcomeMessage = "Welcome to Pinnacle Dynamics!"

	// ListKey caches the lead directory read.
	ListKey = "leads"
)

// Ingest outcomes.
const (
	StatusSynced    = "synced"
	StatusDuplicate = "duplicate"
)

// LeadKey is the dedup key for a lead email.
func LeadKey(email string) string {
	return "lead_" + email
}

// Cache is the degrade-gracefully store the service reads and writes. It
// never fails: unavailability reads as absent and skips writes.
type Cache interface {
	Exists(ctx context.Context, key string) bool
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration)
}

// Dispatcher accepts background jobs without waiting for them.
type Dispatcher interface {
	Enqueue(ctx context.Context, name string, args ...string) error
}

// Result is the outcome of Ingest.
type Result struct {
	Status string
	// ID is the synced record id. On a duplicate it is the cached record's
	// id when that can still be read, else empty.
	ID string
}

// Service implements lead ingestion and listing.
type Service struct {
	cache      Cache
	dispatcher Dispatcher
	source     Source
	leadTTL    time.Duration
	listTTL    time.Duration
	welcome    string
	group      singleflight.Group
	logger     logger.Logger
}

// New creates a lead service.
func New(cache Cache, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		cache:      cache,
		dispatcher: dispatcher,
		source:     NewStaticSource(SampleLead()),
		leadTTL:    DefaultLeadTTL,
		listTTL:    DefaultListTTL,
		welcome:    DefaultWelcomeMessage,
		logger:     logger.Get().Named("leads"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest deduplicates lead by email. A first-seen lead is cached for the
// lead TTL and a welcome message is enqueued to its email.
func (s *Service) Ingest(ctx context.Context, lead model.Lead) (Result, error) {
	const op = "leads.ingest"
	if err := validate(op, lead); err != nil {
		metrics.RecordLeadIngested("invalid")
		return Result{}, err
	}

	key := LeadKey(lead.Email)
	if s.cache.Exists(ctx, key) {
		res := Result{Status: StatusDuplicate}
		var cached model.LeadRecord
		if s.cache.GetJSON(ctx, key, &cached) {
			res.ID = cached.ID
		}
		metrics.RecordLeadIngested(StatusDuplicate)
		s.logger.Debug(ctx, "duplicate lead", logger.String("email", lead.Email))
		return res, nil
	}

	rec := model.LeadRecord{ID: uuid.NewString(), Properties: recordProperties(lead)}
	s.cache.SetJSON(ctx, key, rec, s.leadTTL)

	if err := s.dispatcher.Enqueue(ctx, model.JobSendSMS, lead.Email, s.welcome); err != nil {
		metrics.RecordErrorByComponent("leads", "dispatch")
		s.logger.Warn(ctx, "welcome message not enqueued",
			logger.String("lead_id", rec.ID),
			logger.Error(apperr.WrapKind(op, apperr.ErrUnavailable, err)),
		)
	}

	metrics.RecordLeadIngested(StatusSynced)
	s.logger.Info(ctx, "lead synced", logger.String("lead_id", rec.ID), logger.String("email", lead.Email))
	return Result{Status: StatusSynced, ID: rec.ID}, nil
}

// List returns the lead directory, cached for the list TTL. Concurrent
// misses share one Source read.
func (s *Service) List(ctx context.Context) ([]model.LeadRecord, error) {
	var cached []model.LeadRecord
	if s.cache.GetJSON(ctx, ListKey, &cached) {
		metrics.RecordLeadsList("cache")
		return cached, nil
	}

	v, err, _ := s.group.Do(ListKey, func() (any, error) {
		records, err := s.source.Leads(ctx)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []model.LeadRecord{}
		}
		s.cache.SetJSON(ctx, ListKey, records, s.listTTL)
		return records, nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("leads", "source")
		return nil, apperr.WrapKind("leads.list", apperr.ErrUnavailable, err)
	}
	metrics.RecordLeadsList("source")
	return cloneRecords(v.([]model.LeadRecord)), nil
}

func validate(op string, lead model.Lead) error {
	switch {
	case lead.FirstName == "":
		return apperr.Validation(op, "%s is required", model.PropFirstName)
	case lead.LastName == "":
		return apperr.Validation(op, "%s is required", model.PropLastName)
	case lead.Email == "":
		return apperr.Validation(op, "%s is required", model.PropEmail)
	}
	return nil
}

// recordProperties returns every submitted property with the required ones
// set to their normalized values.
func recordProperties(lead model.Lead) map[string]any {
	props := make(map[string]any, len(lead.Properties)+3)
	for k, v := range lead.Properties {
		props[k] = v
	}
	props[model.PropFirstName] = lead.FirstName
	props[model.PropLastName] = lead.LastName
	props[model.PropEmail] = lead.Email
	return props
}

func cloneRecords(in []model.LeadRecord) []model.LeadRecord {
	out := make([]model.LeadRecord, len(in))
	for i, r := range in {
		out[i] = model.LeadRecord{ID: r.ID, Properties: make(map[string]any, len(r.Properties))}
		for k, v := range r.Properties {
			out[i].Properties[k] = v
		}
	}
	return out
}

// Package quotes creates and revises versioned quote documents.
//
// Every state change renders its artifact first and commits only on
// success, so a failed render leaves the collection exactly as it was.
package quotes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/pinnacle/internal/domain/apperr"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
)

// DefaultCurrency prefixes every rendered price.
const DefaultCurrency = "R"

// Renderer produces the artifact for a document.
type Renderer interface {
	Render(ctx context.Context, doc model.Document) error
}

// Engine implements quote creation and revision over a Collection.
type Engine struct {
	quotes   *Collection
	renderer Renderer
	currency string
	newID    func() string
	logger   logger.Logger
}

// NewEngine creates an engine that owns quotes and renders through r.
func NewEngine(quotes *Collection, r Renderer, opts ...Option) *Engine {
	e := &Engine{
		quotes:   quotes,
		renderer: r,
		currency: DefaultCurrency,
		newID:    uuid.NewString,
		logger:   logger.Get().Named("quotes"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create renders version 1 of a new quote and adds it to the collection.
func (e *Engine) Create(ctx context.Context, contactID string, items []model.Item) (model.Quote, error) {
	const op = "quotes.create"
	contactID = strings.TrimSpace(contactID)
	if err := validateContactID(op, contactID); err != nil {
		return model.Quote{}, err
	}
	if err := validateItems(op, items); err != nil {
		return model.Quote{}, err
	}

	id := e.newID()
	q := model.Quote{
		ID:        id,
		ContactID: contactID,
		Items:     append([]model.Item(nil), items...),
		Version:   1,
		Filename:  InitialFilename(contactID, id),
	}
	if err := e.renderer.Render(ctx, BuildDocument(q, e.currency)); err != nil {
		metrics.RecordQuoteRenderFailure("create")
		e.logger.Error(ctx, "quote render failed", logger.String("contact_id", contactID), logger.Error(err))
		return model.Quote{}, apperr.WrapKind(op, apperr.ErrRender, err)
	}
	if !e.quotes.add(q) {
		return model.Quote{}, apperr.WrapKind(op, apperr.ErrUnavailable, fmt.Errorf("quote id %s already exists", id))
	}

	metrics.RecordQuoteCreated()
	metrics.UpdateQuotesTotal(e.quotes.Len())
	e.logger.Info(ctx, "quote created",
		logger.String("quote_id", id),
		logger.String("contact_id", contactID),
		logger.String("filename", q.Filename),
	)
	return q.Clone(), nil
}

// Revise replaces the items of quote id, renders the next version and
// commits it. Revisions of one quote are serialised; different quotes
// revise concurrently.
func (e *Engine) Revise(ctx context.Context, id string, items []model.Item) (model.Quote, error) {
	const op = "quotes.revise"
	if err := validateItems(op, items); err != nil {
		return model.Quote{}, err
	}
	s, ok := e.quotes.lookup(id)
	if !ok {
		return model.Quote{}, apperr.WrapKind(op, apperr.ErrNotFound, fmt.Errorf("quote %s does not exist", id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.quote.Load()
	next := model.Quote{
		ID:        cur.ID,
		ContactID: cur.ContactID,
		Items:     append([]model.Item(nil), items...),
		Version:   cur.Version + 1,
		Filename:  RevisionFilename(cur.ContactID, cur.ID, cur.Version+1),
	}
	if err := e.renderer.Render(ctx, BuildDocument(next, e.currency)); err != nil {
		metrics.RecordQuoteRenderFailure("revise")
		e.logger.Error(ctx, "quote revision render failed",
			logger.String("quote_id", id),
			logger.Int("version", next.Version),
			logger.Error(err),
		)
		return model.Quote{}, apperr.WrapKind(op, apperr.ErrRender, err)
	}
	s.quote.Store(&next)

	metrics.RecordQuoteRevised()
	e.logger.Info(ctx, "quote revised",
		logger.String("quote_id", id),
		logger.Int("version", next.Version),
		logger.String("filename", next.Filename),
	)
	return next.Clone(), nil
}

// Get returns the latest state of quote id.
func (e *Engine) Get(_ context.Context, id string) (model.Quote, error) {
	q, ok := e.quotes.Get(id)
	if !ok {
		return model.Quote{}, apperr.WrapKind("quotes.get", apperr.ErrNotFound, fmt.Errorf("quote %s does not exist", id))
	}
	return q, nil
}

// List returns every quote in creation order.
func (e *Engine) List(context.Context) []model.Quote {
	return e.quotes.Snapshot()
}

// Count returns the number of quotes.
func (e *Engine) Count() int {
	return e.quotes.Len()
}

// Price and contact id bounds. A contact id is part of the artifact file
// name, which must stay under the usual 255 byte limit.
const (
	maxContactIDLen  = 128
	maxPriceExponent = 18
	minPriceExponent = -18
	maxPriceDigits   = 30
)

func validateContactID(op, contactID string) error {
	switch {
	case contactID == "":
		return apperr.Validation(op, "contact_id is required")
	case len(contactID) > maxContactIDLen:
		return apperr.Validation(op, "contact_id must be at most %d bytes", maxContactIDLen)
	case contactID == "." || contactID == "..",
		strings.ContainsAny(contactID, `/\`),
		strings.ContainsFunc(contactID, isControl):
		return apperr.Validation(op, "contact_id %q cannot be used in a file name", contactID)
	}
	return nil
}

func validateItems(op string, items []model.Item) error {
	if len(items) == 0 {
		return apperr.Validation(op, "items must not be empty")
	}
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return apperr.Validation(op, "item %d has no name", i)
		}
		if exp := it.Price.Exponent(); exp > maxPriceExponent || exp < minPriceExponent ||
			it.Price.NumDigits() > maxPriceDigits {
			return apperr.Validation(op, "item %d price is out of range", i)
		}
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/okian/pinnacle/internal/domain/apperr"
	"github.com/okian/pinnacle/internal/domain/leads"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IngestLead(ctx context.Context, lead model.Lead) (leads.Result, error)
	ListLeads(ctx context.Context) ([]model.LeadRecord, error)

	CreateQuote(ctx context.Context, contactID string, items []model.Item) (model.Quote, error)
	ReviseQuote(ctx context.Context, id string, items []model.Item) (model.Quote, error)
	GetQuote(ctx context.Context, id string) (model.Quote, error)
	ListQuotes(ctx context.Context) ([]model.Quote, error)
	OpenArtifact(ctx context.Context, filename string) (io.ReadCloser, error)

	ScheduleActivity(ctx context.Context, a model.Activity) (string, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	leadsHandler    *LeadsHandler
	quotesHandler   *QuotesHandler
	scheduleHandler *ScheduleHandler

	ingestLimiter *ipRateLimiter
	logger        logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{ingestRatePerMinute: defaultIngestRatePerMinute}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	l := o.logger.Named("api")

	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		leadsHandler:    NewLeadsHandler(deps, l),
		quotesHandler:   NewQuotesHandler(deps, l),
		scheduleHandler: NewScheduleHandler(deps, l),
		logger:          l,
	}
	if o.ingestRatePerMinute > 0 {
		s.ingestLimiter = newIPRateLimiter(o.ingestRatePerMinute, o.trustedProxies)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/leads", MetricsMiddleware(s.ingestLimiter.Middleware(s.leadsHandler.HandleIngest), "leads"))
		r.Get("/leads", MetricsMiddleware(s.leadsHandler.HandleList, "leads"))

		r.Post("/quotes", MetricsMiddleware(s.quotesHandler.HandleCreate, "quotes"))
		r.Get("/quotes", MetricsMiddleware(s.quotesHandler.HandleList, "quotes"))
		r.Get("/quotes/{quoteID}", MetricsMiddleware(s.quotesHandler.HandleGet, "quote"))
		r.Post("/quotes/revise/{quoteID}", MetricsMiddleware(s.quotesHandler.HandleRevise, "quote_revise"))
		r.Get("/quotes/artifacts/{filename}", MetricsMiddleware(s.quotesHandler.HandleArtifact, "quote_artifact"))

		r.Post("/schedule", MetricsMiddleware(s.scheduleHandler.HandleSchedule, "schedule"))
	})
}

// NewRouter returns a chi router with the shared middleware stack. An empty
// origins list allows any origin.
func NewRouter(origins []string) chi.Router {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	return r
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeAppError maps an error kind to its status and code. Errors without a
// kind are logged and reported as internal without their cause.
func writeAppError(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, errors.New(apperr.Message(err)))
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, errors.New(apperr.Message(err)))
	case errors.Is(err, apperr.ErrRender):
		l.Error(ctx, "render failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, codeRender, errors.New("failed to render quote document"))
	default:
		l.Error(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, nil)
	}
}

// decodeJSON reads one JSON value from a size-limited body.
// writeDecodeError reports a body that parsed as JSON but carries a required
// field of the wrong shape as a validation error. Anything else is a bad
// request.
func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if (errors.As(err, &typeErr) && typeErr.Field != "") ||
		errors.Is(err, model.ErrMalformedItem) || errors.Is(err, ErrMalformedField) {
		writeError(w, http.StatusBadRequest, codeValidation, err)
		return
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Errorf("%w: %w", ErrBadRequest, err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

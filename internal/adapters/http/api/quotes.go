package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
)

// contactID accepts a JSON string or number.
type contactID string

func (c *contactID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = contactID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: contact_id must be a string or a number", ErrMalformedField)
	}
	*c = contactID(n.String())
	return nil
}

// quoteRequest mirrors the OpenAPI schema for POST /api/quotes. Items are
// [name, price] pairs or {name, price} objects.
type quoteRequest struct {
	ContactID contactID    `json:"contact_id"`
	Items     []model.Item `json:"items"`
}

type reviseRequest struct {
	Items []model.Item `json:"items"`
}

// QuotesHandler serves quote creation, revision and artifacts.
type QuotesHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewQuotesHandler creates a new quotes handler.
func NewQuotesHandler(deps Dependencies, l logger.Logger) *QuotesHandler {
	return &QuotesHandler{deps: deps, logger: l}
}

// HandleCreate handles POST /api/quotes.
func (h *QuotesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	q, err := h.deps.CreateQuote(r.Context(), string(req.ContactID), req.Items)
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Quote generated", ID: q.ID})
}

// HandleList handles GET /api/quotes.
func (h *QuotesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.deps.ListQuotes(r.Context())
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	if all == nil {
		all = []model.Quote{}
	}
	writeJSON(w, http.StatusOK, all)
}

// HandleGet handles GET /api/quotes/{quoteID}.
func (h *QuotesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q, err := h.deps.GetQuote(r.Context(), chi.URLParam(r, "quoteID"))
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleRevise handles POST /api/quotes/revise/{quoteID}.
func (h *QuotesHandler) HandleRevise(w http.ResponseWriter, r *http.Request) {
	var req reviseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	q, err := h.deps.ReviseQuote(r.Context(), chi.URLParam(r, "quoteID"), req.Items)
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Quote revised", ID: q.ID})
}

// HandleArtifact handles GET /api/quotes/artifacts/{filename}, streaming a
// rendered document of any version.
func (h *QuotesHandler) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rc, err := h.deps.OpenArtifact(r.Context(), name)
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn(r.Context(), "artifact stream interrupted",
			logger.String("filename", name),
			logger.Error(err),
		)
	}
}

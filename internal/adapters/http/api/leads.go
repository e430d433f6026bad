package api

import (
	"fmt"
	"net/http"

	"github.com/okian/pinnacle/internal/domain/leads"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
)

// LeadsHandler serves lead ingestion and listing.
type LeadsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(deps Dependencies, l logger.Logger) *LeadsHandler {
	return &LeadsHandler{deps: deps, logger: l}
}

// HandleIngest handles POST /api/leads. The body is an open property map
// that must carry first_name, last_name and email.
func (h *LeadsHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var props map[string]any
	if err := decodeJSON(w, r, &props); err != nil || props == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Errorf("%w: body must be a JSON object", ErrBadRequest))
		return
	}

	res, err := h.deps.IngestLead(r.Context(), model.LeadFromProperties(props))
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	msg := "Lead synced"
	if res.Status == leads.StatusDuplicate {
		msg = "Lead already synced"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg, ID: res.ID, Status: res.Status})
}

// HandleList handles GET /api/leads.
func (h *LeadsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.ListLeads(r.Context())
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	if records == nil {
		records = []model.LeadRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

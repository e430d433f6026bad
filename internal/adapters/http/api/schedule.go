package api

import (
	"net/http"

	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
)

type scheduleRequest struct {
	ContactID contactID `json:"contact_id"`
	Date      string    `json:"date"`
	Type      string    `json:"type"`
}

// ScheduleHandler serves activity scheduling.
type ScheduleHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(deps Dependencies, l logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{deps: deps, logger: l}
}

// HandleSchedule handles POST /api/schedule.
func (h *ScheduleHandler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	id, err := h.deps.ScheduleActivity(r.Context(), model.Activity{
		ContactID: string(req.ContactID),
		Date:      req.Date,
		Type:      req.Type,
	})
	if err != nil {
		writeAppError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Activity scheduled", ID: id})
}

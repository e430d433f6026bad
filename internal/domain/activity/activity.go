// Package activity schedules engagements with contacts and notifies them
// over WhatsApp.
package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pinnacle/internal/domain/apperr"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
)

const dateOnly = "2006-01-02"

// Dispatcher accepts background jobs without waiting for them.
type Dispatcher interface {
	Enqueue(ctx context.Context, name string, args ...string) error
}

// Scheduler validates activities and enqueues their notification.
type Scheduler struct {
	dispatcher Dispatcher
	logger     logger.Logger
}

// NewScheduler creates a scheduler. l may be nil.
func NewScheduler(d Dispatcher, l logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Get()
	}
	return &Scheduler{dispatcher: d, logger: l.Named("activity")}
}

// Schedule accepts a, returns its id and enqueues send_whatsapp to the
// contact. A rejected enqueue is logged, not returned.
func (s *Scheduler) Schedule(ctx context.Context, a model.Activity) (string, error) {
	const op = "activity.schedule"
	a.ContactID = strings.TrimSpace(a.ContactID)
	a.Date = strings.TrimSpace(a.Date)
	a.Type = strings.TrimSpace(a.Type)

	switch {
	case a.ContactID == "":
		return "", apperr.Validation(op, "contact_id is required")
	case a.Date == "":
		return "", apperr.Validation(op, "date is required")
	case a.Type == "":
		return "", apperr.Validation(op, "type is required")
	}
	if _, err := ParseDate(a.Date); err != nil {
		return "", apperr.WrapKind(op, apperr.ErrValidation, err)
	}

	id := uuid.NewString()
	if err := s.dispatcher.Enqueue(ctx, model.JobSendWhatsApp, a.ContactID, Message(a.Type)); err != nil {
		metrics.RecordErrorByComponent("activity", "dispatch")
		s.logger.Warn(ctx, "activity notification not enqueued",
			logger.String("activity_id", id),
			logger.Error(apperr.WrapKind(op, apperr.ErrUnavailable, err)),
		)
	}
	metrics.RecordActivityScheduled()
	s.logger.Info(ctx, "activity scheduled",
		logger.String("activity_id", id),
		logger.String("contact_id", a.ContactID),
		logger.String("type", a.Type),
		logger.String("date", a.Date),
	)
	return id, nil
}

// Message is the notification text for an activity type.
func Message(activityType string) string {
	return fmt.Sprintf("Activity %s scheduled!", activityType)
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

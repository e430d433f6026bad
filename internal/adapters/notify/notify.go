// Package notify delivers outbound messages to leads and contacts, and binds
// the send jobs to their senders.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/pinnacle/internal/adapters/mq/worker"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	channel string
	logger  logger.Logger
}

// NewLogSender returns a sender that logs under channel (e.g. "sms").
func NewLogSender(channel string, l logger.Logger) *LogSender {
	if l == nil {
		l = logger.Get()
	}
	return &LogSender{channel: channel, logger: l.Named("notify." + channel)}
}

func (s *LogSender) Send(ctx context.Context, to, message string) error {
	s.logger.Info(ctx, "message sent",
		logger.String("channel", s.channel),
		logger.String("to", to),
		logger.String("message", message),
	)
	return nil
}

// RegisterJobs binds send_sms to sms and send_whatsapp to whatsapp. Both
// jobs take (recipient, message).
func RegisterJobs(reg *worker.Registry, sms, whatsapp Sender) {
	reg.Register(model.JobSendSMS, sendHandler(sms))
	reg.Register(model.JobSendWhatsApp, sendHandler(whatsapp))
}

func sendHandler(s Sender) worker.Handler {
	return func(ctx context.Context, job model.Job) error {
		if len(job.Args) != 2 || job.Args[0] == "" {
			return worker.Permanent(fmt.Errorf("%w: %s wants (recipient, message), got %d args", ErrBadArgs, job.Name, len(job.Args)))
		}
		err := s.Send(ctx, job.Args[0], job.Args[1])
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError &&
			apiErr.Status != http.StatusTooManyRequests {
			return worker.Permanent(err)
		}
		return err
	}
}

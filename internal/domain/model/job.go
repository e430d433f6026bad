package model

import "time"

// Job names understood by the workers.
const (
	JobSendSMS      = "send_sms"
	JobSendWhatsApp = "send_whatsapp"
)

// Job is a named unit of background work. Args are positional, e.g.
// send_sms(to, message).
type Job struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Args       []string  `json:"args"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Activity is a scheduled engagement with a contact.
type Activity struct {
	ContactID string
	Date      string
	Type      string
}

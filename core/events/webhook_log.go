package events

import "github.com/google/uuid"

const (
	// KindWebhookLog identifies an operator-facing activity log entry,
	// kept separate from the chat transcript.
	KindWebhookLog Kind = "webhook.log"
)

// WebhookLogEntry is one line of the operator-facing activity log.
type WebhookLogEntry struct {
	Base
	ID   string
	Text string
}

func (e WebhookLogEntry) String() string { return e.Text }

func NewWebhookLogEntry(text string) WebhookLogEntry {
	return WebhookLogEntry{
		Base: NewBase(KindWebhookLog),
		ID:   uuid.NewString(),
		Text: text,
	}
}

package relay

import (
	"time"

	"ingressgw/pkg/requestcontext"
)

// Message is one ingestion payload waiting to be written to the sink.
type Message struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Payload     []byte    `json:"payload"`
	ContentType string    `json:"content_type,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Email       string    `json:"email,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Identity returns the caller identity carried with the message.
func (m Message) Identity() requestcontext.Identity {
	return requestcontext.Identity{Email: m.Email, Roles: m.Roles}
}

// Receipt is returned to the ingesting client once the message is durably queued.
type Receipt struct {
	MessageID  string    `json:"message_id"`
	Key        string    `json:"key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

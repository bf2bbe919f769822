package payment

import "time"

// OutcomeEnvelope is the envelope the payment collaborator publishes when a
// payment reaches a terminal state. Delivery is at-least-once; message_id is
// the dedupe key when present.
type OutcomeEnvelope struct {
	Version    int            `json:"version"`
	Producer   string         `json:"producer"`
	TraceID    string         `json:"trace_id,omitempty"`
	MessageID  string         `json:"message_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    OutcomePayload `json:"payload"`
}

// OutcomePayload carries the terminal result. Extra producer fields are
// ignored by json.Unmarshal.
type OutcomePayload struct {
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	PaymentRef  string `json:"payment_ref,omitempty"`
}

package rabbitmq

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/gatherly/lifecycle-service/internal/contracts/payment"
	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func loggerStub() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func validEnvelope(msgID string) []byte {
	env := payment.OutcomeEnvelope{
		Version:   1,
		Producer:  "payment-service",
		TraceID:   "trace-1",
		MessageID: msgID,
		Payload: payment.OutcomePayload{
			EventID:     uuid.NewString(),
			UserID:      uuid.NewString(),
			AmountCents: 1500,
			PaymentRef:  "pi_123",
		},
	}
	b, _ := json.Marshal(env)
	return b
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("valid, message id from envelope", func(t *testing.T) {
		env, msgID, ok := decodeEnvelope(validEnvelope("m-1"), "amqp-id", rkPaymentSucceeded, loggerStub())
		assert.True(t, ok)
		assert.Equal(t, "m-1", msgID)
		assert.Equal(t, int64(1500), env.Payload.AmountCents)
	})

	t.Run("falls back to amqp message id", func(t *testing.T) {
		_, msgID, ok := decodeEnvelope(validEnvelope(""), "amqp-id", rkPaymentSucceeded, loggerStub())
		assert.True(t, ok)
		assert.Equal(t, "amqp-id", msgID)
	})

	t.Run("hash fallback is deterministic", func(t *testing.T) {
		body := validEnvelope("")
		_, id1, ok1 := decodeEnvelope(body, "", rkPaymentSucceeded, loggerStub())
		_, id2, ok2 := decodeEnvelope(body, "", rkPaymentSucceeded, loggerStub())
		assert.True(t, ok1)
		assert.True(t, ok2)
		assert.True(t, strings.HasPrefix(id1, "hash:"))
		assert.Equal(t, id1, id2)

		// routing key is part of the hash input
		_, id3, _ := decodeEnvelope(body, "", rkPaymentFailed, loggerStub())
		assert.NotEqual(t, id1, id3)
	})

	t.Run("invalid json dropped", func(t *testing.T) {
		_, _, ok := decodeEnvelope([]byte("{"), "", rkPaymentSucceeded, loggerStub())
		assert.False(t, ok)
	})

	t.Run("unsupported version dropped", func(t *testing.T) {
		var env payment.OutcomeEnvelope
		_ = json.Unmarshal(validEnvelope("m-1"), &env)
		env.Version = 2
		b, _ := json.Marshal(env)

		_, _, ok := decodeEnvelope(b, "", rkPaymentSucceeded, loggerStub())
		assert.False(t, ok)
	})
}

func TestOutcomeForRoutingKey(t *testing.T) {
	out, ok := outcomeForRoutingKey(rkPaymentSucceeded)
	assert.True(t, ok)
	assert.Equal(t, domain.PaymentOutcomeSuccess, out)

	out, ok = outcomeForRoutingKey(rkPaymentFailed)
	assert.True(t, ok)
	assert.Equal(t, domain.PaymentOutcomeFailure, out)

	_, ok = outcomeForRoutingKey("payment.pending")
	assert.False(t, ok)
}

func TestParseIDs(t *testing.T) {
	eID := uuid.New()
	uID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		gotE, gotU, ok := parseIDs(payment.OutcomePayload{EventID: eID.String(), UserID: uID.String()}, loggerStub())
		assert.True(t, ok)
		assert.Equal(t, eID, gotE)
		assert.Equal(t, uID, gotU)
	})

	t.Run("missing ids", func(t *testing.T) {
		_, _, ok := parseIDs(payment.OutcomePayload{EventID: "", UserID: uID.String()}, loggerStub())
		assert.False(t, ok)
	})

	t.Run("garbage ids", func(t *testing.T) {
		_, _, ok := parseIDs(payment.OutcomePayload{EventID: "nope", UserID: uID.String()}, loggerStub())
		assert.False(t, ok)
	})
}

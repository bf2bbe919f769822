package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gatherly/lifecycle-service/internal/contracts/payment"
	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/gatherly/lifecycle-service/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1

	rkPaymentSucceeded = "payment.succeeded"
	rkPaymentFailed    = "payment.failed"

	handlerName = "payment_outcomes"
	queueName   = "lifecycle-service.payment-outcomes"
)

// Reconciler is the slice of the repository the consumer needs. ProcessOnce
// runs the reconcile and the dedupe fence in one DB transaction, so a
// redelivered message is either fully applied once or ignored; the upsert
// inside ReconcilePaymentOutcomeTx covers duplicates that arrive under a
// fresh message id.
type Reconciler interface {
	ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(tx pgx.Tx) error) (bool, error)
	ReconcilePaymentOutcomeTx(ctx context.Context, tx pgx.Tx, traceID string, outcome domain.PaymentOutcome, eventID, userID uuid.UUID, amountCents int64, paymentRef string) error
}

type Consumer struct {
	rabbitURL string
	exchange  string
	repo      Reconciler
}

func NewConsumer(rabbitURL, exchange string, repo Reconciler) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		repo:      repo,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "payment_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// Ensure exchange exists (idempotent)
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	for _, rk := range []string{rkPaymentSucceeded, rkPaymentFailed} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	deliveries, err := ch.Consume(q.Name, "lifecycle-service", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	go func() {
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				if err := c.handleDelivery(ctx, d); err != nil {
					_ = d.Nack(false, true) // transient => requeue
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("consumer started")
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	baseLog := logger.Logger.With().
		Str("component", "payment_consumer").
		Str("routing_key", d.RoutingKey).
		Logger()

	env, msgID, ok := decodeEnvelope(d.Body, d.MessageId, d.RoutingKey, baseLog)
	if !ok {
		return nil // poison => drop
	}

	log := baseLog.With().
		Str("message_id", msgID).
		Str("trace_id", strings.TrimSpace(env.TraceID)).
		Logger()

	outcome, ok := outcomeForRoutingKey(d.RoutingKey)
	if !ok {
		log.Warn().Msg("unknown routing key; ignoring")
		return nil
	}

	eventID, userID, ok := parseIDs(env.Payload, log)
	if !ok {
		return nil
	}

	processed, err := c.repo.ProcessOnce(ctx, msgID, handlerName, func(tx pgx.Tx) error {
		return c.repo.ReconcilePaymentOutcomeTx(ctx, tx, strings.TrimSpace(env.TraceID), outcome,
			eventID, userID, env.Payload.AmountCents, strings.TrimSpace(env.Payload.PaymentRef))
	})
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			// The event is gone; requeueing cannot fix that.
			log.Warn().Msg("payment outcome for missing event; dropping")
			return nil
		}
		log.Error().Err(err).Msg("reconcile failed (requeue)")
		return err
	}
	if !processed {
		log.Info().Msg("duplicate delivery ignored")
		return nil
	}

	log.Info().
		Str("outcome", string(outcome)).
		Str("event_id", eventID.String()).
		Str("user_id", userID.String()).
		Msg("payment outcome reconciled")
	return nil
}

func decodeEnvelope(body []byte, amqpMessageID, routingKey string, log zerolog.Logger) (payment.OutcomeEnvelope, string, bool) {
	var env payment.OutcomeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warn().Err(err).Msg("invalid envelope json; dropping")
		return env, "", false
	}

	if env.Version != supportedVersion {
		log.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		return env, "", false
	}

	// message_id: prefer envelope, then AMQP MessageId, else hash fallback
	msgID := strings.TrimSpace(env.MessageID)
	if msgID == "" {
		msgID = strings.TrimSpace(amqpMessageID)
	}
	if msgID == "" {
		h := sha256.Sum256(append([]byte(routingKey+"\n"), body...))
		msgID = "hash:" + hex.EncodeToString(h[:])
	}
	return env, msgID, true
}

func outcomeForRoutingKey(rk string) (domain.PaymentOutcome, bool) {
	switch rk {
	case rkPaymentSucceeded:
		return domain.PaymentOutcomeSuccess, true
	case rkPaymentFailed:
		return domain.PaymentOutcomeFailure, true
	default:
		return "", false
	}
}

func parseIDs(p payment.OutcomePayload, log zerolog.Logger) (eventID, userID uuid.UUID, ok bool) {
	if strings.TrimSpace(p.EventID) == "" || strings.TrimSpace(p.UserID) == "" {
		log.Warn().Msg("missing event_id/user_id; dropping")
		return uuid.Nil, uuid.Nil, false
	}
	eventID, err := uuid.Parse(p.EventID)
	if err != nil {
		log.Warn().Err(err).Msg("invalid event_id; dropping")
		return uuid.Nil, uuid.Nil, false
	}
	userID, err = uuid.Parse(p.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("invalid user_id; dropping")
		return uuid.Nil, uuid.Nil, false
	}
	return eventID, userID, true
}

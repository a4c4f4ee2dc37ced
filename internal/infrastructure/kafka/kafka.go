package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	peerKafka     = "kafka"
	writeDeadline = 5 * time.Second
)

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter keys by order id so all events of one order land on one partition.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// MessageWriter is the part of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Envelope is the wire form of an order event.
type Envelope struct {
	EventType  string           `json:"event_type"`
	OrderID    string           `json:"order_id"`
	UserID     string           `json:"user_id"`
	Status     string           `json:"status,omitempty"`
	OldStatus  string           `json:"old_status,omitempty"`
	NewStatus  string           `json:"new_status,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Total      *decimal.Decimal `json:"total,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	Refunded   *bool            `json:"refunded,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// EnvelopeOf maps a domain event; ok is false for events that are not
// forwarded.
func EnvelopeOf(e domoutbox.Event) (Envelope, bool) {
	switch evt := e.(type) {
	case domorder.CreatedEvent:
		total := evt.TotalAmount
		return Envelope{
			EventType:  evt.EventName(),
			OrderID:    evt.OrderID,
			UserID:     evt.UserID,
			Status:     string(evt.Status),
			Reason:     evt.CancelReason,
			Total:      &total,
			Currency:   evt.Currency,
			OccurredAt: evt.OccurredAt,
		}, true
	case domorder.StatusChangedEvent:
		return Envelope{
			EventType:  evt.EventName(),
			OrderID:    evt.OrderID,
			UserID:     evt.UserID,
			Status:     string(evt.NewStatus),
			OldStatus:  string(evt.OldStatus),
			NewStatus:  string(evt.NewStatus),
			Reason:     evt.Reason,
			OccurredAt: evt.OccurredAt,
		}, true
	case domorder.CancelledEvent:
		total := evt.TotalAmount
		refunded := evt.Refunded
		return Envelope{
			EventType:  evt.EventName(),
			OrderID:    evt.OrderID,
			UserID:     evt.UserID,
			Status:     string(evt.Status),
			OldStatus:  string(evt.PreviousStatus),
			Reason:     evt.Reason,
			Total:      &total,
			Refunded:   &refunded,
			OccurredAt: evt.OccurredAt,
		}, true
	default:
		return Envelope{}, false
	}
}

// Forwarder copies order events from the bus onto a Kafka topic.
type Forwarder struct {
	writer MessageWriter
	log    observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewForwarder(writer MessageWriter, tel observability.Observability) *Forwarder {
	return &Forwarder{
		writer:       writer,
		log:          tel.Logger().With(observability.F("component", "kafka_forwarder")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Register subscribes the forwarder to every order event.
func (f *Forwarder) Register(sub domoutbox.Subscriber) {
	for _, name := range []string{domorder.EventCreated, domorder.EventStatusChanged, domorder.EventCancelled} {
		sub.Subscribe(name, f.Handle)
	}
}

func (f *Forwarder) Handle(ctx context.Context, e domoutbox.Event) error {
	env, ok := EnvelopeOf(e)
	if !ok {
		return nil
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", env.EventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeDeadline)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.OrderID),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	})
	if err != nil {
		outcome = "error"
	}
	f.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", env.EventType),
		observability.L("outcome", outcome),
	)
	f.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", env.EventType),
	)

	if err != nil {
		logctx.FromOr(ctx, f.log).Warn("kafka_forward_failed",
			observability.F("order_id", env.OrderID),
			observability.F("error", err),
		)
		return fmt.Errorf("kafka: write %s: %w", env.EventType, err)
	}
	return nil
}

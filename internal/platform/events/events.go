// Package events publishes appointment lifecycle events to Kafka after the
// owning transaction has committed. Consumers (notification, billing) live
// outside this service.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	AppointmentRequested   Type = "appointment.requested"
	AppointmentApproved    Type = "appointment.approved"
	AppointmentDeclined    Type = "appointment.declined"
	AppointmentCancelled   Type = "appointment.cancelled"
	AppointmentRescheduled Type = "appointment.rescheduled"
	AppointmentCompleted   Type = "appointment.completed"
	AppointmentReminder    Type = "appointment.reminder"
	PaymentRecorded        Type = "payment.recorded"
)

// Event is the JSON payload written to the topic. Date and Time are the
// appointment's current slot.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Type          Type              `json:"type"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	Date          string            `json:"date"`
	Time          string            `json:"time"`
	Status        string            `json:"status"`
	ActorID       *uuid.UUID        `json:"actor_id,omitempty"`
	ActorRole     string            `json:"actor_role,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a writer for topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
	})
	return NewPublisherWithWriter(w)
}

func NewPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish writes evs in one batch keyed by appointment id, so all events of
// one appointment land on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = p.now().UTC()
		}
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.AppointmentID.String()),
			Value: body,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d event(s): %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when KAFKA_BROKERS is empty.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }

// PublishLogged publishes and logs a failure instead of returning it. The
// state change has already committed by the time events go out, so a broker
// outage must not turn a successful request into an error.
func PublishLogged(ctx context.Context, logger zerolog.Logger, p Publisher, evs ...Event) {
	if p == nil || len(evs) == 0 {
		return
	}
	if err := p.Publish(ctx, evs...); err != nil {
		logger.Error().Err(err).
			Str("event_type", string(evs[0].Type)).
			Str("appointment_id", evs[0].AppointmentID.String()).
			Msg("publish event")
	}
}

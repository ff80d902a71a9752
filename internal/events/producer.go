// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

var _ payment.Publisher = (*Producer)(nil)

// Producer writes order.paid events keyed by order id.
type Producer struct {
	writer *kafka.Writer
	topic  string
	tracer trace.Tracer
}

// NewProducer creates a Producer for topic on brokers.
func NewProducer(brokers []string, topic string, tp trace.TracerProvider) *Producer {
	return &Producer{
		topic:  topic,
		tracer: tp.Tracer("hawker/events"),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
		},
	}
}

// PublishPaid publishes evt.
func (p *Producer) PublishPaid(ctx context.Context, evt payment.PaidEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: EncodePaid(evt),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("order.paid")},
		},
	}

	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(evt.OrderID),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// EncodePaid renders evt as JSON.
func EncodePaid(evt payment.PaidEvent) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("type")
	e.Str("order.paid")
	e.FieldStart("order_id")
	e.Str(evt.OrderID)
	e.FieldStart("order_code")
	e.Str(evt.OrderCode)
	e.FieldStart("user_id")
	e.Str(evt.UserID)
	e.FieldStart("stall_id")
	e.Str(evt.StallID)
	e.FieldStart("total_cents")
	e.Int64(evt.TotalCents)
	e.FieldStart("paid_at")
	e.Str(evt.PaidAt.UTC().Format(time.RFC3339))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// headerCarrier adapts Kafka message headers to a propagation.TextMapCarrier.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i := range c.msg.Headers {
		if c.msg.Headers[i].Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}

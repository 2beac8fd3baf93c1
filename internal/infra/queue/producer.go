package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

// AttemptHeader carries the 1-based delivery attempt of an audience event.
const AttemptHeader = "x-attempt"

// Channel is the publishing half of *amqp.Channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch Channel
}

func NewProducer(ch Channel) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

func (p *RabbitMQProducer) PublishAudienceEvent(ctx context.Context, msg entity.AudienceEventReceived) error {
	return p.publishAudience(ctx, msg, 1)
}

// Retry republishes an audience event for the given attempt number.
func (p *RabbitMQProducer) Retry(ctx context.Context, msg entity.AudienceEventReceived, attempt int) error {
	return p.publishAudience(ctx, msg, attempt)
}

func (p *RabbitMQProducer) publishAudience(ctx context.Context, msg entity.AudienceEventReceived, attempt int) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode audience event: %w", err)
	}
	err = p.Ch.PublishWithContext(ctx, AudienceExchange, AudienceRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.EventID,
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
	})
	if err != nil {
		return fmt.Errorf("publish audience event %s: %w", msg.EventID, err)
	}
	return nil
}

func (p *RabbitMQProducer) PublishIdentityUpdated(ctx context.Context, msg entity.IdentityUpdated) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode identity update: %w", err)
	}
	err = p.Ch.PublishWithContext(ctx, IdentityExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish identity update %s: %w", msg.IdentityID, err)
	}
	return nil
}

// attemptOf reads the attempt header, treating a missing or malformed value as the first attempt.
func attemptOf(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return max(int(v), 1)
	case int64:
		return max(int(v), 1)
	case int:
		return max(v, 1)
	case int16:
		return max(int(v), 1)
	case int8:
		return max(int(v), 1)
	}
	return 1
}

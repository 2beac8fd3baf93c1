package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	AudienceExchange   = "ex.audience"
	AudienceQueue      = "q.audience_events"
	AudienceRoutingKey = "k.audience_event"
	DLXName            = "ex.dlx" // Dead Letter Exchange
	DLQName            = "q.audience_events.dlq"
	IdentityExchange   = "ex.identity"
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

// setupTopology declares the audience work queue with its dead-letter pair and
// the fanout exchange downstream consumers bind to for identity updates.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLQName, AudienceRoutingKey, DLXName, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": AudienceRoutingKey,
	}
	if err := ch.ExchangeDeclare(AudienceExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(AudienceQueue, true, false, false, false, args); err != nil {
		return err
	}
	if err := ch.QueueBind(AudienceQueue, AudienceRoutingKey, AudienceExchange, false, nil); err != nil {
		return err
	}

	return ch.ExchangeDeclare(IdentityExchange, "fanout", true, false, false, false, nil)
}

// NewConsumerChannel opens a dedicated channel so consumer QoS does not
// interfere with publishing.
func (r *RabbitMQ) NewConsumerChannel() (*amqp.Channel, error) {
	return r.Conn.Channel()
}

func (r *RabbitMQ) Close() error {
	if r.Ch != nil {
		r.Ch.Close()
	}
	return r.Conn.Close()
}

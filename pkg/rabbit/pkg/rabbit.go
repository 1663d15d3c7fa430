package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	logging "candor/pkg/logger/pkg"
)

type Rabbit interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Config struct {
	Address  string
	Port     int
	Username string
	Password string
	// Exchange is a topic exchange; an empty name publishes to the default exchange
	Exchange string
	// Queue is declared and bound so events survive without a consumer
	Queue      string
	ExpireTime time.Duration
}

type rabbit struct {
	connectionUrl string
	exchange      string
	queue         string
	expireTime    time.Duration
}

func New(rb *Config) Rabbit {
	if rb == nil || rb.Address == "" {
		return &Dummy{}
	}

	connectionUrl := fmt.Sprintf("amqp://%s:%s@%s:%d/", rb.Username, rb.Password, rb.Address, rb.Port)
	return &rabbit{
		connectionUrl: connectionUrl,
		exchange:      rb.Exchange,
		queue:         rb.Queue,
		expireTime:    rb.ExpireTime,
	}
}

func (r *rabbit) Publish(ctx context.Context, routingKey string, body []byte) error {
	conn, err := amqp.Dial(r.connectionUrl)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	key := routingKey
	if r.exchange != "" {
		if err := ch.ExchangeDeclare(r.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", r.exchange, err)
		}
	}
	if r.queue != "" {
		q, err := ch.QueueDeclare(r.queue, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", r.queue, err)
		}
		if r.exchange != "" {
			if err := ch.QueueBind(q.Name, routingKey, r.exchange, false, nil); err != nil {
				return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
			}
		} else {
			key = q.Name
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         routingKey,
		Body:         body,
	}
	if r.expireTime > 0 {
		msg.Expiration = fmt.Sprintf("%d", r.expireTime.Milliseconds())
	}
	if err := ch.PublishWithContext(ctx, r.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	logging.Logger(ctx).Info("Published event",
		zap.String("routingKey", routingKey),
		zap.String("exchange", r.exchange),
		zap.Int("bytes", len(body)))
	return nil
}

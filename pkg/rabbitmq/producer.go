package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/events"
	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/rabbitmq/amqp091-go"
)

// EventProducer publishes ledger events to a durable topic exchange.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	log      logger.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewEventProducer(amqpURL string, log logger.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(events.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &EventProducer{conn: conn, channel: ch, exchange: events.Exchange, log: log}, nil
}

func (p *EventProducer) PublishTransaction(ctx context.Context, event events.TransactionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.TransactionID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, event.RoutingKey(), false, false, msg)
	if err == nil {
		return nil
	}

	p.log.Warn("Publish failed, reopening channel",
		logger.StringField("routing_key", event.RoutingKey()),
		logger.ErrorField("error", err))

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("publish: %w (reopen channel: %v)", err, chErr)
	}
	p.channel = ch
	return p.channel.PublishWithContext(ctx, p.exchange, event.RoutingKey(), false, false, msg)
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Connect returns a RabbitMQ producer, or a no-op publisher when url is empty
// or the broker is unreachable at startup.
func Connect(amqpURL string, log logger.Logger) events.Publisher {
	if amqpURL == "" {
		log.Info("RABBITMQ_URL not set, ledger events are disabled")
		return events.Noop{}
	}

	producer, err := NewEventProducer(amqpURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, ledger events are disabled", logger.ErrorField("error", err))
		return events.Noop{}
	}
	return producer
}

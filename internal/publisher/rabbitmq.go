package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"lms_mirror/internal/domain"
)

// RabbitMQ publishes events to a direct exchange. Publishes from concurrent
// refreshes are serialized on the single channel.
type RabbitMQ struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

const (
	ActionMerge    = "merge"
	ActionDownload = "download"
)

// EventMessage is the envelope of every published event. Exactly one of
// Merge and Download is set, matching Action.
type EventMessage struct {
	Action    string                 `json:"action"`
	Merge     *domain.MergeStats     `json:"merge,omitempty"`
	Download  *domain.DownloadRecord `json:"download,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (r *RabbitMQ) PublishMerge(ctx context.Context, stats *domain.MergeStats) error {
	if err := r.publish(ctx, EventMessage{Action: ActionMerge, Merge: stats}); err != nil {
		return err
	}

	r.logger.Debug("published merge",
		"category", stats.Category,
		"result", stats.Result,
	)
	return nil
}

func (r *RabbitMQ) PublishDownload(ctx context.Context, record *domain.DownloadRecord) error {
	if err := r.publish(ctx, EventMessage{Action: ActionDownload, Download: record}); err != nil {
		return err
	}

	r.logger.Debug("published download",
		"category", record.Category,
		"module_id", record.ModuleID,
		"path", record.Path,
		"outcome", record.Outcome,
	)
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, msg EventMessage) error {
	msg.Timestamp = time.Now().UTC()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Type:         msg.Action,
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

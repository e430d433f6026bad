package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// KindRabbitMQ names the broker-backed dispatcher.
const KindRabbitMQ = "rabbitmq"

const publishTimeout = 2 * time.Second

// Topology names the exchanges and queues jobs travel through. Failed
// deliveries are dead-lettered to DLQ through DLX.
type Topology struct {
	Exchange   string
	Queue      string
	DLX        string
	DLQ        string
	RoutingKey string
}

// DefaultTopology returns the standard job topology.
func DefaultTopology() Topology {
	return Topology{
		Exchange:   "ex.pinnacle.jobs",
		Queue:      "q.pinnacle.jobs",
		DLX:        "ex.pinnacle.dlx",
		DLQ:        "q.pinnacle.jobs.dlq",
		RoutingKey: "k.job",
	}
}

// Channel is the subset of *amqp.Channel the dispatcher and consumer use.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Connection owns the broker connection and hands out channels.
type Connection struct {
	conn *amqp.Connection
}

// Dial connects to the broker at url.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(publishTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return &Connection{conn: conn}, nil
}

// Channel opens a new channel.
func (c *Connection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// Close closes the connection and all its channels.
func (c *Connection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

// DeclareTopology creates the exchanges, queues and bindings. It is
// idempotent.
func DeclareTopology(ch Channel, t Topology) error {
	if err := ch.ExchangeDeclare(t.DLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx: %w", err)
	}
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}
	if err := ch.QueueBind(t.DLQ, t.RoutingKey, t.DLX, false, nil); err != nil {
		return fmt.Errorf("bind dlq: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DLX,
		"x-dead-letter-routing-key": t.RoutingKey,
	}
	if err := ch.ExchangeDeclare(t.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// RabbitMQ publishes jobs as persistent JSON messages.
type RabbitMQ struct {
	mu       sync.Mutex
	ch       Channel
	topology Topology
	logger   logger.Logger
	closed   bool
}

// NewRabbitMQ declares the topology on ch and returns a publisher over it.
func NewRabbitMQ(ch Channel, opts ...Option) (*RabbitMQ, error) {
	o := applyOptions(opts)
	if err := DeclareTopology(ch, o.topology); err != nil {
		return nil, err
	}
	return &RabbitMQ{
		ch:       ch,
		topology: o.topology,
		logger:   o.logger.Named("dispatch.rabbitmq"),
	}, nil
}

// Enqueue publishes the job. It waits at most for the publish round trip.
func (r *RabbitMQ) Enqueue(ctx context.Context, name string, args ...string) error {
	if name == "" {
		return ErrNoJobName
	}
	job := newJob(name, args)
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		metrics.RecordJobDropped(name, "closed")
		return ErrClosed
	}
	err = r.ch.PublishWithContext(ctx, r.topology.Exchange, r.topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.Name,
		Timestamp:    job.EnqueuedAt,
		Body:         body,
	})
	if err != nil {
		metrics.RecordJobDropped(name, "publish_failed")
		return fmt.Errorf("publish %s: %w", name, err)
	}
	metrics.RecordJobEnqueued(name, KindRabbitMQ)
	r.logger.Debug(ctx, "job published", logger.String("job", name), logger.String("job_id", job.ID))
	return nil
}

func (r *RabbitMQ) Kind() string { return KindRabbitMQ }

// Close closes the publishing channel.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.ch.Close()
}

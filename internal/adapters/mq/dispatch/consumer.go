package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/pinnacle/internal/adapters/cache"
	"github.com/okian/pinnacle/internal/adapters/mq/worker"
	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer executes jobs delivered from the broker queue. Deliveries are
// acked on success and dead-lettered on failure.
type Consumer struct {
	ch       Channel
	runner   worker.Runner
	topology Topology
	prefetch int
	logger   logger.Logger

	wg sync.WaitGroup
}

// NewConsumer builds a consumer over ch. The topology is declared so a
// consumer can start before any publisher.
func NewConsumer(ch Channel, runner worker.Runner, opts ...Option) (*Consumer, error) {
	o := applyOptions(opts)
	if err := DeclareTopology(ch, o.topology); err != nil {
		return nil, err
	}
	if err := ch.Qos(o.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{
		ch:       ch,
		runner:   runner,
		topology: o.topology,
		prefetch: o.prefetch,
		logger:   o.logger.Named("dispatch.consumer"),
	}, nil
}

// Start registers the consumer and processes deliveries on prefetch
// goroutines until the channel closes or ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topology.Queue, err)
	}
	for i := 0; i < c.prefetch; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.loop(ctx, deliveries)
		}()
	}
	c.logger.Info(ctx, "consuming jobs",
		logger.String("queue", c.topology.Queue),
		logger.Int("concurrency", c.prefetch),
	)
	return nil
}

// Shutdown closes the channel and waits for in-flight jobs.
func (c *Consumer) Shutdown(ctx context.Context) error {
	err := c.ch.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("consumer shutdown: %w", ctx.Err())
	}
}

func (c *Consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	job, err := decodeJob(d.Body)
	if err != nil {
		c.logger.Error(ctx, "dead-lettering undecodable delivery",
			logger.String("message_id", d.MessageId),
			logger.Error(err),
		)
		metrics.RecordJobDropped("unknown", "undecodable")
		c.settle(ctx, d, false)
		return
	}

	if err := c.runner.Execute(ctx, job); err != nil {
		c.logger.Error(ctx, "job failed, dead-lettering",
			logger.String("job", job.Name),
			logger.String("job_id", job.ID),
			logger.Error(err),
		)
		c.settle(ctx, d, false)
		return
	}
	c.settle(ctx, d, true)
}

func decodeJob(body []byte) (model.Job, error) {
	var job model.Job
	if err := cache.DecodeStrict(body, &job); err != nil {
		return job, fmt.Errorf("%w: %w", ErrBadDelivery, err)
	}
	if job.Name == "" {
		return job, fmt.Errorf("%w: %w", ErrBadDelivery, ErrNoJobName)
	}
	return job, nil
}

func (c *Consumer) settle(ctx context.Context, d amqp.Delivery, ok bool) {
	var err error
	if ok {
		err = d.Ack(false)
	} else {
		err = d.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn(ctx, "delivery settle failed", logger.String("message_id", d.MessageId), logger.Error(err))
	}
}

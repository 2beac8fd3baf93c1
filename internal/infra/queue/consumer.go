package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/infra/metrics"
	"github.com/xavierca1/lead-pipeline/internal/usecase"
)

type EventProcessor interface {
	Execute(ctx context.Context, input entity.AudienceEventReceived) (*usecase.ProcessEventOutput, error)
}

type EventStore interface {
	// IsProcessed lets the consumer drop redeliveries of closed events before
	// they take a throttle slot.
	IsProcessed(ctx context.Context, id string) (bool, error)
	RecordFailure(ctx context.Context, id string, errMsg string, attempts int) error
}

type Retrier interface {
	Retry(ctx context.Context, msg entity.AudienceEventReceived, attempt int) error
}

type ConsumerConfig struct {
	Concurrency int
	MaxAttempts int
	StepTimeout time.Duration
	RetryDelay  time.Duration
}

// Consumer drains the audience queue. Each delivery is acked only after the
// pipeline returns, so a crash mid-event leads to redelivery.
type Consumer struct {
	Channel   *amqp.Channel
	Processor EventProcessor
	Events    EventStore
	Retrier   Retrier
	Throttle  *Throttle
	Config    ConsumerConfig
	Logger    *zap.Logger
}

func NewConsumer(ch *amqp.Channel, processor EventProcessor, events EventStore, retrier Retrier, throttle *Throttle, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Minute
	}
	return &Consumer{
		Channel:   ch,
		Processor: processor,
		Events:    events,
		Retrier:   retrier,
		Throttle:  throttle,
		Config:    cfg,
		Logger:    logger,
	}
}

// Start consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.Channel.Qos(c.Config.Concurrency, 0, false); err != nil {
		return err
	}
	msgs, err := c.Channel.ConsumeWithContext(ctx, AudienceQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.Logger.Info("consumer started",
		zap.String("queue", AudienceQueue),
		zap.Int("concurrency", c.Config.Concurrency),
		zap.Int("max_attempts", c.Config.MaxAttempts),
	)

	var wg sync.WaitGroup
	for i := 0; i < c.Config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					c.Handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return errors.New("audience delivery channel closed")
}

// Handle processes one delivery and settles it exactly once.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	var msg entity.AudienceEventReceived
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.EventID == "" {
		c.Logger.Error("malformed audience event, dead-lettering", zap.ByteString("body", d.Body), zap.Error(err))
		d.Nack(false, false)
		return
	}

	attempt := attemptOf(d.Headers)
	log := c.Logger.With(zap.String("event_id", msg.EventID), zap.Int("attempt", attempt))

	// A failed check falls through to Execute, which applies the same fence.
	if processed, err := c.Events.IsProcessed(ctx, msg.EventID); err == nil && processed {
		log.Debug("event already processed, dropping redelivery")
		metrics.RecordRetry("skipped")
		d.Ack(false)
		return
	}

	if err := c.Throttle.Wait(ctx); err != nil {
		d.Nack(false, true)
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, c.Config.StepTimeout)
	_, err := c.Processor.Execute(stepCtx, msg)
	cancel()

	if err == nil {
		d.Ack(false)
		return
	}

	if usecase.IsDomainError(err) {
		log.Error("event rejected", zap.Error(err))
		c.recordFailure(ctx, msg.EventID, err, attempt)
		metrics.RecordRetry("rejected")
		d.Nack(false, false)
		return
	}

	if attempt < c.Config.MaxAttempts {
		log.Warn("event failed, scheduling retry", zap.Error(err))
		if !c.sleep(ctx, c.Config.RetryDelay*time.Duration(attempt)) {
			d.Nack(false, true)
			return
		}
		if retryErr := c.Retrier.Retry(ctx, msg, attempt+1); retryErr != nil {
			log.Error("republish failed, requeueing", zap.Error(retryErr))
			d.Nack(false, true)
			return
		}
		metrics.RecordRetry("requeued")
		d.Ack(false)
		return
	}

	log.Error("event failed on last attempt, dead-lettering", zap.Error(err))
	c.recordFailure(ctx, msg.EventID, err, attempt)
	metrics.RecordRetry("exhausted")
	d.Nack(false, false)
}

func (c *Consumer) recordFailure(ctx context.Context, eventID string, cause error, attempt int) {
	if err := c.Events.RecordFailure(ctx, eventID, cause.Error(), attempt); err != nil {
		c.Logger.Error("failed to record event failure", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

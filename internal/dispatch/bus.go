// Package dispatch implements the agent's outbound bus: a bounded FIFO
// channel from producers (metrics scraper, log listeners, node-data
// reporter) to a single dispatcher task that forwards each message to
// ingress with bounded exponential-backoff retry.
package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// InitialInterval is the first retry delay.
	InitialInterval = 1 * time.Second
	// MaxInterval is the backoff ceiling.
	MaxInterval = 60 * time.Second
	// MaxAttempts bounds total send attempts per message (1 initial + 5 retries).
	MaxAttempts = 6
)

// Message is one outbound unit of work: a closure that performs the RPC
// call and returns an error the bus will retry on.
type Message struct {
	// Producer identifies the FIFO lane this message belongs to; ordering
	// is preserved within a producer but not across producers.
	Producer string
	Send     func(ctx context.Context) error
}

// Bus is a bounded FIFO channel draining into a single dispatcher
// goroutine. Sends from the same producer are delivered in order;
// delivery across producers interleaves.
type Bus struct {
	ch     chan Message
	errCh  chan error
	logger *zap.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
	maxAttempts     int
}

// NewBus creates a Bus with the given channel capacity and the standard
// 1s-to-60s/6-attempt retry policy.
func NewBus(capacity int, logger *zap.Logger) *Bus {
	return &Bus{
		ch:              make(chan Message, capacity),
		errCh:           make(chan error, capacity),
		logger:          logger,
		initialInterval: InitialInterval,
		maxInterval:     MaxInterval,
		maxAttempts:     MaxAttempts,
	}
}

// newBusWithRetryPolicy builds a Bus with an overridden retry schedule,
// used by tests to avoid waiting out the real 1s-60s policy.
func newBusWithRetryPolicy(capacity int, initial, max time.Duration, attempts int) *Bus {
	b := NewBus(capacity, nil)
	b.initialInterval = initial
	b.maxInterval = max
	b.maxAttempts = attempts
	return b
}

// Push enqueues a message. It blocks if the bus is at capacity, applying
// natural backpressure to producers.
func (b *Bus) Push(ctx context.Context, msg Message) error {
	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Errors returns the broadcast channel of final (all-retries-exhausted)
// failures. Consumers should drain it to avoid blocking the dispatcher.
func (b *Bus) Errors() <-chan error {
	return b.errCh
}

// Run drains the bus until ctx is cancelled, dispatching each message
// with retry and forwarding terminal failures to Errors().
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.ch:
			if !ok {
				return
			}
			b.dispatch(ctx, msg)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, msg Message) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.initialInterval
	bo.MaxInterval = b.maxInterval
	bo.MaxElapsedTime = 0

	withMax := backoff.WithMaxRetries(bo, uint64(b.maxAttempts-1))
	withCtx := backoff.WithContext(withMax, ctx)

	err := backoff.Retry(func() error {
		return msg.Send(ctx)
	}, withCtx)

	if err != nil {
		if b.logger != nil {
			b.logger.Error("dispatch failed after retries", zap.String("producer", msg.Producer), zap.Error(err))
		}
		select {
		case b.errCh <- err:
		default:
			// error channel full; drop rather than block the dispatcher.
		}
	}
}

package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/alert"
	"github.com/ivy-net/Ivynet-sub000/internal/store"
)

// queueDepth bounds each channel's serve-loop queue; a burst beyond this
// blocks the submitting dispatch call rather than dropping a notification.
const queueDepth = 256

// Store is the subset of *store.Store the dispatcher needs.
type Store interface {
	GetOrganisationForMachine(ctx context.Context, machineID string) (store.Organisation, error)
	GetNotificationSettings(ctx context.Context, orgID int64) (store.NotificationSettings, error)
	SetChannelState(ctx context.Context, alertID, channel, state string) error
}

type job struct {
	adapter Adapter
	msg     Message
}

// Dispatcher fans an alert out to every channel its organisation has
// enabled, one serve-loop goroutine per channel so delivery order within a
// channel matches submission order.
type Dispatcher struct {
	store    Store
	logger   *zap.Logger
	adapters map[Channel]Adapter
	queues   map[Channel]chan job
}

// NewDispatcher builds a Dispatcher. Call Register once per adapter before
// dispatching any alerts.
func NewDispatcher(s Store, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    s,
		logger:   logger,
		adapters: make(map[Channel]Adapter),
		queues:   make(map[Channel]chan job),
	}
}

// Register wires an adapter in and starts its serve loop. ctx bounds the
// loop's lifetime; once it is cancelled the loop stops, and jobs still in
// the queue may be left undelivered.
func (d *Dispatcher) Register(ctx context.Context, adapter Adapter) {
	ch := adapter.Channel()
	queue := make(chan job, queueDepth)
	d.adapters[ch] = adapter
	d.queues[ch] = queue
	go d.serve(ctx, ch, adapter, queue)
}

func (d *Dispatcher) serve(ctx context.Context, ch Channel, adapter Adapter, queue chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-queue:
			if !ok {
				return
			}
			d.deliver(ctx, ch, adapter, j.msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, adapter Adapter, msg Message) {
	err := adapter.Send(ctx, msg)
	state := store.SendStateSent
	if err != nil {
		state = store.SendStateFailed
		if d.logger != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("channel", string(ch)), zap.String("alert_id", msg.AlertID), zap.Error(err))
		}
	}
	if setErr := d.store.SetChannelState(ctx, msg.AlertID, string(ch), state); setErr != nil && d.logger != nil {
		d.logger.Error("failed to persist channel send state",
			zap.String("channel", string(ch)), zap.String("alert_id", msg.AlertID), zap.Error(setErr))
	}
}

// Dispatch looks up the owning organisation's enabled channels and submits
// one Message per enabled, registered channel. It does not wait for
// delivery; each channel's serve loop processes its queue independently.
// A channel that is enabled but has no endpoint configured is skipped. If
// the organisation's alert-flags bitmask does not have this alert's kind
// set, nothing is sent to any channel.
func (d *Dispatcher) Dispatch(ctx context.Context, a store.ActiveAlert) error {
	org, err := d.store.GetOrganisationForMachine(ctx, a.MachineID)
	if err != nil {
		return fmt.Errorf("notify: dispatch: resolve organisation: %w", err)
	}
	if !alert.Enabled(org.AlertFlags, alert.Kind(a.Kind)) {
		return nil
	}
	settings, err := d.store.GetNotificationSettings(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("notify: dispatch: load settings: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s on %s/%s", a.Kind, a.Kind, a.MachineID, a.NodeName)

	for _, pair := range []struct {
		channel  Channel
		enabled  bool
		endpoint string
	}{
		{ChannelEmail, settings.EmailEnabled, settings.EmailEndpoint},
		{ChannelChat, settings.ChatEnabled, settings.ChatEndpoint},
		{ChannelPaging, settings.PagingEnabled, settings.PagingEndpoint},
	} {
		if !pair.enabled || pair.endpoint == "" {
			continue
		}
		queue, ok := d.queues[pair.channel]
		if !ok {
			continue
		}
		if err := d.store.SetChannelState(ctx, a.AlertID, string(pair.channel), store.SendStatePending); err != nil && d.logger != nil {
			d.logger.Error("failed to mark channel pending",
				zap.String("channel", string(pair.channel)), zap.String("alert_id", a.AlertID), zap.Error(err))
		}
		select {
		case queue <- job{adapter: d.adapters[pair.channel], msg: Message{
			AlertID:  a.AlertID,
			Subject:  subject,
			Body:     a.Detail,
			Endpoint: pair.endpoint,
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// waitDrain is a test helper giving serve loops a moment to process their
// queues; production callers rely on the queue channel itself for
// backpressure rather than polling.
func waitDrain() { time.Sleep(20 * time.Millisecond) }

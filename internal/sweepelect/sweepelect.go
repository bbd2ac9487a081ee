// Package sweepelect provides optional leader election so a fleet of
// ingress instances runs exactly one heartbeat-sweep task at a time,
// instead of every instance sweeping independently and firing duplicate
// alert derivations. A single ingress instance works with no etcd
// configured; Coordinator only needs to be wired in once the ingress is
// scaled horizontally.
package sweepelect

import (
	"context"
	"fmt"

	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/etcd"
)

// electionPrefix is the etcd key prefix campaigned on; every ingress
// instance observing the same prefix competes for the same seat.
const electionPrefix = "/ivynet/sweep-leader"

// sessionTTL bounds how long a leader's session survives after the owning
// process stops renewing it (crash, network partition).
const sessionTTL = 15

// Coordinator holds (at most) the sweep-leader seat for this process.
type Coordinator struct {
	client  *etcd.Client
	logger  *zap.Logger
	session *concurrency.Session
	elected chan struct{}
}

// NewCoordinator builds a Coordinator bound to an etcd client. Pass a nil
// client to run single-instance, where Campaign returns at once and
// Elected() is closed.
func NewCoordinator(client *etcd.Client, logger *zap.Logger) *Coordinator {
	return &Coordinator{client: client, logger: logger, elected: make(chan struct{})}
}

// Campaign blocks until this process holds the sweep-leader seat or ctx is
// cancelled. With no etcd client configured it returns immediately —
// single-instance deployments always lead.
func (c *Coordinator) Campaign(ctx context.Context) error {
	if c.client == nil {
		close(c.elected)
		return nil
	}

	session, err := c.client.NewSession(ctx, sessionTTL)
	if err != nil {
		return fmt.Errorf("sweepelect: new session: %w", err)
	}
	c.session = session

	election := c.client.NewElection(session, electionPrefix)
	if err := election.Campaign(ctx, fmt.Sprintf("%d", session.Lease())); err != nil {
		return fmt.Errorf("sweepelect: campaign: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("acquired sweep-leader seat")
	}
	close(c.elected)

	go func() {
		<-session.Done()
		if c.logger != nil {
			c.logger.Warn("sweep-leader session ended")
		}
	}()

	return nil
}

// Elected returns a channel that closes once this process becomes leader.
func (c *Coordinator) Elected() <-chan struct{} {
	return c.elected
}

// Resign releases the sweep-leader seat, letting another instance take
// over without waiting for the session TTL to lapse.
func (c *Coordinator) Resign(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	election := c.client.NewElection(c.session, electionPrefix)
	if err := election.Resign(ctx); err != nil {
		return fmt.Errorf("sweepelect: resign: %w", err)
	}
	return c.session.Close()
}

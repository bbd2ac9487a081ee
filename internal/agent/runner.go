// Package agent drives the per-host scrape cycle: for each configured
// node it resolves the backing container, scrapes metrics, diffs
// node-data against the last-reported state, and pushes every outbound
// message through the dispatch bus. It also emits the three heartbeat
// kinds ingress tracks for liveness.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/config"
	"github.com/ivy-net/Ivynet-sub000/internal/dispatch"
	"github.com/ivy-net/Ivynet-sub000/internal/hostmetrics"
	"github.com/ivy-net/Ivynet-sub000/internal/identity"
	"github.com/ivy-net/Ivynet-sub000/internal/nodedata"
	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// DefaultScrapeInterval is how often the runner cycles every configured
// node.
const DefaultScrapeInterval = 15 * time.Second

// DefaultHeartbeatInterval is how often the runner posts its own
// liveness heartbeats, independent of the per-node scrape cycle.
const DefaultHeartbeatInterval = 30 * time.Second

// ContainerInspector is the subset of *dockerwatch.Introspector the
// runner needs, narrowed so tests can substitute a fake Docker daemon.
type ContainerInspector interface {
	IsRunning(ctx context.Context, name string) (bool, error)
	ListImages(ctx context.Context) (map[string]string, error)
}

// MetricScraper fetches a node's Prometheus-format samples. Implemented by
// *metrics.Scraper.
type MetricScraper interface {
	Scrape(ctx context.Context, port int) []wire.Sample
}

// Caller sends one signed RPC body to ingress. Implemented by
// *ingressclient.Client.
type Caller interface {
	Call(ctx context.Context, method string, body any) error
}

// Runner owns one scrape cycle across every node in Config.
type Runner struct {
	signer   *identity.Signer
	caller   Caller
	bus      *dispatch.Bus
	docker   ContainerInspector
	scraper  MetricScraper
	reporter *nodedata.Reporter
	nodes    []config.ConfiguredNode
	logger   *zap.Logger

	scrapeInterval    time.Duration
	heartbeatInterval time.Duration
}

// Config bundles a Runner's dependencies and tunables.
type Config struct {
	Signer            *identity.Signer
	Caller            Caller
	Bus               *dispatch.Bus
	Docker            ContainerInspector
	Scraper           MetricScraper
	Nodes             []config.ConfiguredNode
	Logger            *zap.Logger
	ScrapeInterval    time.Duration
	HeartbeatInterval time.Duration
}

// NewRunner builds a Runner, applying default intervals when unset.
func NewRunner(cfg Config) *Runner {
	if cfg.ScrapeInterval <= 0 {
		cfg.ScrapeInterval = DefaultScrapeInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Runner{
		signer:            cfg.Signer,
		caller:            cfg.Caller,
		bus:               cfg.Bus,
		docker:            cfg.Docker,
		scraper:           cfg.Scraper,
		reporter:          nodedata.NewReporter(),
		nodes:             cfg.Nodes,
		logger:            cfg.Logger,
		scrapeInterval:    cfg.ScrapeInterval,
		heartbeatInterval: cfg.HeartbeatInterval,
	}
}

// Run drives the scrape and heartbeat tickers until ctx is cancelled. The
// dispatch bus's own Run loop must be started separately by the caller,
// since it outlives any single Runner and is shared across producers.
func (r *Runner) Run(ctx context.Context) {
	scrapeTicker := time.NewTicker(r.scrapeInterval)
	defer scrapeTicker.Stop()
	heartbeatTicker := time.NewTicker(r.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-scrapeTicker.C:
			r.cycle(ctx)
		case <-heartbeatTicker.C:
			r.postClientHeartbeat(ctx)
			r.postMachineHeartbeat(ctx)
		}
	}
}

// cycle scrapes every configured node once and enqueues the resulting
// node-data, metrics, and per-node heartbeat messages.
func (r *Runner) cycle(ctx context.Context) {
	images, err := r.docker.ListImages(ctx)
	if err != nil {
		images = nil
		if r.logger != nil {
			r.logger.Warn("failed to list images", zap.Error(err))
		}
	}

	for _, node := range r.nodes {
		r.scrapeOne(ctx, node, images)
	}

	r.postMachineData(ctx)
}

func (r *Runner) scrapeOne(ctx context.Context, node config.ConfiguredNode, images map[string]string) {
	digest := ""
	if node.ManifestDigest != nil {
		digest = *node.ManifestDigest
	}
	if node.Image != nil {
		if d, ok := images[*node.Image]; ok {
			digest = d
		}
	}

	running, err := r.docker.IsRunning(ctx, node.ContainerName)
	if err != nil {
		running = false
		if r.logger != nil {
			r.logger.Debug("container not found", zap.String("container", node.ContainerName), zap.Error(err))
		}
	}

	var samples []wire.Sample
	metricsAlive := false
	if running && node.MetricPort != nil {
		samples = r.scraper.Scrape(ctx, *node.MetricPort)
		metricsAlive = len(samples) > 0
	}

	nodeDataPayload := r.reporter.Report(nodedata.Observation{
		Name:         node.AssignedName,
		NodeType:     node.AVSType.Canonical(),
		ImageDigest:  digest,
		MetricsAlive: metricsAlive,
		NodeRunning:  running,
	})
	r.enqueue(ctx, node.AssignedName+"/node_data", func(ctx context.Context) error {
		signed := r.signer.SignNodeData(nodeDataPayload)
		return r.caller.Call(ctx, "node_data_v2", signed)
	})

	if len(samples) > 0 {
		name := node.AssignedName
		metricsPayload := wire.MetricsPayload{AVSName: &name, Samples: samples}
		r.enqueue(ctx, node.AssignedName+"/metrics", func(ctx context.Context) error {
			signed := r.signer.SignMetrics(metricsPayload)
			return r.caller.Call(ctx, "metrics", signed)
		})
	}

	if running {
		r.enqueue(ctx, node.AssignedName+"/heartbeat_node", func(ctx context.Context) error {
			signed := r.signer.SignHeartbeat(wire.HeartbeatNode, node.AssignedName)
			return r.caller.Call(ctx, "heartbeat_node", signed)
		})
	}
}

func (r *Runner) postMachineData(ctx context.Context) {
	snap, err := hostmetrics.Collect(ctx)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("failed to collect host metrics", zap.Error(err))
		}
		return
	}
	payload := wire.MachineDataPayload{
		CPUPercent: snap.CPUPercent,
		RAMUsed:    snap.RAMUsed,
		RAMFree:    snap.RAMFree,
		DiskUsed:   snap.DiskUsed,
		DiskFree:   snap.DiskFree,
		CoreCount:  snap.CoreCount,
		UptimeSecs: snap.UptimeSecs,
	}
	r.enqueue(ctx, "machine_data", func(ctx context.Context) error {
		signed := r.signer.SignMachineData(payload)
		return r.caller.Call(ctx, "machine_data", signed)
	})
}

func (r *Runner) postClientHeartbeat(ctx context.Context) {
	r.enqueue(ctx, "heartbeat_client", func(ctx context.Context) error {
		signed := r.signer.SignHeartbeat(wire.HeartbeatClient, r.signer.MachineID.String())
		return r.caller.Call(ctx, "heartbeat_client", signed)
	})
}

func (r *Runner) postMachineHeartbeat(ctx context.Context) {
	r.enqueue(ctx, "heartbeat_machine", func(ctx context.Context) error {
		signed := r.signer.SignHeartbeat(wire.HeartbeatMachine, r.signer.MachineID.String())
		return r.caller.Call(ctx, "heartbeat_machine", signed)
	})
}

func (r *Runner) enqueue(ctx context.Context, producer string, send func(ctx context.Context) error) {
	if err := r.bus.Push(ctx, dispatch.Message{Producer: producer, Send: send}); err != nil && r.logger != nil {
		r.logger.Warn("failed to enqueue message", zap.String("producer", producer), zap.Error(err))
	}
}

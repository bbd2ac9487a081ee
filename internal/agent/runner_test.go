package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/config"
	"github.com/ivy-net/Ivynet-sub000/internal/dispatch"
	"github.com/ivy-net/Ivynet-sub000/internal/identity"
	"github.com/ivy-net/Ivynet-sub000/internal/nodetype"
	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

type fakeDocker struct {
	running map[string]bool
	images  map[string]string
}

func (f *fakeDocker) IsRunning(ctx context.Context, name string) (bool, error) {
	running, ok := f.running[name]
	if !ok {
		return false, fmt.Errorf("no such container: %s", name)
	}
	return running, nil
}

func (f *fakeDocker) ListImages(ctx context.Context) (map[string]string, error) {
	return f.images, nil
}

type fakeScraper struct {
	samples []wire.Sample
}

func (f *fakeScraper) Scrape(ctx context.Context, port int) []wire.Sample {
	return f.samples
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCaller) Call(ctx context.Context, method string, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	return nil
}

func (f *fakeCaller) methodCalls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func testSigner(t *testing.T) *identity.Signer {
	t.Helper()
	s, err := identity.GenerateSigner(uuid.New())
	require.NoError(t, err)
	return s
}

func drainBus(t *testing.T, bus *dispatch.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	bus.Run(ctx)
}

func TestRunner_CycleReportsRunningNodeWithMetrics(t *testing.T) {
	caller := &fakeCaller{}
	bus := dispatch.NewBus(16, zap.NewNop())
	port := 9090
	runner := NewRunner(Config{
		Signer:  testSigner(t),
		Caller:  caller,
		Bus:     bus,
		Docker:  &fakeDocker{running: map[string]bool{"eigenda-native-node": true}},
		Scraper: &fakeScraper{samples: []wire.Sample{{Name: "uptime", Value: 1}}},
		Nodes: []config.ConfiguredNode{
			{AssignedName: "eigen-1", ContainerName: "eigenda-native-node", AVSType: nodetype.NodeType{Outer: nodetype.OuterEigenDA}, MetricPort: &port},
		},
		Logger: zap.NewNop(),
	})

	go drainBus(t, bus)
	runner.cycle(context.Background())
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 1, caller.methodCalls("node_data_v2"))
	require.Equal(t, 1, caller.methodCalls("metrics"))
	require.Equal(t, 1, caller.methodCalls("heartbeat_node"))
	require.Equal(t, 1, caller.methodCalls("machine_data"))
}

func TestRunner_CycleSkipsMetricsAndHeartbeatForStoppedNode(t *testing.T) {
	caller := &fakeCaller{}
	bus := dispatch.NewBus(16, zap.NewNop())
	port := 9090
	runner := NewRunner(Config{
		Signer:  testSigner(t),
		Caller:  caller,
		Bus:     bus,
		Docker:  &fakeDocker{running: map[string]bool{"eigenda-native-node": false}},
		Scraper: &fakeScraper{},
		Nodes: []config.ConfiguredNode{
			{AssignedName: "eigen-1", ContainerName: "eigenda-native-node", AVSType: nodetype.NodeType{Outer: nodetype.OuterEigenDA}, MetricPort: &port},
		},
		Logger: zap.NewNop(),
	})

	go drainBus(t, bus)
	runner.cycle(context.Background())
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 1, caller.methodCalls("node_data_v2"))
	require.Equal(t, 0, caller.methodCalls("metrics"))
	require.Equal(t, 0, caller.methodCalls("heartbeat_node"))
}

func TestRunner_HeartbeatTickersFireIndependentlyOfScrape(t *testing.T) {
	caller := &fakeCaller{}
	bus := dispatch.NewBus(16, zap.NewNop())
	runner := NewRunner(Config{
		Signer:            testSigner(t),
		Caller:            caller,
		Bus:               bus,
		Docker:            &fakeDocker{},
		Scraper:           &fakeScraper{},
		Logger:            zap.NewNop(),
		ScrapeInterval:    time.Hour,
		HeartbeatInterval: 10 * time.Millisecond,
	})

	go drainBus(t, bus)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	runner.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	require.GreaterOrEqual(t, caller.methodCalls("heartbeat_client"), 1)
	require.GreaterOrEqual(t, caller.methodCalls("heartbeat_machine"), 1)
}

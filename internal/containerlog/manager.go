package containerlog

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivy-net/Ivynet-sub000/internal/dockerwatch"
)

// StreamOpener opens a container's log stream; satisfied by
// *dockerwatch.Introspector in production and a fake in tests.
type StreamOpener interface {
	OpenLogStream(ctx context.Context, handle dockerwatch.ContainerHandle, since time.Time) (io.ReadCloser, error)
}

// Sink receives one processed record per watched container, tagged with
// the AVS name the record belongs to.
type Sink func(avsName string, rec Record)

type watchedContainer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns one tailing goroutine per watched container and is safe
// for concurrent Add/Remove from the docker event handler.
type Manager struct {
	opener StreamOpener
	sink   Sink
	logger *zap.Logger

	mu       sync.Mutex
	watching map[string]*watchedContainer // keyed by avsName
}

// NewManager builds a Manager. sink is called once per sanitised line.
func NewManager(opener StreamOpener, sink Sink, logger *zap.Logger) *Manager {
	return &Manager{
		opener:   opener,
		sink:     sink,
		logger:   logger,
		watching: make(map[string]*watchedContainer),
	}
}

// Add starts tailing the given container under avsName. Adding a listener
// for a name that's already watched is a no-op; a failure to open the
// container's log stream is logged as a warning by the tailing goroutine
// rather than surfaced as an error.
func (m *Manager) Add(ctx context.Context, avsName string, handle dockerwatch.ContainerHandle, since time.Time) {
	m.mu.Lock()
	if _, exists := m.watching[avsName]; exists {
		m.mu.Unlock()
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	entry := &watchedContainer{cancel: cancel, done: make(chan struct{})}
	m.watching[avsName] = entry
	m.mu.Unlock()

	go m.tail(childCtx, avsName, handle, since, entry)
}

// Remove stops the tailing task for avsName, if one is running.
func (m *Manager) Remove(avsName string) {
	m.mu.Lock()
	entry, exists := m.watching[avsName]
	if exists {
		delete(m.watching, avsName)
	}
	m.mu.Unlock()

	if exists {
		entry.cancel()
	}
}

// Watching reports whether avsName currently has an active tail task.
func (m *Manager) Watching(avsName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watching[avsName]
	return ok
}

func (m *Manager) tail(ctx context.Context, avsName string, handle dockerwatch.ContainerHandle, since time.Time, entry *watchedContainer) {
	defer close(entry.done)
	defer m.cleanup(avsName, entry)

	stream, err := m.opener.OpenLogStream(ctx, handle, since)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("failed to open log stream", zap.String("avs", avsName), zap.Error(err))
		}
		return
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		rec := Process(scanner.Text(), time.Now())
		m.sink(avsName, rec)
	}
}

// cleanup removes the watching entry on natural stream close (container
// died) so the manager doesn't leak an entry for a dead tail goroutine.
func (m *Manager) cleanup(avsName string, entry *watchedContainer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.watching[avsName]; ok && current == entry {
		delete(m.watching, avsName)
	}
}

package containerlog

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ivy-net/Ivynet-sub000/internal/dockerwatch"
)

type fakeOpener struct {
	mu      sync.Mutex
	streams map[string]io.ReadCloser
	opens   int
}

func (f *fakeOpener) OpenLogStream(ctx context.Context, handle dockerwatch.ContainerHandle, since time.Time) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if rc, ok := f.streams[handle.Name]; ok {
		return rc, nil
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func TestManager_AddStartsTailingAndDispatchesRecords(t *testing.T) {
	var mu sync.Mutex
	var received []Record

	opener := &fakeOpener{streams: map[string]io.ReadCloser{
		"eigen-da-1": io.NopCloser(strings.NewReader("boot ok\nERROR something broke\n")),
	}}

	mgr := NewManager(opener, func(avsName string, rec Record) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, rec)
	}, nil)

	mgr.Add(context.Background(), "eigen-da-1", dockerwatch.ContainerHandle{Name: "eigen-da-1"}, time.Time{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, LevelUnknown, received[0].Level)
	require.Equal(t, LevelError, received[1].Level)
}

func TestManager_AddIsNoopWhenAlreadyWatching(t *testing.T) {
	opener := &fakeOpener{streams: map[string]io.ReadCloser{}}
	mgr := NewManager(opener, func(string, Record) {}, nil)

	mgr.Add(context.Background(), "n1", dockerwatch.ContainerHandle{Name: "n1"}, time.Time{})
	require.True(t, mgr.Watching("n1"))
	mgr.Add(context.Background(), "n1", dockerwatch.ContainerHandle{Name: "n1"}, time.Time{})

	opener.mu.Lock()
	opens := opener.opens
	opener.mu.Unlock()
	require.Equal(t, 1, opens)
}

func TestManager_RemoveStopsTailing(t *testing.T) {
	r, w := io.Pipe()
	opener := &fakeOpener{streams: map[string]io.ReadCloser{"n1": r}}
	mgr := NewManager(opener, func(string, Record) {}, nil)

	mgr.Add(context.Background(), "n1", dockerwatch.ContainerHandle{Name: "n1"}, time.Time{})
	require.True(t, mgr.Watching("n1"))

	mgr.Remove("n1")
	require.Eventually(t, func() bool {
		return !mgr.Watching("n1")
	}, time.Second, 10*time.Millisecond)

	w.Close()
}

func TestManager_CleansUpOnStreamClose(t *testing.T) {
	opener := &fakeOpener{streams: map[string]io.ReadCloser{
		"n1": io.NopCloser(strings.NewReader("one line\n")),
	}}
	mgr := NewManager(opener, func(string, Record) {}, nil)

	mgr.Add(context.Background(), "n1", dockerwatch.ContainerHandle{Name: "n1"}, time.Time{})

	require.Eventually(t, func() bool {
		return !mgr.Watching("n1")
	}, time.Second, 10*time.Millisecond)
}

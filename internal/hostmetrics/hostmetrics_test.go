package hostmetrics

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollect_CoreCountMatchesRuntime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, runtime.NumCPU(), snap.CoreCount)
}

func TestCollect_NeverReturnsNegativeCounters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := Collect(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, snap.CPUPercent, 0.0)
	require.GreaterOrEqual(t, snap.CoreCount, 1)
}

package dockerwatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstDigest_PrefersRepoDigestSuffix(t *testing.T) {
	digest := firstDigest([]string{"layr-labs/eigenda@sha256:abcdef1234"})
	require.Equal(t, "sha256:abcdef1234", digest)
}

func TestFirstDigest_NoDigestsReturnsEmpty(t *testing.T) {
	require.Equal(t, "", firstDigest(nil))
	require.Equal(t, "", firstDigest([]string{"no-digest-here"}))
}

func TestFirstDigest_SkipsMalformedBeforeFirstValid(t *testing.T) {
	digest := firstDigest([]string{"malformed", "repo@sha256:real"})
	require.Equal(t, "sha256:real", digest)
}

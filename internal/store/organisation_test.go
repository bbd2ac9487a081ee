package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNotificationSettings_DefaultsWhenUnset(t *testing.T) {
	s := newTestStore(t)
	seedMachine(t, s, "m1")
	n, err := s.GetNotificationSettings(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, n.EmailEnabled)
	require.False(t, n.ChatEnabled)
	require.False(t, n.PagingEnabled)
}

func TestPutAndGetNotificationSettings(t *testing.T) {
	s := newTestStore(t)
	seedMachine(t, s, "m1")
	ctx := context.Background()

	err := s.PutNotificationSettings(ctx, NotificationSettings{
		OrganisationID: 1,
		EmailEnabled:   true,
		EmailEndpoint:  "ops@example.com",
	})
	require.NoError(t, err)

	n, err := s.GetNotificationSettings(ctx, 1)
	require.NoError(t, err)
	require.True(t, n.EmailEnabled)
	require.Equal(t, "ops@example.com", n.EmailEndpoint)
	require.False(t, n.ChatEnabled)
}

func TestGetOrganisationForMachine(t *testing.T) {
	s := newTestStore(t)
	seedMachine(t, s, "m1")

	o, err := s.GetOrganisationForMachine(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, int64(1), o.ID)
	require.Equal(t, "acme", o.Name)
}

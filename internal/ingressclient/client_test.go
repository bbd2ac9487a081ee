package ingressclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCall_PostsToMethodRoute(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Call(context.Background(), "metrics", map[string]string{"hello": "world"})
	require.NoError(t, err)
	require.Equal(t, "/rpc/metrics", gotPath)
	require.Equal(t, "world", gotBody["hello"])
}

func TestCall_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"InvalidSignature","message":"nope"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Call(context.Background(), "metrics", map[string]string{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

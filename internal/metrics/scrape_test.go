package metrics

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScraper_Scrape_ParsesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("node_up 1\nscore{avs=\"eigen-da\"} 82.5\n"))
	}))
	defer srv.Close()

	port := serverPort(t, srv)
	scraper := NewScraper()
	samples := scraper.Scrape(context.Background(), port)

	require.Len(t, samples, 2)
	require.Equal(t, "node_up", samples[0].Name)
	require.Equal(t, "score", samples[1].Name)
}

func TestScraper_Scrape_UnreachablePortYieldsEmpty(t *testing.T) {
	scraper := NewScraper()
	samples := scraper.Scrape(context.Background(), 1) // reserved port, nothing listening
	require.Empty(t, samples)
}

func TestScraper_Scrape_NonOKStatusYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	port := serverPort(t, srv)
	scraper := NewScraper()
	samples := scraper.Scrape(context.Background(), port)
	require.Empty(t, samples)
}

func TestScraper_Scrape_RespectsContextTimeout(t *testing.T) {
	blockCh := make(chan struct{})
	defer close(blockCh)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blockCh
	}))
	defer srv.Close()

	port := serverPort(t, srv)
	scraper := NewScraper()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	samples := scraper.Scrape(ctx, port)
	require.Empty(t, samples)
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

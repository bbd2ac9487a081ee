package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// ScrapeTimeout bounds every per-node /metrics HTTP GET.
const ScrapeTimeout = 10 * time.Second

// Scraper pulls a node's Prometheus-format text endpoint on demand. It
// holds no per-node state; the caller owns the scrape cycle.
type Scraper struct {
	client *http.Client
}

// NewScraper builds a Scraper with the fixed per-request timeout.
func NewScraper() *Scraper {
	return &Scraper{client: &http.Client{Timeout: ScrapeTimeout}}
}

// Scrape fetches http://localhost:<port>/metrics and parses the body into
// samples. Any failure — connection refused, timeout, non-2xx status —
// yields an empty sample vector rather than an error, matching the
// scrape cycle's tolerance for unreachable nodes.
func (s *Scraper) Scrape(ctx context.Context, port int) []wire.Sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scrapeURL(port), nil)
	if err != nil {
		return nil
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil
	}

	return ParseText(string(body))
}

func scrapeURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/metrics", port)
}

package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

	// maxBodyBytes bounds a single source response.
	maxBodyBytes = 50 << 20
)

// Fetcher retrieves raw TLE text from a primary source plus optional extra
// sources.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. An empty sourceURL selects the CelesTrak
// active catalog.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL:  sourceURL,
		extraURLs:  extraURLs,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SourceURL returns the primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads the primary source and every extra source concurrently
// and returns their concatenation, primary first. A failing extra source is
// logged and left out; a failing primary source fails the fetch.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	bodies := make([][]byte, 1+len(f.extraURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := f.get(gctx, f.sourceURL)
		if err != nil {
			return err
		}
		bodies[0] = body
		return nil
	})
	for i, u := range f.extraURLs {
		g.Go(func() error {
			body, err := f.get(gctx, u)
			if err != nil {
				f.logger.Warn("extra TLE source failed", "url", u, "error", err)
				return nil
			}
			bodies[i+1] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, b := range bodies {
		if len(b) == 0 {
			continue
		}
		buf.Write(b)
		if b[len(b)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}
	return body, nil
}

// Package tuner is the HTTP client for the upstream tuner API: program,
// service, and channel catalogs, per-program MPEG-TS byte streams, and
// the NDJSON resource event feed.
package tuner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mjkirchner/tvrecorder/internal/epgsync"
	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/pkg/httpclient"
)

// Client talks to the upstream tuner's Mirakurun-style HTTP API over a
// resilient httpclient.Client (circuit breaker, retries, transparent
// decompression).
type Client struct {
	baseURI string
	http    *httpclient.Client
	logger  *slog.Logger
}

// New constructs a Client against baseURI (e.g. "http://localhost:40772/api").
func New(baseURI string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := httpclient.DefaultConfig()
	cfg.Logger = logger
	cfg.UserAgent = "tvrecorder-tuner-client/1.0"
	return &Client{
		baseURI: strings.TrimRight(baseURI, "/"),
		http:    httpclient.New(cfg),
		logger:  logger,
	}
}

func (c *Client) url(path string) string {
	return c.baseURI + path
}

// FetchPrograms retrieves the full upstream program catalog.
func (c *Client) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	var programs []models.Program
	if err := c.getJSON(ctx, "/programs", &programs); err != nil {
		return nil, fmt.Errorf("fetching programs: %w", err)
	}
	return programs, nil
}

// FetchServices retrieves the full upstream service catalog as opaque
// JSON documents; the Synchroniser forwards these untouched into the
// external index.
func (c *Client) FetchServices(ctx context.Context) ([]json.RawMessage, error) {
	var services []json.RawMessage
	if err := c.getJSON(ctx, "/services", &services); err != nil {
		return nil, fmt.Errorf("fetching services: %w", err)
	}
	return services, nil
}

// FetchChannels retrieves the full upstream channel catalog.
func (c *Client) FetchChannels(ctx context.Context) ([]json.RawMessage, error) {
	var channels []json.RawMessage
	if err := c.getJSON(ctx, "/channels", &channels); err != nil {
		return nil, fmt.Errorf("fetching channels: %w", err)
	}
	return channels, nil
}

// GetProgram fetches a single program by id.
func (c *Client) GetProgram(ctx context.Context, id int64) (models.Program, error) {
	var program models.Program
	if err := c.getJSON(ctx, fmt.Sprintf("/programs/%d", id), &program); err != nil {
		return models.Program{}, fmt.Errorf("fetching program %d: %w", id, err)
	}
	return program, nil
}

// OpenProgramStream opens the per-program MPEG-TS byte stream. The
// caller owns the returned ReadCloser.
func (c *Client) OpenProgramStream(ctx context.Context, id int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(fmt.Sprintf("/programs/%d/stream", id)), nil)
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opening program stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("program stream returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// StreamEvents subscribes to the NDJSON resource event feed, filtered to
// program events. Each line is decoded on its own goroutine-fed channel;
// a malformed line sends to errs and ends the subscription, matching the
// parse-error-breaks-inner-loop contract.
func (c *Client) StreamEvents(ctx context.Context) (<-chan epgsync.Event, <-chan error) {
	events := make(chan epgsync.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/events?resource=programs"), nil)
		if err != nil {
			errs <- fmt.Errorf("building events request: %w", err)
			return
		}

		resp, err := c.http.DoWithContext(ctx, req)
		if err != nil {
			errs <- fmt.Errorf("opening event stream: %w", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			// Occasional framing lines ("[", "]", ",") must be skipped.
			if line == "" || line == "[" || line == "]" || line == "," {
				continue
			}

			var ev epgsync.Event
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				errs <- fmt.Errorf("parsing event line: %w", err)
				return
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("reading event stream: %w", err)
		}
	}()

	return events, errs
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

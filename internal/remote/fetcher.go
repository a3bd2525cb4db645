// SPDX-License-Identifier: MIT
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	applog "pulse/internal/log"
	"pulse/internal/observe"
	"pulse/internal/playback"
)

// Fetch payload formats.
const (
	FormatWAV     = "wav"
	FormatSamples = "samples"
)

// maxClipBytes bounds a fetched response body.
const maxClipBytes = 64 << 20

// Sink receives fetched clips.
type Sink interface {
	Enqueue(clip *playback.Clip) error
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	URL      string
	Method   string // GET or POST.
	Format   string // wav or samples.
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Metrics  *observe.Metrics
	// Alive reports whether the owner still wants clips. A response that
	// lands after it turns false is dropped. Nil means always alive.
	Alive func() bool
}

// Fetcher polls the backend on a fixed interval and hands each decoded clip
// to a Sink.
type Fetcher struct {
	opts   FetcherOptions
	client *http.Client
	sink   Sink
}

// NewFetcher validates opts.
func NewFetcher(opts FetcherOptions, sink Sink) (*Fetcher, error) {
	if opts.URL == "" {
		return nil, errors.New("fetch URL is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("fetch interval must be positive, got %v", opts.Interval)
	}
	opts.Method = strings.ToUpper(opts.Method)
	switch opts.Method {
	case "":
		opts.Method = http.MethodGet
	case http.MethodGet, http.MethodPost:
	default:
		return nil, fmt.Errorf("unsupported fetch method %q", opts.Method)
	}
	switch opts.Format {
	case "":
		opts.Format = FormatWAV
	case FormatWAV, FormatSamples:
	default:
		return nil, fmt.Errorf("unsupported fetch format %q", opts.Format)
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{opts: opts, client: client, sink: sink}, nil
}

// Run polls every Interval until ctx is cancelled. Failed polls are logged
// and the tick is skipped.
func (f *Fetcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	applog.Infof("Fetch: Polling %s %s every %v (%s)", f.opts.Method, f.opts.URL, f.opts.Interval, f.opts.Format)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Fetcher) tick(ctx context.Context) {
	clip, err := f.FetchOnce(ctx)
	if !f.alive(ctx) {
		if clip != nil {
			applog.Debugf("Fetch: Discarding clip %s received after stop", clip.ID)
		}
		return
	}
	if err != nil {
		applog.Warnf("Fetch: %v", err)
		return
	}
	if clip == nil {
		return
	}
	if err := f.sink.Enqueue(clip); err != nil {
		applog.Warnf("Fetch: Could not queue clip %s: %v", clip.ID, err)
	}
}

func (f *Fetcher) alive(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return f.opts.Alive == nil || f.opts.Alive()
}

// FetchOnce performs one request and decodes the clip. It returns nil, nil
// when the backend has nothing to play (204 No Content).
func (f *Fetcher) FetchOnce(ctx context.Context) (*playback.Clip, error) {
	start := time.Now()
	clip, err := f.fetch(ctx)
	elapsed := time.Since(start).Seconds()

	switch {
	case err != nil:
		f.opts.Metrics.RecordFetch(ctx, observe.StatusError, elapsed)
	case clip == nil:
		f.opts.Metrics.RecordFetch(ctx, observe.StatusEmpty, elapsed)
	default:
		f.opts.Metrics.RecordFetch(ctx, observe.StatusOK, elapsed)
	}
	return clip, err
}

func (f *Fetcher) fetch(ctx context.Context) (*playback.Clip, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, f.opts.Method, f.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}
	if f.opts.Format == FormatSamples {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "audio/wav")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, f.opts.Method, f.opts.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading clip: %w", ErrNetwork, err)
	}

	if f.opts.Format == FormatSamples {
		return playback.DecodeSamples(bytes.NewReader(body))
	}
	return playback.DecodeWAV(body)
}

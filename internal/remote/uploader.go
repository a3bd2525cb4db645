// SPDX-License-Identifier: MIT
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pulse/internal/analysis"
	applog "pulse/internal/log"
	"pulse/internal/observe"

	"github.com/klauspost/compress/gzip"
)

// errBodyLimit caps how much of an error response is kept.
const errBodyLimit = 256

// SampleSource is the rolling buffer as seen by the uploader.
type SampleSource interface {
	AppendTo(dst []float32) []float32
	Peak(n int) float32
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	URL              string
	SampleRate       float64
	MinInterval      time.Duration // Ticks closer than this to the last upload are skipped.
	Timeout          time.Duration // Per request; 0 leaves only the caller's context.
	Gzip             bool
	SilenceThreshold float64 // Skip when the newest GateWindow samples peak below this.
	GateWindow       int     // Samples inspected by the silence gate; default 1024.
	Client           *http.Client
	Metrics          *observe.Metrics
}

// Uploader posts the current snapshot and rolling buffer to the backend.
// At most one upload is in flight; failures are logged and not retried.
type Uploader struct {
	opts   UploaderOptions
	client *http.Client
	now    func() time.Time

	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu   sync.Mutex
	last time.Time
}

// NewUploader validates opts.
func NewUploader(opts UploaderOptions) (*Uploader, error) {
	if opts.URL == "" {
		return nil, errors.New("upload URL is required")
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.GateWindow <= 0 {
		opts.GateWindow = 1024
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{opts: opts, client: client, now: time.Now}, nil
}

// Trigger starts an upload in the background and returns true, or returns
// false without blocking when an upload is in flight, the minimum interval
// has not elapsed, or the buffer is below the silence threshold. snap is
// copied before returning.
func (u *Uploader) Trigger(ctx context.Context, snap analysis.Snapshot, src SampleSource) bool {
	if ctx.Err() != nil {
		return false
	}
	if !u.inFlight.CompareAndSwap(false, true) {
		return false
	}

	now := u.now()
	u.mu.Lock()
	due := u.last.IsZero() || now.Sub(u.last) >= u.opts.MinInterval
	u.mu.Unlock()
	if !due {
		u.inFlight.Store(false)
		return false
	}

	if u.opts.SilenceThreshold > 0 && float64(src.Peak(u.opts.GateWindow)) < u.opts.SilenceThreshold {
		u.inFlight.Store(false)
		u.opts.Metrics.RecordUpload(ctx, observe.StatusSkipped)
		return false
	}

	u.mu.Lock()
	u.last = now
	u.mu.Unlock()

	payload := NewPayload(snap, src.AppendTo(nil), u.opts.SampleRate)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer u.inFlight.Store(false)

		err := u.Upload(ctx, payload)
		if ctx.Err() != nil {
			// Session stopped while the request was out.
			return
		}
		if err != nil {
			applog.Warnf("Upload: %v", err)
			return
		}
		applog.Debugf("Upload: Sent %d bins and %d bytes of audio", len(payload.FrequencyData), len(payload.AudioBuffer))
	}()
	return true
}

// Upload posts one payload synchronously.
func (u *Uploader) Upload(ctx context.Context, p Payload) error {
	body, err := u.encode(p)
	if err != nil {
		u.opts.Metrics.RecordUpload(ctx, observe.StatusError)
		return err
	}

	if u.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.URL, bytes.NewReader(body))
	if err != nil {
		u.opts.Metrics.RecordUpload(ctx, observe.StatusError)
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.opts.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.opts.Metrics.RecordUpload(ctx, observe.StatusError)
		return fmt.Errorf("%w: POST %s: %w", ErrNetwork, u.opts.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		u.opts.Metrics.RecordUpload(ctx, observe.StatusError)
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	u.opts.Metrics.RecordUpload(ctx, observe.StatusOK)
	return nil
}

// Wait blocks until the in-flight upload, if any, has finished.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

func (u *Uploader) encode(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	var w io.Writer = &buf
	var zw *gzip.Writer
	if u.opts.Gzip {
		zw = gzip.NewWriter(&buf)
		w = zw
	}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode upload payload: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress upload payload: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func statusError(resp *http.Response) *HTTPStatusError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	_, _ = io.Copy(io.Discard, resp.Body)
	return &HTTPStatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

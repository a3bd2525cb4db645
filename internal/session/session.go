// SPDX-License-Identifier: MIT

// Package session owns every component of one visualizer run: capture,
// analysis, rendering, snapshot publishing, uploads, fetching and playback.
// A Session is started once and stopped once; Stop releases everything
// Start created.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"pulse/internal/analysis"
	"pulse/internal/audio"
	"pulse/internal/config"
	applog "pulse/internal/log"
	"pulse/internal/observe"
	"pulse/internal/playback"
	"pulse/internal/remote"
	"pulse/internal/render"
	"pulse/internal/transport"
	"pulse/internal/transport/udp"

	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrStopped        = errors.New("session stopped")
)

// Options supplies the parts a caller may want to replace. Nil fields are
// built from the configuration on PortAudio.
type Options struct {
	Source     audio.Source
	Output     playback.Output
	Metrics    *observe.Metrics
	HTTPClient *http.Client
	// Transports receive every snapshot in addition to those enabled in
	// the transport section of the configuration.
	Transports []transport.Transport
}

// Session is one capture-to-playback run.
type Session struct {
	cfg  config.Config
	opts Options

	analyzer *analysis.Analyzer
	rolling  *analysis.RollingBuffer
	layout   *render.Layout

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	paActive bool

	alive atomic.Bool
	ticks atomic.Uint64

	errOnce sync.Once
	err     atomic.Pointer[error]

	source    audio.Source
	recorder  atomic.Pointer[audio.Recorder]
	queue     *playback.Queue
	uploader  *remote.Uploader
	fetcher   *remote.Fetcher
	publisher *udp.Publisher
	sinks     *transport.Multi
	dumper    *render.FrameDumper
}

// New validates cfg and builds the analysis and layout stages. No device or
// network resource is touched until Start.
func New(cfg config.Config, opts Options) (*Session, error) {
	window, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(analysis.Options{
		FFTSize:     cfg.Analysis.FFTSize,
		SampleRate:  cfg.Audio.SampleRate,
		Window:      window,
		Smoothing:   cfg.Analysis.Smoothing,
		MinDecibels: cfg.Analysis.MinDecibels,
		MaxDecibels: cfg.Analysis.MaxDecibels,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	layout, err := render.NewLayout(cfg.Render.Bars, analyzer.Bins(), cfg.Render.Width, cfg.Render.Height,
		cfg.Render.MaxHeightFraction, cfg.Render.MinHeightFraction)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if cfg.Render.FPS <= 0 {
		return nil, fmt.Errorf("render: fps must be positive, got %d", cfg.Render.FPS)
	}

	return &Session{
		cfg:      cfg,
		opts:     opts,
		analyzer: analyzer,
		rolling:  analysis.NewSecondBuffer(cfg.Audio.SampleRate),
		layout:   layout,
	}, nil
}

// Start acquires the devices and launches the loops. A capture failure does
// not fail Start: it is recorded in Err and the capture-driven stages stay
// off while fetching and playback run. Errors are returned only for
// configuration that cannot work at all.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if s.opts.Source == nil || (s.cfg.Playback.Enabled && s.opts.Output == nil) {
		if err := audio.Initialize(); err != nil {
			return err
		}
		s.paActive = true
	}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)
	s.alive.Store(true)

	if err := s.startPlayback(runCtx); err != nil {
		return err
	}

	s.source = s.opts.Source
	if s.source == nil {
		s.source = audio.NewCapture(audio.CaptureOptions{
			Device:          s.cfg.Audio.InputDevice,
			SampleRate:      s.cfg.Audio.SampleRate,
			FramesPerBuffer: s.cfg.Audio.FramesPerBuffer,
			LowLatency:      s.cfg.Audio.LowLatency,
		})
	}

	if err := s.source.Start(s.onFrame); err != nil {
		s.setErr(err)
		applog.Errorf("Session: Capture unavailable, visualizer disabled: %v", err)
		s.started = true
		return nil
	}

	if err := s.startCaptureStages(runCtx); err != nil {
		return err
	}
	s.started = true
	applog.Infof("Session: Started (%d bars at %d fps)", s.cfg.Render.Bars, s.cfg.Render.FPS)
	return nil
}

// startPlayback builds the queue and the fetcher feeding it.
func (s *Session) startPlayback(ctx context.Context) error {
	if s.cfg.Playback.Enabled {
		out := s.opts.Output
		if out == nil {
			out = audio.NewSpeaker(audio.SpeakerOptions{
				Device:          s.cfg.Audio.OutputDevice,
				FramesPerBuffer: s.cfg.Playback.FramesPerBuffer,
			})
		}
		s.queue = playback.NewQueue(out, playback.Options{
			MaxQueue: s.cfg.Playback.MaxQueue,
			Metrics:  s.opts.Metrics,
		})
	}

	if !s.cfg.Fetch.Enabled {
		return nil
	}
	if s.queue == nil {
		applog.Warnf("Session: Fetch enabled but playback disabled, not polling")
		return nil
	}
	f, err := remote.NewFetcher(remote.FetcherOptions{
		URL:      s.cfg.Fetch.URL,
		Method:   s.cfg.Fetch.Method,
		Format:   s.cfg.Fetch.Format,
		Interval: s.cfg.Fetch.Interval,
		Timeout:  s.cfg.Fetch.Timeout,
		Client:   s.opts.HTTPClient,
		Metrics:  s.opts.Metrics,
		Alive:    s.alive.Load,
	}, s.queue)
	if err != nil {
		return err
	}
	s.fetcher = f
	s.group.Go(func() error { return f.Run(ctx) })
	return nil
}

// startCaptureStages runs once capture is delivering frames. Frames that
// arrive before the recorder is open are not recorded.
func (s *Session) startCaptureStages(ctx context.Context) error {
	if s.cfg.Recording.Enabled {
		rec, err := audio.NewRecorder(s.cfg.Recording.OutputDir, s.cfg.Audio.SampleRate,
			s.cfg.Audio.FramesPerBuffer, s.cfg.Recording.BitDepth)
		if err != nil {
			return err
		}
		s.recorder.Store(rec)
	}

	if s.cfg.Upload.Enabled {
		u, err := remote.NewUploader(remote.UploaderOptions{
			URL:              s.cfg.Upload.URL,
			SampleRate:       s.cfg.Audio.SampleRate,
			MinInterval:      s.cfg.Upload.MinInterval,
			Timeout:          s.cfg.Upload.Timeout,
			Gzip:             s.cfg.Upload.Gzip,
			SilenceThreshold: s.cfg.Upload.SilenceThreshold,
			GateWindow:       s.cfg.Audio.FramesPerBuffer,
			Client:           s.opts.HTTPClient,
			Metrics:          s.opts.Metrics,
		})
		if err != nil {
			return err
		}
		s.uploader = u
	}

	if s.cfg.Render.FrameDir != "" {
		d, err := render.NewFrameDumper(render.NewRasterizer(s.layout), s.cfg.Render.FrameDir, s.cfg.Render.FrameEvery)
		if err != nil {
			return err
		}
		s.dumper = d
	}

	sinks := append([]transport.Transport(nil), s.opts.Transports...)
	tc := s.cfg.Transport
	if tc.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(tc.WebSocketAddress, tc.WebSocketMinInterval)
		ws.SetBandMeter(analysis.NewBandMeter(analysis.DefaultBands, s.analyzer.Bins(), s.analyzer.FrequencyForBin))
		if err := ws.Start(); err != nil {
			_ = ws.Close()
			return err
		}
		sinks = append(sinks, ws)
	}
	if tc.LogSnapshots {
		sinks = append(sinks, transport.NewLoggingTransport(s.cfg.Render.FPS))
	}
	s.sinks = transport.NewMulti(sinks...)

	if tc.UDPEnabled {
		sender, err := udp.NewUDPSender(tc.UDPTargetAddress)
		if err != nil {
			return err
		}
		pub, err := udp.NewPublisher(tc.UDPSendInterval, sender, s.analyzer)
		if err != nil {
			_ = sender.Close()
			return err
		}
		pub.Start()
		s.publisher = pub
	}

	s.group.Go(func() error { return s.renderLoop(ctx) })
	return nil
}

// onFrame is the capture callback.
func (s *Session) onFrame(frame []float32) {
	s.analyzer.Write(frame)
	s.rolling.Write(frame)
	if rec := s.recorder.Load(); rec != nil {
		rec.Write(frame)
	}
}

// renderLoop is the per-frame tick: analyze, lay out, publish, upload.
func (s *Session) renderLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.Render.FPS))
	defer ticker.Stop()

	snap := make(analysis.Snapshot, s.analyzer.Bins())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		s.analyzer.Snapshot(snap)
		if s.dumper != nil {
			s.dumper.Frame(snap)
		}
		if err := s.sinks.Send(snap); err != nil {
			applog.Debugf("Session: Publishing snapshot: %v", err)
		}
		if s.uploader != nil {
			s.uploader.Trigger(ctx, snap, s.rolling)
		}
		s.ticks.Add(1)
	}
}

// Stop cancels every loop, waits for them and releases the devices. It is
// safe to call more than once and before Start.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		s.stopped = true
		return nil
	}
	s.stopped = true
	err := s.release()
	applog.Infof("Session: Stopped after %d ticks", s.ticks.Load())
	return err
}

// release tears down whatever Start managed to create. Callers hold mu.
func (s *Session) release() error {
	s.alive.Store(false)
	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	if s.source != nil {
		errs = append(errs, s.source.Close())
	}
	if s.group != nil {
		errs = append(errs, s.group.Wait())
	}
	if s.uploader != nil {
		s.uploader.Wait()
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.sinks != nil {
		errs = append(errs, s.sinks.Close())
	}
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if rec := s.recorder.Load(); rec != nil {
		errs = append(errs, rec.Close())
	}
	s.rolling.Clear()
	if s.paActive {
		errs = append(errs, audio.Terminate())
		s.paActive = false
	}
	return errors.Join(errs...)
}

func (s *Session) setErr(err error) {
	s.errOnce.Do(func() { s.err.Store(&err) })
}

// Err returns the capture failure that disabled the visualizer, if any.
func (s *Session) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Running reports whether the session is between Start and Stop.
func (s *Session) Running() bool {
	return s.alive.Load()
}

// Ticks returns how many render ticks have run.
func (s *Session) Ticks() uint64 {
	return s.ticks.Load()
}

// LatestInto copies the last snapshot into dst.
func (s *Session) LatestInto(dst analysis.Snapshot) int {
	return s.analyzer.LatestInto(dst)
}

// Bins returns the snapshot length.
func (s *Session) Bins() int {
	return s.analyzer.Bins()
}

// Snapshot returns a copy of the last snapshot.
func (s *Session) Snapshot() analysis.Snapshot {
	snap := make(analysis.Snapshot, s.analyzer.Bins())
	s.analyzer.LatestInto(snap)
	return snap
}

// Layout returns the bar layout used by the render loop.
func (s *Session) Layout() *render.Layout {
	return s.layout
}

// QueueLen returns the number of clips waiting to play.
func (s *Session) QueueLen() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// Status is a one-line summary for the terminal view.
func (s *Session) Status() string {
	if err := s.Err(); err != nil {
		return fmt.Sprintf("capture unavailable: %v", err)
	}
	if s.queue == nil {
		return fmt.Sprintf("ticks %d | playback off", s.Ticks())
	}
	return fmt.Sprintf("ticks %d | playback %s | queued %d", s.Ticks(), s.queue.State(), s.queue.Len())
}

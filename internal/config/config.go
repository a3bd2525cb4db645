// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the capture, analysis and playback pipeline.
const (
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 1024        // Capture frame size
	DefaultChannels        = 1           // Mono capture

	DefaultFFTSize     = 32 // 16 frequency bins
	DefaultWindow      = "Blackman"
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0

	DefaultBars              = 5
	DefaultFPS               = 60
	DefaultCanvasWidth       = 500
	DefaultCanvasHeight      = 300
	DefaultMaxHeightFraction = 0.75
	DefaultMinHeightFraction = 1.0 / 20

	DefaultUploadURL         = "http://127.0.0.1:5000/frequency-data"
	DefaultUploadMinInterval = time.Second
	DefaultUploadTimeout     = 5 * time.Second

	DefaultFetchURL      = "http://127.0.0.1:5000/audio"
	DefaultFetchMethod   = "GET"
	DefaultFetchFormat   = FetchFormatWAV
	DefaultFetchInterval = 5 * time.Second
	DefaultFetchTimeout  = 10 * time.Second

	DefaultServerAddress = ":5000"
	DefaultMetricsAddr   = ":9464"

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MinFFTSize    = 32     // Smallest transform window
	MaxFFTSize    = 32768  // Largest transform window
	MaxBufferSize = 8192   // Maximum frames per buffer
)

// Fetch payload formats.
const (
	FetchFormatWAV     = "wav"     // Raw WAV body
	FetchFormatSamples = "samples" // JSON {"audio": [...], "sampleRate": N}
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	Log       LogConfig       `yaml:"log"`       // Log level and file rotation.
	Audio     AudioConfig     `yaml:"audio"`     // Capture and output devices.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Frequency analyzer.
	Render    RenderConfig    `yaml:"render"`    // Bar visualizer.
	Upload    UploadConfig    `yaml:"upload"`    // Remote audio uploader.
	Fetch     FetchConfig     `yaml:"fetch"`     // Remote audio fetcher.
	Playback  PlaybackConfig  `yaml:"playback"`  // Playback queue and speaker.
	Transport TransportConfig `yaml:"transport"` // Snapshot publishing.
	Recording RecordingConfig `yaml:"recording"` // WAV recording of the capture.
	Server    ServerConfig    `yaml:"server"`    // Receiver backend (pulse serve).
	Metrics   MetricsConfig   `yaml:"metrics"`   // Prometheus endpoint.
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `yaml:"level"`        // debug, info, warn, error.
	File       string `yaml:"file"`         // Rotating log file; empty logs to stderr.
	MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this size.
	MaxBackups int    `yaml:"max_backups"`  // Rotated files kept.
	MaxAgeDays int    `yaml:"max_age_days"` // Rotated files removed after this age.
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for capture (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for playback (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Capture sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Samples per capture frame.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
}

// AnalysisConfig holds the frequency analyzer settings.
type AnalysisConfig struct {
	FFTSize     int     `yaml:"fft_size"`     // Transform window, power of 2; bins = fft_size/2.
	Window      string  `yaml:"window"`       // Window function name (Blackman, Hann, ...).
	Smoothing   float64 `yaml:"smoothing"`    // Time smoothing constant in [0, 1).
	MinDecibels float64 `yaml:"min_decibels"` // Magnitude mapped to 0.
	MaxDecibels float64 `yaml:"max_decibels"` // Magnitude mapped to 255.
}

// RenderConfig holds the bar renderer settings.
type RenderConfig struct {
	Bars              int     `yaml:"bars"`                // Number of bars drawn.
	FPS               int     `yaml:"fps"`                 // Redraw rate of the analysis/render loop.
	Width             int     `yaml:"width"`               // Canvas width in pixels.
	Height            int     `yaml:"height"`              // Canvas height in pixels.
	MaxHeightFraction float64 `yaml:"max_height_fraction"` // Bar height at magnitude 255, as a fraction of height.
	MinHeightFraction float64 `yaml:"min_height_fraction"` // Smallest visible bar, as a fraction of height.
	TUI               bool    `yaml:"tui"`                 // Draw bars in the terminal.
	FrameDir          string  `yaml:"frame_dir"`           // Write PNG frames here when set.
	FrameEvery        int     `yaml:"frame_every"`         // Write one PNG every N ticks.
}

// UploadConfig holds settings for the remote audio uploader.
type UploadConfig struct {
	Enabled          bool          `yaml:"enabled"`           // Send the rolling buffer to URL.
	URL              string        `yaml:"url"`               // Upload endpoint.
	MinInterval      time.Duration `yaml:"min_interval"`      // Minimum time between uploads.
	Timeout          time.Duration `yaml:"timeout"`           // Per-request timeout.
	Gzip             bool          `yaml:"gzip"`              // Compress the JSON body.
	SilenceThreshold float64       `yaml:"silence_threshold"` // Skip uploads quieter than this peak (0 disables).
}

// FetchConfig holds settings for the remote audio fetcher.
type FetchConfig struct {
	Enabled  bool          `yaml:"enabled"`  // Poll URL for clips.
	URL      string        `yaml:"url"`      // Fetch endpoint.
	Method   string        `yaml:"method"`   // GET or POST.
	Format   string        `yaml:"format"`   // wav or samples.
	Interval time.Duration `yaml:"interval"` // Poll interval.
	Timeout  time.Duration `yaml:"timeout"`  // Per-request timeout.
}

// PlaybackConfig holds settings for the playback queue and speaker.
type PlaybackConfig struct {
	Enabled         bool `yaml:"enabled"`           // Play fetched clips.
	FramesPerBuffer int  `yaml:"frames_per_buffer"` // Output buffer size.
	MaxQueue        int  `yaml:"max_queue"`         // Drop new clips beyond this depth (0 for unlimited).
}

// TransportConfig holds settings related to publishing snapshots to scene clients.
type TransportConfig struct {
	WebSocketEnabled     bool          `yaml:"websocket_enabled"`      // Serve snapshots on /ws.
	WebSocketAddress     string        `yaml:"websocket_address"`      // Listen address for the WebSocket server.
	WebSocketMinInterval time.Duration `yaml:"websocket_min_interval"` // Minimum time between broadcasts.
	UDPEnabled           bool          `yaml:"udp_enabled"`            // Send snapshots over UDP.
	UDPTargetAddress     string        `yaml:"udp_target_address"`     // Target address for UDP packets (e.g. "127.0.0.1:9090").
	UDPSendInterval      time.Duration `yaml:"udp_send_interval"`      // Interval between UDP packets.
	LogSnapshots         bool          `yaml:"log_snapshots"`          // Log each snapshot at debug level.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the capture to a WAV file.
	OutputDir string `yaml:"output_dir"` // Directory for recordings.
	BitDepth  int    `yaml:"bit_depth"`  // 16 or 32.
}

// ServerConfig holds settings for the receiver backend.
type ServerConfig struct {
	Address      string `yaml:"address"`        // Listen address.
	ClipDir      string `yaml:"clip_dir"`       // WAV clips served by /audio.
	ArchiveDir   string `yaml:"archive_dir"`    // Store received uploads as WAV when set.
	CacheSize    int    `yaml:"cache_size"`     // Decoded clips kept in memory.
	MaxBodyBytes int64  `yaml:"max_body_bytes"` // Upload size limit.
}

// MetricsConfig holds settings for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Serve /metrics.
	Address string `yaml:"address"` // Listen address for the metrics server.
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Analysis: AnalysisConfig{
			FFTSize:     DefaultFFTSize,
			Window:      DefaultWindow,
			Smoothing:   DefaultSmoothing,
			MinDecibels: DefaultMinDecibels,
			MaxDecibels: DefaultMaxDecibels,
		},
		Render: RenderConfig{
			Bars:              DefaultBars,
			FPS:               DefaultFPS,
			Width:             DefaultCanvasWidth,
			Height:            DefaultCanvasHeight,
			MaxHeightFraction: DefaultMaxHeightFraction,
			MinHeightFraction: DefaultMinHeightFraction,
			FrameEvery:        DefaultFPS,
		},
		Upload: UploadConfig{
			URL:         DefaultUploadURL,
			MinInterval: DefaultUploadMinInterval,
			Timeout:     DefaultUploadTimeout,
		},
		Fetch: FetchConfig{
			URL:      DefaultFetchURL,
			Method:   DefaultFetchMethod,
			Format:   DefaultFetchFormat,
			Interval: DefaultFetchInterval,
			Timeout:  DefaultFetchTimeout,
		},
		Playback: PlaybackConfig{
			Enabled:         true,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Transport: TransportConfig{
			WebSocketAddress:     ":8080",
			WebSocketMinInterval: 16 * time.Millisecond,
			UDPTargetAddress:     "127.0.0.1:9090",
			UDPSendInterval:      33 * time.Millisecond, // ~30Hz
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Server: ServerConfig{
			Address:      DefaultServerAddress,
			ClipDir:      "./clips",
			CacheSize:    16,
			MaxBodyBytes: 32 << 20,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddr,
		},
	}
}

// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	applog "pulse/internal/log"
	"pulse/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"pulse.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the limits of every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Audio.InputDevice < MinDeviceID || c.Audio.OutputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio devices must be >= %d", MinDeviceID))
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate))
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferSize {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d outside (0, %d]", c.Audio.FramesPerBuffer, MaxBufferSize))
	}

	if !bitint.IsPowerOfTwo(c.Analysis.FFTSize) || c.Analysis.FFTSize < MinFFTSize || c.Analysis.FFTSize > MaxFFTSize {
		errs = append(errs, fmt.Errorf("analysis.fft_size %d must be a power of 2 in [%d, %d]", c.Analysis.FFTSize, MinFFTSize, MaxFFTSize))
	}
	if c.Analysis.Smoothing < 0 || c.Analysis.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("analysis.smoothing %.2f outside [0, 1)", c.Analysis.Smoothing))
	}
	if c.Analysis.MinDecibels >= c.Analysis.MaxDecibels {
		errs = append(errs, errors.New("analysis.min_decibels must be below analysis.max_decibels"))
	}

	if bins := c.Analysis.FFTSize / 2; c.Render.Bars <= 0 || c.Render.Bars > bins {
		errs = append(errs, fmt.Errorf("render.bars %d outside [1, %d]", c.Render.Bars, bins))
	}
	if c.Render.FPS <= 0 {
		errs = append(errs, errors.New("render.fps must be positive"))
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		errs = append(errs, errors.New("render.width and render.height must be positive"))
	}
	if c.Render.MaxHeightFraction <= 0 || c.Render.MaxHeightFraction > 1 ||
		c.Render.MinHeightFraction < 0 || c.Render.MinHeightFraction > c.Render.MaxHeightFraction {
		errs = append(errs, errors.New("render height fractions must satisfy 0 <= min <= max <= 1"))
	}

	if c.Upload.Enabled {
		if err := validateURL("upload.url", c.Upload.URL); err != nil {
			errs = append(errs, err)
		}
		if c.Upload.Timeout <= 0 {
			errs = append(errs, errors.New("upload.timeout must be positive"))
		}
	}
	if c.Fetch.Enabled {
		if err := validateURL("fetch.url", c.Fetch.URL); err != nil {
			errs = append(errs, err)
		}
		if c.Fetch.Interval <= 0 || c.Fetch.Timeout <= 0 {
			errs = append(errs, errors.New("fetch.interval and fetch.timeout must be positive"))
		}
		switch strings.ToUpper(c.Fetch.Method) {
		case "GET", "POST":
		default:
			errs = append(errs, fmt.Errorf("fetch.method %q must be GET or POST", c.Fetch.Method))
		}
		switch c.Fetch.Format {
		case FetchFormatWAV, FetchFormatSamples:
		default:
			errs = append(errs, fmt.Errorf("fetch.format %q must be %q or %q", c.Fetch.Format, FetchFormatWAV, FetchFormatSamples))
		}
	}
	if c.Playback.FramesPerBuffer <= 0 || c.Playback.MaxQueue < 0 {
		errs = append(errs, errors.New("playback.frames_per_buffer must be positive and playback.max_queue non-negative"))
	}

	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" || !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 32 {
		errs = append(errs, fmt.Errorf("recording.bit_depth %d must be 16 or 32", c.Recording.BitDepth))
	}

	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s %q must be an http(s) URL", field, raw)
	}
	return nil
}

// applyEnvOverrides reads ENV_* variables so endpoints can be changed
// without editing the config file.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.Log.Level = val
		applog.Infof("configuration: Overriding log.level from env: %s", val)
	}

	// ENV_UPLOAD_{...}
	if val, ok := os.LookupEnv("ENV_UPLOAD_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Upload.Enabled = bVal
			applog.Infof("configuration: Overriding upload.enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UPLOAD_URL"); ok {
		cfg.Upload.URL = val
		applog.Infof("configuration: Overriding upload.url from env: %s", val)
	}

	// ENV_FETCH_{...}
	if val, ok := os.LookupEnv("ENV_FETCH_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Fetch.Enabled = bVal
			applog.Infof("configuration: Overriding fetch.enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_FETCH_URL"); ok {
		cfg.Fetch.URL = val
		applog.Infof("configuration: Overriding fetch.url from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_FETCH_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Fetch.Interval = dur
			applog.Infof("configuration: Overriding fetch.interval from env: %s", dur)
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

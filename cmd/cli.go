// SPDX-License-Identifier: MIT

// Package cmd wires the cobra command tree: `pulse` runs a visualizer
// session, `pulse devices` lists audio devices and `pulse serve` runs the
// receiver backend.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"pulse/internal/audio"
	"pulse/internal/config"
	applog "pulse/internal/log"
	"pulse/internal/observe"
	"pulse/internal/server"
	"pulse/internal/session"
	"pulse/internal/tui"
	"pulse/pkg/build"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// options holds the flag values. Flags only override the configuration file
// when they were set on the command line.
type options struct {
	configPath string
	verbose    bool

	device          int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	record          bool
	outputDir       string
	bars            int
	tui             bool
	frameDir        string
	uploadURL       string
	fetchURL        string
	fetchFormat     string
	noPlayback      bool
	metrics         bool

	interactive bool

	address    string
	clipDir    string
	archiveDir string
}

// Execute runs the command tree until ctx is cancelled or the command ends.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand(&options{})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(opts *options) *cobra.Command {
	info := build.GetBuildInfo()

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			defer applog.Close()
			return runSession(cmd.Context(), cfg)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Configuration file (default: ./config.yaml or ./pulse.yaml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose output")

	// Capture
	f := rootCmd.Flags()
	f.IntVarP(&opts.device, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'devices' command to see available devices.")
	f.Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	f.IntVarP(&opts.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	f.BoolVarP(&opts.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Recording
	f.BoolVarP(&opts.record, "record", "r", false, "Record the input device to a WAV file")
	f.StringVarP(&opts.outputDir, "output", "o", "", "Directory for recordings")

	// Rendering
	f.IntVar(&opts.bars, "bars", config.DefaultBars, "Number of bars drawn")
	f.BoolVarP(&opts.tui, "tui", "t", false, "Draw the bars in the terminal")
	f.StringVar(&opts.frameDir, "frames", "", "Write PNG frames of the bars to this directory")

	// Remote
	f.StringVar(&opts.uploadURL, "upload", "", "Enable uploads to this URL")
	f.StringVar(&opts.fetchURL, "fetch", "", "Enable fetching clips from this URL")
	f.StringVar(&opts.fetchFormat, "fetch-format", config.DefaultFetchFormat, "Fetched clip format: wav or samples")
	f.BoolVar(&opts.noPlayback, "no-playback", false, "Do not play fetched clips")
	f.BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics")

	rootCmd.AddCommand(newDevicesCommand(opts), newServeCommand(opts))
	return rootCmd
}

func newDevicesCommand(opts *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if !opts.interactive {
				return audio.ListDevices(cmd.OutOrStdout())
			}
			sel, ok, err := tui.PickDevice(audio.HostDevices)
			if err != nil || !ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %q. Run: %s --device %d --sample-rate %.0f\n",
				sel.Device.Name, cmd.Root().Name(), sel.Device.ID, sel.SampleRate)
			return nil
		},
	}
	c.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Pick a device in a terminal UI")
	return c
}

func newServeCommand(opts *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the receiver backend for uploads and clips",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			defer applog.Close()
			return runServer(cmd.Context(), cfg)
		},
	}
	f := c.Flags()
	f.StringVarP(&opts.address, "address", "a", config.DefaultServerAddress, "Listen address")
	f.StringVar(&opts.clipDir, "clips", "", "Directory of WAV clips served on /audio")
	f.StringVar(&opts.archiveDir, "archive", "", "Store uploads as WAV files in this directory")
	return c
}

// loadConfig reads the configuration file, applies the flags that were set
// and configures logging.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	if cfg.Debug {
		level = "debug"
	}
	if err := applog.Configure(level, applog.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		applog.Warnf("Config: %v", err)
	}
	return cfg, nil
}

// apply copies every flag the user set into cfg.
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed

	if o.verbose {
		cfg.Debug = true
	}
	if set("device") {
		cfg.Audio.InputDevice = o.device
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = o.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = o.lowLatency
	}
	if set("record") {
		cfg.Recording.Enabled = o.record
	}
	if set("output") {
		cfg.Recording.OutputDir = o.outputDir
	}
	if set("bars") {
		cfg.Render.Bars = o.bars
	}
	if set("tui") {
		cfg.Render.TUI = o.tui
	}
	if set("frames") {
		cfg.Render.FrameDir = o.frameDir
	}
	if set("upload") {
		cfg.Upload.Enabled = true
		cfg.Upload.URL = o.uploadURL
	}
	if set("fetch") {
		cfg.Fetch.Enabled = true
		cfg.Fetch.URL = o.fetchURL
	}
	if set("fetch-format") {
		cfg.Fetch.Format = o.fetchFormat
	}
	if set("no-playback") {
		cfg.Playback.Enabled = !o.noPlayback
	}
	if set("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if set("address") {
		cfg.Server.Address = o.address
	}
	if set("clips") {
		cfg.Server.ClipDir = o.clipDir
	}
	if set("archive") {
		cfg.Server.ArchiveDir = o.archiveDir
	}
}

// startMetrics installs the Prometheus exporter when enabled. The returned
// Metrics is nil otherwise, which every recorder accepts.
func startMetrics(ctx context.Context, g *errgroup.Group, cfg *config.Config, serve bool) (*observe.Metrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	info := build.GetBuildInfo()
	metrics, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    info.Name,
		ServiceVersion: info.Version,
	})
	if err != nil {
		return nil, err
	}
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(context.WithoutCancel(ctx))
	})
	if serve {
		g.Go(func() error { return observe.Serve(ctx, cfg.Metrics.Address) })
	}
	return metrics, nil
}

func runSession(ctx context.Context, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	metrics, err := startMetrics(ctx, g, cfg, true)
	if err != nil {
		return err
	}

	s, err := session.New(*cfg, session.Options{Metrics: metrics})
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Microphone unavailable: %v\nThe visualizer is disabled; fetched clips still play.\n", err)
	}

	g.Go(func() error {
		defer s.Stop()
		if !cfg.Render.TUI {
			<-ctx.Done()
			return nil
		}
		err := tui.RunVisualizer(ctx, s, tui.VisualizerOptions{
			Bars:        cfg.Render.Bars,
			FPS:         cfg.Render.FPS,
			MaxFraction: cfg.Render.MaxHeightFraction,
			MinFraction: cfg.Render.MinHeightFraction,
			Status:      s.Status,
			StatusOnly:  s.Err() != nil,
		})
		if err != nil {
			return err
		}
		// Quitting the terminal view ends the run.
		return context.Canceled
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runServer(ctx context.Context, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	// The backend mounts /metrics itself.
	metrics, err := startMetrics(ctx, g, cfg, false)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg.Server, metrics)
	if err != nil {
		return err
	}
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

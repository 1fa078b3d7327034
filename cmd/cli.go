// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"whisperer/internal/app"
	"whisperer/internal/audio"
	"whisperer/internal/config"
	applog "whisperer/internal/log"
	"whisperer/internal/tui"
	"whisperer/pkg/bitint"
	"whisperer/pkg/build"
)

// options are the command line values. Only flags the user set override
// the configuration file.
type options struct {
	configPath string
	pickDevice bool

	deviceID        int
	sampleRate      float64
	channels        int
	framesPerBuffer int
	lowLatency      bool

	fftSize int

	save        bool
	outputDir   string
	maxDuration int

	serviceURL string
	bridge     bool
	bridgeAddr string
	udp        bool
	udpTarget  string
	noHistory  bool

	verbose  bool
	logLevel string

	local bool
	limit int
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd(os.Stdout).ExecuteContext(context.Background())
}

// NewRootCmd builds the command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runInteractive(cfg, opts)
		},
	}
	rootCmd.SetOut(out)

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available audio devices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return audio.ListDevices(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "analyze <file>",
			Short: "Submit an audio file for diagnosis",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.load(cmd)
				if err != nil {
					return err
				}
				return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Show the vehicle health overview",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.load(cmd)
				if err != nil {
					return err
				}
				return runHealth(cmd.Context(), cmd.OutOrStdout(), cfg)
			},
		},
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past diagnoses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runHistory(cmd.Context(), cmd.OutOrStdout(), cfg, opts.local, opts.limit)
		},
	}
	historyCmd.Flags().BoolVar(&opts.local, "local", false,
		"Read the local history database instead of the service")
	historyCmd.Flags().IntVarP(&opts.limit, "limit", "n", 20,
		"Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)

	rootCmd.Flags().BoolVarP(&opts.pickDevice, "pick-device", "p", false,
		"Choose the input device interactively before starting")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "",
		"Path to the YAML configuration file")

	// Audio Device Configuration
	flags.IntVarP(&opts.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&opts.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to record (1=mono, 2=stereo)")
	flags.Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&opts.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&opts.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Analysis Configuration
	flags.IntVar(&opts.fftSize, "fft-size", config.DefaultFFTSize,
		"FFT points per feature frame, rounded up to a power of 2")

	// Recording Configuration
	flags.BoolVar(&opts.save, "save", false,
		"Also write each recording to the output directory")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", config.DefaultOutputDir,
		"Directory for saved recordings")
	flags.IntVar(&opts.maxDuration, "max-duration", 0,
		"Stop recording automatically after this many seconds (0 for unlimited)")

	// Service and Bridges
	flags.StringVar(&opts.serviceURL, "service-url", config.DefaultServiceURL,
		"Base URL of the analysis service")
	flags.BoolVar(&opts.bridge, "bridge", false,
		"Serve feature frames and events over websocket")
	flags.StringVar(&opts.bridgeAddr, "bridge-addr", config.DefaultHTTPAddr,
		"Listen address of the websocket bridge")
	flags.BoolVar(&opts.udp, "udp", false,
		"Stream feature frames over UDP")
	flags.StringVar(&opts.udpTarget, "udp-target", config.DefaultUDPTargetAddress,
		"host:port receiving UDP feature frames")
	flags.BoolVar(&opts.noHistory, "no-history", false,
		"Do not keep the local diagnosis history")

	// Debug Configuration
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")
	flags.StringVar(&opts.logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")

	return rootCmd
}

// load reads the configuration file and applies the flags the user set.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if set("device") {
		cfg.Audio.InputDevice = o.deviceID
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if set("channels") {
		cfg.Audio.InputChannels = o.channels
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = o.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = o.lowLatency
	}
	if set("fft-size") {
		size := bitint.ClampPowerOfTwo(o.fftSize, config.MinFFTSize, config.MaxFFTSize)
		if size != o.fftSize {
			applog.Warnf("fft size %d adjusted to %d", o.fftSize, size)
		}
		cfg.Analysis.FFTSize = size
	}
	if set("save") {
		cfg.Recording.Save = o.save
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = o.outputDir
	}
	if set("max-duration") {
		cfg.Recording.MaxDuration = o.maxDuration
	}
	if set("service-url") {
		cfg.Service.BaseURL = o.serviceURL
	}
	if set("bridge") {
		cfg.Transport.HTTPEnabled = o.bridge
	}
	if set("bridge-addr") {
		cfg.Transport.HTTPAddr = o.bridgeAddr
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = o.udp
	}
	if set("udp-target") {
		cfg.Transport.UDPTargetAddress = o.udpTarget
	}
	if o.noHistory {
		cfg.History.Enabled = false
	}
	if set("verbose") {
		cfg.Debug = o.verbose
	}
	if set("log-level") {
		cfg.LogLevel = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	applog.Configure(cfg.LogLevel, cfg.Debug)
	return cfg, nil
}

func runInteractive(cfg *config.Config, opts *options) error {
	if opts.pickDevice {
		sel, err := tui.PickDevice(audio.HostDevices)
		if err != nil {
			return err
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
		applog.Infof("using device %d (%s) at %.0f Hz", sel.DeviceID, sel.Name, sel.SampleRate)
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			applog.Warnf("shutdown: %v", err)
		}
	}()
	if err := a.Start(); err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file while it runs.
	if logFile, err := os.Create(logFilePath()); err == nil {
		applog.SetOutput(logFile)
		defer func() {
			applog.SetOutput(os.Stderr)
			logFile.Close()
		}()
	}

	return tui.Run(a, a.Bridge())
}

func logFilePath() string {
	return build.GetBuildFlags().Name + ".log"
}

func runAnalyze(ctx context.Context, out io.Writer, cfg *config.Config, path string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Service.MinDisplayDelay = 0
	cfg.Transport.HTTPEnabled = false
	cfg.Transport.UDPEnabled = false

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.Diagnose(ctx, path)
	if err != nil {
		return err
	}
	printDiagnosis(out, rec)
	return nil
}

func runHealth(ctx context.Context, out io.Writer, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Service.Timeout+5*time.Second)
	defer cancel()

	client := newClient(cfg)
	snap, err := client.HealthOverview(ctx)
	if err != nil {
		return err
	}
	printHealth(out, snap)
	return nil
}

func runHistory(ctx context.Context, out io.Writer, cfg *config.Config, local bool, limit int) error {
	if local {
		return printLocalHistory(ctx, out, cfg.History.Path, limit)
	}

	client := newClient(cfg)
	records, err := client.History(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	printRecords(out, records)
	return nil
}

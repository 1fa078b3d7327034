// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the capture pipeline and its collaborators.
const (
	// Audio device defaults.
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultChannels        = 1           // Mono capture
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode

	// Recording defaults.
	DefaultFormat    = "wav"          // Single fixed container
	DefaultMIMEType  = "audio/wav"    // Tag sent with uploads
	DefaultBitDepth  = 16             // PCM bit depth of the WAV output
	DefaultOutputDir = "./recordings" // Used only when recordings are saved

	// Feature extraction defaults.
	DefaultFFTSize      = 256                   // 128 feature bins per frame
	DefaultFFTWindow    = "Hann"                // Analysis window
	DefaultTickInterval = 16 * time.Millisecond // ~60Hz, one frame per display refresh

	// Particle field defaults.
	DefaultParticleCount = 50
	DefaultDecay         = 0.95
	DefaultMaxRadius     = 12.0
	DefaultCanvasWidth   = 640
	DefaultCanvasHeight  = 200

	// Analysis service defaults.
	DefaultServiceURL      = "http://localhost:8001"
	DefaultServiceTimeout  = 60 * time.Second
	DefaultServiceRetries  = 2
	DefaultMinDisplayDelay = 3 * time.Second

	// Local history defaults.
	DefaultHistoryPath = "whisperer.db"

	// Bridge defaults.
	DefaultHTTPAddr         = "127.0.0.1:8090"
	DefaultWSFrameInterval  = 33 * time.Millisecond // ~30Hz to browser clients
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 16 * time.Millisecond

	// Hardware and processing limits.
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MinFFTSize      = 32
	MaxFFTSize      = 4096
)

// Config represents the main application configuration, loaded from YAML,
// overridden by environment variables and finally by command line flags.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Verbose logging.
	LogLevel  string          `yaml:"log_level"`         // debug, info, warn, error.
	Command   string          `yaml:"command,omitempty"` // One-off command selected on the command line.
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Render    RenderConfig    `yaml:"render"`
	Service   ServiceConfig   `yaml:"service"`
	History   HistoryConfig   `yaml:"history"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds settings related to the capture device.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback; one chunk per callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	InputChannels   int     `yaml:"input_channels"`    // 1 for mono, 2 for stereo.
}

// RecordingConfig holds settings for the encoded recording produced on stop.
type RecordingConfig struct {
	Format      string `yaml:"format"`               // Container, wav only.
	BitDepth    int    `yaml:"bit_depth"`            // 16, 24 or 32.
	Save        bool   `yaml:"save"`                 // Also write each recording to OutputDir.
	OutputDir   string `yaml:"output_dir"`           // Directory for saved recordings.
	MaxDuration int    `yaml:"max_duration_seconds"` // Auto-stop after this many seconds (0 for unlimited).
}

// AnalysisConfig holds the live feature extraction settings.
type AnalysisConfig struct {
	FFTSize      int           `yaml:"fft_size"`      // Power of 2, frames carry FFTSize/2 bins.
	FFTWindow    string        `yaml:"fft_window"`    // Window function name.
	TickInterval time.Duration `yaml:"tick_interval"` // Scheduler cadence shared with the renderer.
}

// RenderConfig holds the particle field settings.
type RenderConfig struct {
	Particles int     `yaml:"particles"`  // Fixed pool size.
	Decay     float64 `yaml:"decay"`      // Activity decay per tick without input, in (0,1).
	MaxRadius float64 `yaml:"max_radius"` // Upper radius clamp.
	Width     int     `yaml:"width"`      // Initial surface width.
	Height    int     `yaml:"height"`     // Initial surface height.
	Seed      uint64  `yaml:"seed"`       // Random seed, 0 for time based.
}

// ServiceConfig holds the analysis service endpoint settings.
type ServiceConfig struct {
	BaseURL         string        `yaml:"base_url"`          // Service root, /api is appended.
	Timeout         time.Duration `yaml:"timeout"`           // Per request timeout.
	Retries         int           `yaml:"retries"`           // Retries for idempotent GETs.
	MinDisplayDelay time.Duration `yaml:"min_display_delay"` // Minimum time before a result is shown.
}

// HistoryConfig holds the local diagnosis history settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite database file.
}

// TransportConfig holds settings for publishing frames and events.
type TransportConfig struct {
	HTTPEnabled      bool          `yaml:"http_enabled"`       // Serve the websocket bridge and state endpoint.
	HTTPAddr         string        `yaml:"http_addr"`          // Listen address for the bridge.
	WSFrameInterval  time.Duration `yaml:"ws_frame_interval"`  // Minimum interval between frame broadcasts.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send feature frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // host:port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
		},
		Recording: RecordingConfig{
			Format:      DefaultFormat,
			BitDepth:    DefaultBitDepth,
			Save:        false,
			OutputDir:   DefaultOutputDir,
			MaxDuration: 0,
		},
		Analysis: AnalysisConfig{
			FFTSize:      DefaultFFTSize,
			FFTWindow:    DefaultFFTWindow,
			TickInterval: DefaultTickInterval,
		},
		Render: RenderConfig{
			Particles: DefaultParticleCount,
			Decay:     DefaultDecay,
			MaxRadius: DefaultMaxRadius,
			Width:     DefaultCanvasWidth,
			Height:    DefaultCanvasHeight,
		},
		Service: ServiceConfig{
			BaseURL:         DefaultServiceURL,
			Timeout:         DefaultServiceTimeout,
			Retries:         DefaultServiceRetries,
			MinDisplayDelay: DefaultMinDisplayDelay,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath,
		},
		Transport: TransportConfig{
			HTTPEnabled:      false,
			HTTPAddr:         DefaultHTTPAddr,
			WSFrameInterval:  DefaultWSFrameInterval,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

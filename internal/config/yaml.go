// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"whisperer/internal/log"
	"whisperer/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// searchPaths are tried in order when no config path is given.
var searchPaths = []string{
	"whisperer.yaml",
	"config.yaml",
}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches the default locations. If no file is found, it uses
// built-in defaults. Environment overrides are applied after the file, then
// the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against the hardware and processing
// limits. It is called after flags are applied as well.
func (c *Config) Validate() error {
	// Audio
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate must be within [%d, %d], got %.0f", MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	}
	if c.Audio.InputChannels < 1 || c.Audio.InputChannels > 2 {
		return fmt.Errorf("audio.input_channels must be 1 or 2, got %d", c.Audio.InputChannels)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer must be a power of 2 <= %d, got %d", MaxBufferFrames, c.Audio.FramesPerBuffer)
	}

	// Recording
	if !strings.EqualFold(c.Recording.Format, DefaultFormat) {
		return fmt.Errorf("recording.format %q is not supported, only %q", c.Recording.Format, DefaultFormat)
	}
	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
	}
	if c.Recording.Save && c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir must be set when recording.save is enabled")
	}
	if c.Recording.MaxDuration < 0 {
		return fmt.Errorf("recording.max_duration_seconds must not be negative")
	}

	// Analysis
	if !bitint.IsPowerOfTwo(c.Analysis.FFTSize) || c.Analysis.FFTSize < MinFFTSize || c.Analysis.FFTSize > MaxFFTSize {
		return fmt.Errorf("analysis.fft_size must be a power of 2 within [%d, %d], got %d", MinFFTSize, MaxFFTSize, c.Analysis.FFTSize)
	}
	if c.Analysis.TickInterval <= 0 {
		return fmt.Errorf("analysis.tick_interval must be positive")
	}

	// Render
	if c.Render.Particles <= 0 {
		return fmt.Errorf("render.particles must be positive, got %d", c.Render.Particles)
	}
	if c.Render.Decay <= 0 || c.Render.Decay >= 1 {
		return fmt.Errorf("render.decay must be within (0, 1), got %g", c.Render.Decay)
	}
	if c.Render.MaxRadius < 1 {
		return fmt.Errorf("render.max_radius must be >= 1, got %g", c.Render.MaxRadius)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render.width and render.height must be positive")
	}

	// Service
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.base_url %q is not an absolute URL", c.Service.BaseURL)
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("service.timeout must be positive")
	}
	if c.Service.Retries < 0 {
		return fmt.Errorf("service.retries must not be negative")
	}
	if c.Service.MinDisplayDelay < 0 {
		return fmt.Errorf("service.min_display_delay must not be negative")
	}

	// History
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path must be set when history is enabled")
	}

	// Transport
	if c.Transport.HTTPEnabled && !strings.Contains(c.Transport.HTTPAddr, ":") {
		return fmt.Errorf("transport.http_addr '%s' appears invalid (missing port?)", c.Transport.HTTPAddr)
	}
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	return nil
}

// applyEnvOverrides applies WHISPERER_* environment variables on top of the
// file or default values. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	// WHISPERER_DEBUG
	if val, ok := os.LookupEnv("WHISPERER_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			log.Infof("configuration: overriding debug from env: %v", bVal)
		}
	}
	// WHISPERER_LOG_LEVEL
	if val, ok := os.LookupEnv("WHISPERER_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: overriding log_level from env: %s", val)
	}
	// WHISPERER_SERVICE_URL
	if val, ok := os.LookupEnv("WHISPERER_SERVICE_URL"); ok {
		c.Service.BaseURL = val
		log.Infof("configuration: overriding service.base_url from env: %s", val)
	}
	// WHISPERER_MIN_DISPLAY_DELAY
	if val, ok := os.LookupEnv("WHISPERER_MIN_DISPLAY_DELAY"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Service.MinDisplayDelay = dur
			log.Infof("configuration: overriding service.min_display_delay from env: %s", dur)
		}
	}
	// WHISPERER_HISTORY_PATH
	if val, ok := os.LookupEnv("WHISPERER_HISTORY_PATH"); ok {
		c.History.Path = val
		log.Infof("configuration: overriding history.path from env: %s", val)
	}

	// WHISPERER_UDP_{...} are specific to the transport layer.

	// WHISPERER_UDP_ENABLED
	if val, ok := os.LookupEnv("WHISPERER_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			log.Infof("configuration: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// WHISPERER_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("WHISPERER_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	// WHISPERER_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("WHISPERER_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			log.Infof("configuration: overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

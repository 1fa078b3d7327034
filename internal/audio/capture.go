// SPDX-License-Identifier: MIT
/*
Package audio owns microphone capture: device discovery, the capture session
state machine and the WAV encoding of finished recordings.

Thread Safety:
  - The device callback only appends chunks and feeds the tap.
  - State is readable without locks; transitions happen under the lifecycle
    mutex so Start, Stop and Close never interleave.
  - A session holds at most one device handle; it is released exactly once
    per Start on every exit path.
*/
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"whisperer/internal/config"
	applog "whisperer/internal/log"
)

var (
	// ErrDeviceUnavailable means permission was denied or no usable input
	// device exists. The caller may retry.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")

	// ErrAlreadyRecording is returned by Start on a session that is
	// already recording. No second device handle is opened.
	ErrAlreadyRecording = errors.New("audio: already recording")
)

// State is the capture session lifecycle state.
type State int32

const (
	Idle State = iota
	Recording
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tap receives every captured buffer while the session is recording.
// Process runs on the device callback thread and must not block. Reset is
// called by Start before the first buffer of each recording.
type Tap interface {
	Process(in []int32)
	Reset()
}

// Recording is the encoded output of one capture session.
type Recording struct {
	Filename  string
	MIMEType  string
	Data      []byte
	StartedAt time.Time
	Duration  time.Duration
	Chunks    int
	Path      string // Set when the recording was also written to disk.
}

// Options configure a Session.
type Options struct {
	DeviceID        int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
	BitDepth        int
	Save            bool
	OutputDir       string

	// OnStateChange is called after every state transition. It must not
	// call back into the session.
	OnStateChange func(State)

	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the audio and recording configuration to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DeviceID:        cfg.Audio.InputDevice,
		Channels:        cfg.Audio.InputChannels,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
		BitDepth:        cfg.Recording.BitDepth,
		Save:            cfg.Recording.Save,
		OutputDir:       cfg.Recording.OutputDir,
	}
}

// Session is one microphone capture owner. A Session can be started again
// after it stopped or failed; each start is a new capture session with a
// fresh chunk list.
type Session struct {
	opener Opener
	opts   Options

	lifecycle sync.Mutex // Serialises Start, Stop and Close.

	mu        sync.Mutex // Protects chunks, samples, tap and startedAt.
	chunks    [][]int32
	samples   int
	tap       Tap
	startedAt time.Time

	state  atomic.Int32
	stream InputStream // Owned by the lifecycle mutex.
}

// NewSession creates an idle session. No device is touched until Start.
func NewSession(opener Opener, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BitDepth == 0 {
		opts.BitDepth = config.DefaultBitDepth
	}
	if opts.Channels <= 0 {
		opts.Channels = config.DefaultChannels
	}
	return &Session{opener: opener, opts: opts}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Recording reports whether the session is capturing.
func (s *Session) Recording() bool {
	return s.State() == Recording
}

// SetTap attaches the consumer of live buffers, replacing any previous one.
func (s *Session) SetTap(t Tap) {
	s.mu.Lock()
	s.tap = t
	s.mu.Unlock()
}

// StartedAt returns the start time of the current or last session.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Elapsed returns how long the current session has been recording, zero
// when not recording.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if !s.Recording() {
		return 0
	}
	return now.Sub(s.StartedAt())
}

// Start acquires the input device and begins recording.
func (s *Session) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == Recording {
		return ErrAlreadyRecording
	}

	params := StreamParams{
		DeviceID:        s.opts.DeviceID,
		Channels:        s.opts.Channels,
		SampleRate:      s.opts.SampleRate,
		FramesPerBuffer: s.opts.FramesPerBuffer,
		LowLatency:      s.opts.LowLatency,
	}
	stream, err := s.opener.Open(params, s.onChunk)
	if err != nil {
		s.setState(Failed)
		applog.Warnf("audio: cannot open input device: %v", err)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	s.chunks = nil
	s.samples = 0
	s.startedAt = s.opts.Now()
	if s.tap != nil {
		s.tap.Reset()
	}
	s.mu.Unlock()

	// Recording before Start so the first buffer is kept.
	s.stream = stream
	s.state.Store(int32(Recording))

	if err := stream.Start(); err != nil {
		s.state.Store(int32(Failed))
		s.stream = nil
		if cerr := stream.Close(); cerr != nil {
			applog.Warnf("audio: release after failed start: %v", cerr)
		}
		s.mu.Lock()
		s.chunks = nil
		s.samples = 0
		s.mu.Unlock()
		s.notify(Failed)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	applog.Infof("audio: recording started (device %d, %.0f Hz, %d ch)",
		s.opts.DeviceID, s.opts.SampleRate, s.opts.Channels)
	s.notify(Recording)
	return nil
}

// onChunk is the device callback. Buffers are copied because the device
// reuses its buffer for the next callback.
func (s *Session) onChunk(in []int32) {
	s.mu.Lock()
	if s.State() != Recording {
		s.mu.Unlock()
		return
	}
	chunk := make([]int32, len(in))
	copy(chunk, in)
	s.chunks = append(s.chunks, chunk)
	s.samples += len(chunk)
	tap := s.tap
	s.mu.Unlock()

	if tap != nil {
		tap.Process(chunk)
	}
}

// Stop ends recording. It returns (nil, nil) when the session is not
// recording. Otherwise the device is released, whatever the encoding
// outcome, and the encoded recording is returned once.
func (s *Session) Stop() (*Recording, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != Recording {
		return nil, nil
	}

	s.mu.Lock()
	s.state.Store(int32(Stopped))
	chunks := s.chunks
	samples := s.samples
	startedAt := s.startedAt
	s.chunks = nil
	s.samples = 0
	s.mu.Unlock()

	stream := s.stream
	s.stream = nil
	defer func() {
		if err := releaseStream(stream); err != nil {
			applog.Warnf("audio: releasing input device: %v", err)
		}
		s.notify(Stopped)
	}()

	data, err := EncodeWAV(chunks, int(s.opts.SampleRate), s.opts.Channels, s.opts.BitDepth)
	if err != nil {
		return nil, fmt.Errorf("encode recording: %w", err)
	}

	rec := &Recording{
		Filename:  RecordingFilename(startedAt),
		MIMEType:  config.DefaultMIMEType,
		Data:      data,
		StartedAt: startedAt,
		Duration:  frameDuration(samples, s.opts.Channels, s.opts.SampleRate),
		Chunks:    len(chunks),
	}

	if s.opts.Save {
		path, err := saveRecording(s.opts.OutputDir, rec)
		if err != nil {
			applog.Warnf("audio: could not save recording: %v", err)
		} else {
			rec.Path = path
		}
	}

	applog.Infof("audio: recording stopped (%d chunks, %s)", rec.Chunks, rec.Duration.Round(time.Millisecond))
	return rec, nil
}

// Close tears the session down. An active recording is stopped and its
// output discarded.
func (s *Session) Close() error {
	if s.State() != Recording {
		return nil
	}
	if _, err := s.Stop(); err != nil {
		applog.Debugf("audio: recording discarded on close: %v", err)
	}
	return nil
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.notify(st)
}

func (s *Session) notify(st State) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

// RecordingFilename generates the output name for a session started at t,
// e.g. recording-18-10-2026-091244.wav.
func RecordingFilename(t time.Time) string {
	return "recording-" + t.UTC().Format("02-01-2006-150405") + "." + config.DefaultFormat
}

func saveRecording(dir string, rec *Recording) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, rec.Filename)
	if err := os.WriteFile(path, rec.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

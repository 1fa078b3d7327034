package audio

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// StreamParams describes the input stream a session asks for.
type StreamParams struct {
	DeviceID        int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// InputStream is an open device handle. Stop halts the callbacks, Close
// releases the device.
type InputStream interface {
	Start() error
	Stop() error
	Close() error
}

// Opener acquires an input device and wires its buffers to callback.
// Implementations must not call callback before Start.
type Opener interface {
	Open(params StreamParams, callback func(in []int32)) (InputStream, error)
}

// PortAudioOpener opens PortAudio input streams. Initialize must have been
// called first.
type PortAudioOpener struct{}

// Open implements Opener.
func (PortAudioOpener) Open(p StreamParams, callback func(in []int32)) (InputStream, error) {
	device, err := InputDevice(p.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if p.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: p.Channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: p.FramesPerBuffer,
		SampleRate:      p.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", device.Name, err)
	}
	return stream, nil
}

// releaseStream stops and closes s, returning the first error.
func releaseStream(s InputStream) error {
	stopErr := s.Stop()
	closeErr := s.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}

// frameDuration converts a sample count to a duration.
func frameDuration(samples, channels int, sampleRate float64) time.Duration {
	if channels <= 0 || sampleRate <= 0 {
		return 0
	}
	frames := float64(samples / channels)
	return time.Duration(frames / sampleRate * float64(time.Second))
}

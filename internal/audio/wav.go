// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavAudioFormat is the RIFF format tag for integer PCM.
const wavAudioFormat = 1

// EncodeWAV concatenates chunks in order and encodes them as a PCM WAV file.
// Samples arrive as full scale int32 and are scaled down to bitDepth. An
// empty chunk list still yields a valid header with no samples.
func EncodeWAV(chunks [][]int32, sampleRate, channels, bitDepth int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: %d Hz, %d channels", sampleRate, channels)
	}
	shift, err := sampleShift(bitDepth)
	if err != nil {
		return nil, err
	}

	out := &memWriteSeeker{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth, channels, wavAudioFormat)

	format := &audio.Format{NumChannels: channels, SampleRate: sampleRate}
	buf := &audio.IntBuffer{Format: format, SourceBitDepth: bitDepth}

	written := false
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		buf.Data = buf.Data[:0]
		for _, s := range chunk {
			buf.Data = append(buf.Data, int(s>>shift))
		}
		if err := enc.Write(buf); err != nil {
			return nil, fmt.Errorf("write wav samples: %w", err)
		}
		written = true
	}

	if !written {
		// The encoder only emits its header on the first write.
		buf.Data = []int{}
		if err := enc.Write(buf); err != nil {
			return nil, fmt.Errorf("write wav header: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

func sampleShift(bitDepth int) (uint, error) {
	switch bitDepth {
	case 16:
		return 16, nil
	case 24:
		return 8, nil
	case 32:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// memWriteSeeker is an in-memory io.WriteSeeker. The wav encoder seeks back
// to patch chunk sizes on Close.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, errors.New("memWriteSeeker: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("memWriteSeeker: negative position")
	}
	m.pos = int(next)
	return next, nil
}

// Bytes returns the written contents.
func (m *memWriteSeeker) Bytes() []byte {
	return m.buf
}

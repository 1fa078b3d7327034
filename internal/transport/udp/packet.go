// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Packet layout, big endian:

	| Sequence (uint32) | Timestamp ns (int64) | Count N (uint16) | N x float32 |

One packet carries one feature frame; values are in [0,1].
*/

// HeaderSize is the fixed part of a packet in bytes.
const HeaderSize = 4 + 8 + 2

// Packet is a decoded frame packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Values    []float32
}

// appendPacket writes one packet into buf, which is reset first. f32 is a
// scratch buffer reused between calls and returned resized.
func appendPacket(buf *bytes.Buffer, f32 []float32, seq uint32, ts int64, values []float64) ([]float32, error) {
	if len(values) > math.MaxUint16 {
		return f32, fmt.Errorf("frame of %d values does not fit a packet", len(values))
	}
	if cap(f32) < len(values) {
		f32 = make([]float32, len(values))
	}
	f32 = f32[:len(values)]
	for i, v := range values {
		f32[i] = float32(v)
	}

	buf.Reset()
	err := binary.Write(buf, binary.BigEndian, seq)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, ts)
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(f32)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, f32)
	}
	return f32, err
}

// DecodePacket parses a packet produced by the publisher.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, errors.New("udp packet shorter than header")
	}
	p := &Packet{
		Seq:       binary.BigEndian.Uint32(data[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:12])),
	}
	n := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) != HeaderSize+4*n {
		return nil, fmt.Errorf("udp packet length %d does not match count %d", len(data), n)
	}
	p.Values = make([]float32, n)
	for i := range p.Values {
		off := HeaderSize + 4*i
		p.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
	}
	return p, nil
}

// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"fractalwave/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Band Count        | uint16         | 2            | Number of floats (N)    |
| Bands             | []float32      | N * 4        | Band levels, low first  |
+-----------------------------------------------------------------------------+

Visual Layout:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |  Band Count   |          Bands          |
|      (uint32)     |        (int64)        |    (uint16)   |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+
*/

// HeaderSize is the fixed part of a packet.
const HeaderSize = 4 + 8 + 2

// MaxBands is the most bands a packet can carry.
const MaxBands = math.MaxUint16

var ErrShortPacket = errors.New("udp: short packet")

// AppendPacket encodes f onto dst.
func AppendPacket(dst []byte, f transport.Frame) ([]byte, error) {
	if len(f.Bands) > MaxBands {
		return dst, fmt.Errorf("udp: %d bands exceed packet limit %d", len(f.Bands), MaxBands)
	}
	dst = binary.BigEndian.AppendUint32(dst, f.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.Timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Bands)))
	for _, v := range f.Bands {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst, nil
}

// ParsePacket decodes a packet produced by AppendPacket.
func ParsePacket(b []byte) (transport.Frame, error) {
	if len(b) < HeaderSize {
		return transport.Frame{}, ErrShortPacket
	}
	f := transport.Frame{
		Seq:       binary.BigEndian.Uint32(b[0:]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:])),
	}
	n := int(binary.BigEndian.Uint16(b[12:]))
	payload := b[HeaderSize:]
	if len(payload) < n*4 {
		return transport.Frame{}, fmt.Errorf("%w: %d bands declared, %d bytes of payload", ErrShortPacket, n, len(payload))
	}
	f.Bands = make([]float32, n)
	for i := range f.Bands {
		f.Bands[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[i*4:]))
	}
	return f, nil
}

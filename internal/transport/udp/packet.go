// SPDX-License-Identifier: MIT

// Package udp streams Frequency Snapshots as fixed-layout binary datagrams.
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
Packet layout (big endian):

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<------ N Bytes ------>|
+-------------------+-----------------------+---------------+-----------------------+
|  Sequence Number  |       Timestamp       |   Bin Count   |      Magnitudes       |
|      (uint32)     |  (int64, Unix nanos)  |    (uint16)   |     (N x uint8)       |
+-------------------+-----------------------+---------------+-----------------------+
*/

// HeaderSize is the fixed prefix before the magnitudes.
const HeaderSize = 4 + 8 + 2

// Packet is one decoded datagram.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Bins      []uint8
}

// AppendPacket encodes p onto dst and returns the extended slice.
func AppendPacket(dst []byte, p Packet) ([]byte, error) {
	if len(p.Bins) > 0xFFFF {
		return dst, fmt.Errorf("too many bins for one packet: %d", len(p.Bins))
	}
	dst = binary.BigEndian.AppendUint32(dst, p.Seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(p.Bins)))
	return append(dst, p.Bins...), nil
}

// ParsePacket decodes a datagram. The returned Bins alias data.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, errors.New("packet shorter than header")
	}
	n := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) != HeaderSize+n {
		return Packet{}, fmt.Errorf("packet length %d does not match %d bins", len(data), n)
	}
	return Packet{
		Seq:       binary.BigEndian.Uint32(data[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:12])),
		Bins:      data[HeaderSize:],
	}, nil
}

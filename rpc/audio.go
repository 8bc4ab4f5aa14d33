package rpc

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"time"
)

// AudioPacketHeaderSize is the size of the header of an audio packet: 4
// reserved bytes followed by the little-endian timestamp.
const AudioPacketHeaderSize = 8

// AudioPacket is a single streaming datagram.
//
// The reserved bytes of the header were meant for a sequence number. They
// are always written as zero and ignored when decoding, so loss, duplication
// and reordering of packets can not be detected by listeners.
type AudioPacket struct {
	// Timestamp is the send time in milliseconds since the unix epoch,
	// truncated to 32 bits. It is advisory only.
	Timestamp uint32

	// Samples are the interleaved float32 samples.
	Samples []float32
}

// PacketTimestamp returns the truncated millisecond timestamp of t.
func PacketTimestamp(t time.Time) uint32 {
	return uint32(t.UnixMilli())
}

// AudioPacketSize returns the size of an encoded packet with the given number
// of samples.
func AudioPacketSize(nbSamples int) int {
	return AudioPacketHeaderSize + nbSamples*4
}

// AppendEncoded appends the encoded packet to b.
func (p *AudioPacket) AppendEncoded(b []byte) []byte {
	b = slices.Grow(b, AudioPacketSize(len(p.Samples)))
	b = append(b, 0, 0, 0, 0)
	b = binary.LittleEndian.AppendUint32(b, p.Timestamp)
	for _, s := range p.Samples {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(s))
	}
	return b
}

// Decode decodes the datagram b into p. The Samples slice of p is reused.
// Trailing bytes that do not form a full sample are ignored. Datagrams
// smaller than the header fail with ErrShortPacket.
func (p *AudioPacket) Decode(b []byte) error {
	if len(b) < AudioPacketHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p.Timestamp = binary.LittleEndian.Uint32(b[4:])

	payload := b[AudioPacketHeaderSize:]
	n := len(payload) / 4
	p.Samples = slices.Grow(p.Samples[:0], n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(payload[i*4:])
		p.Samples = append(p.Samples, math.Float32frombits(bits))
	}
	return nil
}

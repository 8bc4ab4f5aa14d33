package rpc

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/companyzero/lanaudio/internal/assert"
)

// TestAudioPacketEncDec tests that samples are decoded bit-for-bit as they were
// encoded.
func TestAudioPacketEncDec(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	samples := make([]float32, 960)
	for i := range samples {
		samples[i] = rng.Float32()*2 - 1
	}
	samples[0] = float32(math.Inf(-1))
	samples[1] = math.SmallestNonzeroFloat32
	samples[2] = float32(math.Copysign(0, -1))

	want := AudioPacket{Timestamp: 0xa1b2c3d4, Samples: samples}
	b := want.AppendEncoded(nil)
	assert.DeepEqual(t, len(b), AudioPacketSize(len(samples)))
	assert.DeepEqual(t, b[:8], []byte{0, 0, 0, 0, 0xd4, 0xc3, 0xb2, 0xa1})

	var got AudioPacket
	assert.NilErr(t, got.Decode(b))
	assert.DeepEqual(t, got.Timestamp, want.Timestamp)
	assert.DeepEqual(t, len(got.Samples), len(want.Samples))
	for i := range want.Samples {
		if math.Float32bits(got.Samples[i]) != math.Float32bits(want.Samples[i]) {
			t.Fatalf("sample %d differs: got %x, want %x", i,
				math.Float32bits(got.Samples[i]),
				math.Float32bits(want.Samples[i]))
		}
	}
}

// TestAudioPacketDecodeTruncation tests decoding datagrams that are not a
// multiple of the sample size or smaller than the header.
func TestAudioPacketDecodeTruncation(t *testing.T) {
	full := (&AudioPacket{Timestamp: 7, Samples: []float32{0.25, -0.5, 1}}).AppendEncoded(nil)

	tests := []struct {
		name    string
		b       []byte
		want    []float32
		wantErr error
	}{{
		name: "full",
		b:    full,
		want: []float32{0.25, -0.5, 1},
	}, {
		name: "trailing partial sample",
		b:    full[:len(full)-1],
		want: []float32{0.25, -0.5},
	}, {
		name: "one trailing byte",
		b:    append(full[:8:8], 0xff),
		want: []float32{},
	}, {
		name: "header only",
		b:    full[:8],
		want: []float32{},
	}, {
		name:    "shorter than header",
		b:       full[:7],
		wantErr: ErrShortPacket,
	}, {
		name:    "empty",
		b:       nil,
		wantErr: ErrShortPacket,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AudioPacket{Samples: make([]float32, 0, 4)}
			err := got.Decode(tc.b)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NilErr(t, err)
			assert.DeepEqual(t, got.Timestamp, uint32(7))
			assert.DeepEqual(t, got.Samples, tc.want)
		})
	}
}

// TestAudioPacketReservedBytesIgnored tests that the reserved header bytes are
// not interpreted when decoding.
func TestAudioPacketReservedBytesIgnored(t *testing.T) {
	b := (&AudioPacket{Timestamp: 1, Samples: []float32{0.5}}).AppendEncoded(nil)
	b[0], b[1], b[2], b[3] = 0xde, 0xad, 0xbe, 0xef

	var got AudioPacket
	assert.NilErr(t, got.Decode(b))
	assert.DeepEqual(t, got, AudioPacket{Timestamp: 1, Samples: []float32{0.5}})
}

func TestPacketTimestamp(t *testing.T) {
	ts := time.UnixMilli(1<<32 + 1234)
	assert.DeepEqual(t, PacketTimestamp(ts), uint32(1234))
}

// TestDefaultPacketSize documents the size of packets with the default chunk
// size.
func TestDefaultPacketSize(t *testing.T) {
	const defaultChunkSamples = 480 * 2
	assert.DeepEqual(t, AudioPacketSize(defaultChunkSamples), 3848)
	if AudioPacketSize(defaultChunkSamples) <= MaxSafeDatagramSize {
		t.Fatalf("unexpected safe default packet size")
	}
	assert.DeepEqual(t, AudioPacketSize((MaxSafeDatagramSize-AudioPacketHeaderSize)/4), MaxSafeDatagramSize)
}

package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/companyzero/lanaudio/internal/assert"
)

// TestAppendFloat32Samples tests converting every supported native format to
// float32.
func TestAppendFloat32Samples(t *testing.T) {
	s32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(s32[0:], 0x80000000)
	binary.LittleEndian.PutUint32(s32[4:], 1<<30)

	f32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-0.75))

	tests := []struct {
		name   string
		format SampleFormat
		in     []byte
		want   []float32
	}{{
		name:   "u8",
		format: FormatU8,
		in:     []byte{0, 128, 192},
		want:   []float32{-1, 0, 0.5},
	}, {
		name:   "s16",
		format: FormatS16,
		in:     []byte{0x00, 0x80, 0x00, 0x00, 0x00, 0x40},
		want:   []float32{-1, 0, 0.5},
	}, {
		name:   "u16",
		format: FormatU16,
		in:     []byte{0x00, 0x00, 0x00, 0x80, 0x00, 0xc0},
		want:   []float32{-1, 0, 0.5},
	}, {
		name:   "s24",
		format: FormatS24,
		in:     []byte{0x00, 0x00, 0x80, 0x00, 0x00, 0x40, 0x00, 0x00, 0xc0},
		want:   []float32{-1, 0.5, -0.5},
	}, {
		name:   "s32",
		format: FormatS32,
		in:     s32,
		want:   []float32{-1, 0.5},
	}, {
		name:   "f32",
		format: FormatF32,
		in:     f32,
		want:   []float32{0.25, -0.75},
	}, {
		name:   "trailing partial sample",
		format: FormatS16,
		in:     []byte{0x00, 0x40, 0xff},
		want:   []float32{0.5},
	}, {
		name:   "empty",
		format: FormatF32,
		in:     nil,
		want:   []float32{},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := appendFloat32Samples([]float32{}, tc.in, tc.format)
			assert.NilErr(t, err)
			assert.DeepEqual(t, got, tc.want)
		})
	}
}

// TestAppendFloat32SamplesUnsupported tests that unsupported formats fail with
// the unsupported format error kind.
func TestAppendFloat32SamplesUnsupported(t *testing.T) {
	_, err := appendFloat32Samples(nil, []byte{1, 2, 3, 4}, FormatUnknown)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestPutFloat32Samples tests that samples that do not fit the destination are
// not written.
func TestPutFloat32Samples(t *testing.T) {
	dst := make([]byte, 8)
	n := putFloat32Samples(dst, []float32{0.5, -0.5, 1})
	assert.DeepEqual(t, n, 2)
	assert.DeepEqual(t, math.Float32frombits(binary.LittleEndian.Uint32(dst[0:])), float32(0.5))
	assert.DeepEqual(t, math.Float32frombits(binary.LittleEndian.Uint32(dst[4:])), float32(-0.5))
}

func TestSignalLevels(t *testing.T) {
	peak, rms := signalLevels([]float32{0.5, -0.5, 0.5, -0.5})
	assert.DeepEqual(t, peak, 0.5)
	assert.DeepEqual(t, rms, 0.5)

	peak, rms = signalLevels(nil)
	assert.DeepEqual(t, peak, 0.0)
	assert.DeepEqual(t, rms, 0.0)
}

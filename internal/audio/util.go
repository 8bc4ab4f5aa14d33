package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// SampleFormat is the native sample format of a device.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatU16
	FormatS24
	FormatS32
	FormatF32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatU16:
		return "u16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// SampleSize returns the size in bytes of one sample in this format, or zero
// if the format is not supported.
func (f SampleFormat) SampleSize() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16, FormatU16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

// appendFloat32Samples converts little-endian samples in the given native
// format to float32 and appends them to dst. Integer formats are scaled to
// [-1.0, 1.0]. A trailing partial sample is ignored.
func appendFloat32Samples(dst []float32, src []byte, format SampleFormat) ([]float32, error) {
	size := format.SampleSize()
	if size == 0 {
		return dst, makeKindError(ErrUnsupportedFormat, format.String(), nil)
	}

	n := len(src) / size
	dst = slices.Grow(dst, n)
	switch format {
	case FormatU8:
		for i := 0; i < n; i++ {
			dst = append(dst, (float32(src[i])-128)/128)
		}
	case FormatS16:
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(src[i*2:]))
			dst = append(dst, float32(v)/32768)
		}
	case FormatU16:
		for i := 0; i < n; i++ {
			v := binary.LittleEndian.Uint16(src[i*2:])
			dst = append(dst, (float32(v)-32768)/32768)
		}
	case FormatS24:
		for i := 0; i < n; i++ {
			b := src[i*3:]
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			dst = append(dst, float32(v)/8388608)
		}
	case FormatS32:
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(src[i*4:]))
			dst = append(dst, float32(float64(v)/2147483648))
		}
	case FormatF32:
		for i := 0; i < n; i++ {
			dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
		}
	}
	return dst, nil
}

// putFloat32Samples writes the samples as little-endian float32 into dst and
// returns the number of samples written. Samples that do not fit are not
// written.
func putFloat32Samples(dst []byte, samples []float32) int {
	n := min(len(dst)/4, len(samples))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
	}
	return n
}

// signalLevels returns the peak absolute value and the RMS of the samples.
func signalLevels(samples []float32) (peak, rms float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		peak = max(peak, math.Abs(v))
		sum += v * v
	}
	return peak, math.Sqrt(sum / float64(len(samples)))
}

//go:build cgo && !noaudio

package audio

import (
	"testing"

	"github.com/gen2brain/malgo"
)

func TestFromMalgoFormat(t *testing.T) {
	tests := []struct {
		in   malgo.FormatType
		want SampleFormat
	}{
		{malgo.FormatU8, FormatU8},
		{malgo.FormatS16, FormatS16},
		{malgo.FormatS24, FormatS24},
		{malgo.FormatS32, FormatS32},
		{malgo.FormatF32, FormatF32},
		{malgo.FormatUnknown, FormatUnknown},
		{malgo.FormatType(200), FormatUnknown},
	}
	for _, tc := range tests {
		got := fromMalgoFormat(tc.in)
		if got != tc.want {
			t.Fatalf("unexpected format for %v: got %s, want %s", tc.in,
				got, tc.want)
		}
		if got == FormatUnknown && got.SampleSize() != 0 {
			t.Fatalf("unknown format has sample size %d", got.SampleSize())
		}
	}
}

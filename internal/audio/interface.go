package audio

import (
	"fmt"

	"github.com/companyzero/lanaudio/rpc"
)

// DeviceKind classifies an input device.
type DeviceKind string

const (
	DeviceKindPhysical    DeviceKind = "physical"
	DeviceKindVirtual     DeviceKind = "virtual"
	DeviceKindSystemAudio DeviceKind = "system"
)

// DeviceID is the driver-specific identifier of a device.
type DeviceID string

// Device describes one capture option, as listed by Source.ListDevices. The
// Index is only meaningful until the next listing.
type Device struct {
	Name      string     `json:"name"`
	IsDefault bool       `json:"is_default"`
	Index     int        `json:"index"`
	Kind      DeviceKind `json:"kind"`
}

// DeviceSelector selects the device to capture from. Non-negative values are
// indexes returned by ListDevices.
type DeviceSelector int

const (
	// SystemAudioSelector selects the system-audio (loopback) capture on
	// platforms that support it.
	SystemAudioSelector DeviceSelector = -1

	// DefaultDeviceSelector selects the first device flagged as default,
	// falling back to the first listed device.
	DefaultDeviceSelector DeviceSelector = -2
)

func (sel DeviceSelector) String() string {
	switch sel {
	case SystemAudioSelector:
		return "system audio"
	case DefaultDeviceSelector:
		return "default device"
	default:
		return fmt.Sprintf("device #%d", int(sel))
	}
}

// SampleChunk is a fixed-size sequence of interleaved float32 samples. It is
// the unit that moves between every stage of the pipeline.
type SampleChunk []float32

// ChunkQueueSize is the capacity of the channels that carry chunks between
// the audio callbacks and the network loops.
const ChunkQueueSize = 32

// CaptureConfig determines the shape of captured chunks.
type CaptureConfig struct {
	SampleRate     int
	Channels       int
	FrameChunkSize int
}

// DefaultCaptureConfig returns the default capture config: 48kHz stereo in
// 10ms chunks.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:     48000,
		Channels:       2,
		FrameChunkSize: 480,
	}
}

// ChunkSamples is the number of samples (across all channels) in every chunk.
func (cfg CaptureConfig) ChunkSamples() int {
	return cfg.FrameChunkSize * cfg.Channels
}

// PacketSize is the size of the datagrams that carry one chunk.
func (cfg CaptureConfig) PacketSize() int {
	return rpc.AudioPacketSize(cfg.ChunkSamples())
}

// Validate returns an error if the config can not be used to capture.
func (cfg CaptureConfig) Validate() error {
	switch {
	case cfg.SampleRate <= 0:
		return makeKindError(ErrStreamConfig, fmt.Sprintf("invalid sample rate %d", cfg.SampleRate), nil)
	case cfg.Channels <= 0:
		return makeKindError(ErrStreamConfig, fmt.Sprintf("invalid channel count %d", cfg.Channels), nil)
	case cfg.FrameChunkSize <= 0:
		return makeKindError(ErrStreamConfig, fmt.Sprintf("invalid frame chunk size %d", cfg.FrameChunkSize), nil)
	}
	return nil
}

// Playback output format. This is fixed.
const (
	playbackSampleRate = 48000
	playbackChannels   = 2
)

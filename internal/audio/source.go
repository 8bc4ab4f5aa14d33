package audio

import (
	"context"
	"fmt"

	"github.com/decred/slog"
)

// Source captures audio from input devices and plays back audio on the
// default output device.
type Source struct {
	audioCtx audioContext
	sysAudio systemAudioStrategy
	cfg      CaptureConfig
	log      slog.Logger
}

// NewSource initializes the audio driver. The config determines the shape of
// captured chunks.
func NewSource(cfg CaptureConfig, log slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	audioCtx, err := newAudioContext()
	if err != nil {
		return nil, makeKindError(ErrDevice, "unable to init audio driver", err)
	}

	src := newSource(audioCtx, platformSystemAudio, cfg, log)
	if addDebugTrace {
		src.log.Infof("Initializing audio source with driver %s WITH DEBUG TRACE",
			audioCtx.name())
	} else {
		src.log.Debugf("Initializing audio source with driver %s", audioCtx.name())
	}
	return src, nil
}

func newSource(audioCtx audioContext, sys systemAudioStrategy, cfg CaptureConfig, log slog.Logger) *Source {
	if log == nil {
		log = slog.Disabled
	}
	return &Source{
		audioCtx: audioCtx,
		sysAudio: sys,
		cfg:      cfg,
		log:      log,
	}
}

// Free releases the driver resources. Streams must be stopped before calling
// this.
func (s *Source) Free() error {
	return s.audioCtx.free()
}

// DriverName returns the name of the audio driver.
func (s *Source) DriverName() string {
	return s.audioCtx.name()
}

// Config returns the capture config.
func (s *Source) Config() CaptureConfig {
	return s.cfg
}

// IsSystemAudioHint returns true if d is the placeholder listed on platforms
// without native system audio capture. It can not be selected.
func (s *Source) IsSystemAudioHint(d Device) bool {
	return !s.sysAudio.supported && d.Kind == DeviceKindVirtual &&
		d.Name == s.sysAudio.name
}

func (s *Source) listDevices() ([]listedDevice, error) {
	raw, err := s.audioCtx.captureDevices()
	if err != nil {
		return nil, makeKindError(ErrDevice, "unable to enumerate input devices", err)
	}
	return buildDeviceList(raw, s.sysAudio), nil
}

// ListDevices lists the devices that can be selected for capturing. When the
// platform supports system audio capture, the synthetic system audio device is
// listed first.
//
// The list is built on every call. Indexes are only valid until the set of
// devices changes.
func (s *Source) ListDevices() ([]Device, error) {
	list, err := s.listDevices()
	if err != nil {
		return nil, err
	}
	res := make([]Device, len(list))
	for i := range list {
		res[i] = list[i].Device
	}
	return res, nil
}

// defaultOutputDevice returns the default output device. If no device is
// flagged as default, the first one is returned.
func (s *Source) defaultOutputDevice() (rawDevice, error) {
	devs, err := s.audioCtx.playbackDevices()
	if err != nil {
		return rawDevice{}, makeKindError(ErrDevice, "unable to enumerate output devices", err)
	}
	if len(devs) == 0 {
		return rawDevice{}, makeKindError(ErrDevice, "no output device found", nil)
	}
	for _, dev := range devs {
		if dev.isDefault {
			return dev, nil
		}
	}
	return devs[0], nil
}

// captureTarget is the result of resolving a DeviceSelector.
type captureTarget struct {
	id       DeviceID
	name     string
	loopback bool
}

func (s *Source) resolveSelector(sel DeviceSelector) (captureTarget, error) {
	if sel == SystemAudioSelector {
		if !s.sysAudio.supported {
			return captureTarget{}, makeKindError(ErrDevice,
				"system audio capture is not supported on this platform", nil)
		}
		out, err := s.defaultOutputDevice()
		if err != nil {
			return captureTarget{}, err
		}
		return captureTarget{id: out.id, name: s.sysAudio.name, loopback: true}, nil
	}

	list, err := s.listDevices()
	if err != nil {
		return captureTarget{}, err
	}

	if sel == DefaultDeviceSelector {
		var first *listedDevice
		for i := range list {
			if list[i].raw == nil {
				continue
			}
			if list[i].IsDefault {
				return captureTarget{id: list[i].raw.id, name: list[i].Name}, nil
			}
			if first == nil {
				first = &list[i]
			}
		}
		if first == nil {
			return captureTarget{}, makeKindError(ErrDevice, "no input devices found", nil)
		}
		return captureTarget{id: first.raw.id, name: first.Name}, nil
	}

	idx := int(sel)
	if idx < 0 || idx >= len(list) {
		return captureTarget{}, makeKindError(ErrDevice,
			fmt.Sprintf("device index %d not found", idx), nil)
	}
	dev := list[idx]
	switch {
	case dev.Kind == DeviceKindSystemAudio:
		return s.resolveSelector(SystemAudioSelector)
	case dev.raw == nil:
		return captureTarget{}, makeKindError(ErrDevice,
			fmt.Sprintf("device %q is not an input device", dev.Name), nil)
	}
	return captureTarget{id: dev.raw.id, name: dev.Name}, nil
}

// OpenCapture starts capturing from the selected device. Captured audio is
// sent as chunks of exactly Config().ChunkSamples() samples on the returned
// channel, which is closed once the stream stops.
//
// The capture stream stops when the context is canceled or the stream's Stop
// method is called.
func (s *Source) OpenCapture(ctx context.Context, sel DeviceSelector) (<-chan SampleChunk, *CaptureStream, error) {
	target, err := s.resolveSelector(sel)
	if err != nil {
		return nil, nil, err
	}

	cs := newCaptureStream(s.cfg, s.log)
	if target.loopback && s.sysAudio.renderAnchor {
		params := streamParams{
			sampleRate: playbackSampleRate,
			channels:   playbackChannels,
			format:     FormatF32,
		}
		anchor, err := s.audioCtx.initPlayback(target.id, params, renderSilence)
		if err != nil {
			return nil, nil, makeKindError(ErrStreamBuild, "unable to open render anchor", err)
		}
		cs.anchor = anchor
	}

	params := streamParams{
		sampleRate: s.cfg.SampleRate,
		channels:   s.cfg.Channels,
	}
	device, format, err := s.audioCtx.initCapture(target.id, target.loopback, params, cs.onRecvFrames)
	if err != nil {
		cs.uninitAnchor()
		return nil, nil, makeKindError(ErrStreamBuild,
			fmt.Sprintf("unable to open capture on %q", target.name), err)
	}
	if format.SampleSize() == 0 {
		device.Uninit()
		cs.uninitAnchor()
		return nil, nil, makeKindError(ErrUnsupportedFormat, format.String(), nil)
	}
	cs.device = device
	cs.format = format

	if err := cs.start(); err != nil {
		return nil, nil, err
	}

	s.log.Infof("Capturing from %q (%s, %d Hz, %d channels, %d frames per chunk)",
		target.name, format, s.cfg.SampleRate, s.cfg.Channels,
		s.cfg.FrameChunkSize)

	go cs.run(ctx)
	return cs.out, cs, nil
}

// OpenPlayback starts rendering on the default output device in stereo 48kHz
// float32. Chunks sent on the returned channel are played back in order. When
// no chunk is available at render time, silence is played.
//
// The playback stream stops when the context is canceled or the stream's Stop
// method is called. The returned channel is never closed by the stream.
func (s *Source) OpenPlayback(ctx context.Context) (chan<- SampleChunk, *PlaybackStream, error) {
	out, err := s.defaultOutputDevice()
	if err != nil {
		return nil, nil, err
	}

	ps := newPlaybackStream(s.log)
	params := streamParams{
		sampleRate: playbackSampleRate,
		channels:   playbackChannels,
		format:     FormatF32,
	}
	device, err := s.audioCtx.initPlayback(out.id, params, ps.onSendFrames)
	if err != nil {
		return nil, nil, makeKindError(ErrStreamBuild,
			fmt.Sprintf("unable to open playback on %q", out.name), err)
	}
	ps.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, nil, makeKindError(ErrStreamBuild, "unable to start playback", err)
	}

	s.log.Infof("Playing back on %q (f32, %d Hz, %d channels)", out.name,
		playbackSampleRate, playbackChannels)

	go ps.run(ctx)
	return ps.in, ps, nil
}

// renderSilence is a playback callback that only renders silence.
func renderSilence(out, _ []byte, _ uint32) {
	clear(out)
}

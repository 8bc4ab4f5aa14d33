//go:build cgo && !noaudio

package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

func init() {
	newAudioContext = newMalgoContext
}

// toMalgoDeviceId converts a device id to a malgo device id.
func (id DeviceID) toMalgoDeviceId() malgo.DeviceID {
	var res malgo.DeviceID
	copy(res[:], id)
	return res
}

// emptyDeviceID is an empty malgo device id.
var emptyDeviceID malgo.DeviceID

func toMalgoFormat(f SampleFormat) malgo.FormatType {
	switch f {
	case FormatU8:
		return malgo.FormatU8
	case FormatS16:
		return malgo.FormatS16
	case FormatS24:
		return malgo.FormatS24
	case FormatS32:
		return malgo.FormatS32
	case FormatF32:
		return malgo.FormatF32
	default:
		return malgo.FormatUnknown
	}
}

func fromMalgoFormat(f malgo.FormatType) SampleFormat {
	switch f {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatF32:
		return FormatF32
	default:
		return FormatUnknown
	}
}

// malgoContext is an implementation of audioContext which offloads the
// work to malgo library.
type malgoContext struct {
	malgoCtx *malgo.AllocatedContext
}

// newMalgoContext creates a new audioContext using malgo.
func newMalgoContext() (audioContext, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	return &malgoContext{malgoCtx: malgoCtx}, nil
}

func (mpc *malgoContext) name() string {
	return "malgo"
}

func (mpc *malgoContext) free() error {
	if err := mpc.malgoCtx.Uninit(); err != nil {
		return err
	}
	mpc.malgoCtx.Free()
	return nil
}

func (mpc *malgoContext) listDevices(typ malgo.DeviceType) ([]rawDevice, error) {
	devices, err := mpc.malgoCtx.Devices(typ)
	if err != nil {
		return nil, err
	}

	res := make([]rawDevice, 0, len(devices))
	setIds := make(map[DeviceID]struct{}, len(devices))
	for _, dev := range devices {
		id := DeviceID(string(append([]byte(nil), dev.ID[:]...)))

		// Avoid duplicate device IDs.
		if _, ok := setIds[id]; ok {
			continue
		}
		setIds[id] = struct{}{}

		// Devices whose full info can not be read are still listed.
		rd := rawDevice{id: id, name: dev.Name(), isDefault: dev.IsDefault == 1}
		full, err := mpc.malgoCtx.DeviceInfo(typ, dev.ID, malgo.Shared)
		if err == nil {
			rd.name = full.Name()
			rd.isDefault = full.IsDefault == 1
		}
		res = append(res, rd)
	}

	return res, nil
}

// captureDevices is part of the audioContext interface.
func (mpc *malgoContext) captureDevices() ([]rawDevice, error) {
	return mpc.listDevices(malgo.Capture)
}

// playbackDevices is part of the audioContext interface.
func (mpc *malgoContext) playbackDevices() ([]rawDevice, error) {
	return mpc.listDevices(malgo.Playback)
}

// initCapture is part of the audioContext interface.
func (mpc *malgoContext) initCapture(deviceID DeviceID, loopback bool,
	params streamParams, cb dataProc) (audioDevice, SampleFormat, error) {

	typ := malgo.Capture
	if loopback {
		typ = malgo.Loopback
	}

	malgoDeviceID := deviceID.toMalgoDeviceId()
	deviceConfig := malgo.DefaultDeviceConfig(typ)
	deviceConfig.SampleRate = uint32(params.sampleRate)
	if malgoDeviceID != emptyDeviceID {
		deviceConfig.Capture.DeviceID = malgoDeviceID.Pointer()
	}
	deviceConfig.Capture.Format = toMalgoFormat(params.format)
	deviceConfig.Capture.Channels = uint32(params.channels)
	deviceConfig.Alsa.NoMMap = 1

	captureCallbacks := malgo.DeviceCallbacks{
		Data: malgo.DataProc(cb),
	}

	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, captureCallbacks)
	if err != nil {
		return nil, FormatUnknown, err
	}

	return device, fromMalgoFormat(device.CaptureFormat()), nil
}

// initPlayback is part of the audioContext interface.
func (mpc *malgoContext) initPlayback(deviceID DeviceID, params streamParams,
	cb dataProc) (audioDevice, error) {

	// Sanity check.
	sampleSizeInBytes := malgo.SampleSizeInBytes(toMalgoFormat(params.format))
	if sampleSizeInBytes != params.format.SampleSize() {
		return nil, fmt.Errorf("malgo format has wrong sample size "+
			"(got %d, want %d)", sampleSizeInBytes, params.format.SampleSize())
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	malgoDeviceID := deviceID.toMalgoDeviceId()
	if malgoDeviceID != emptyDeviceID {
		deviceConfig.Playback.DeviceID = malgoDeviceID.Pointer()
	}
	deviceConfig.SampleRate = uint32(params.sampleRate)
	deviceConfig.Playback.Format = toMalgoFormat(params.format)
	deviceConfig.Playback.Channels = uint32(params.channels)
	deviceConfig.Alsa.NoMMap = 1

	playbackCallbacks := malgo.DeviceCallbacks{
		Data: malgo.DataProc(cb),
	}

	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, playbackCallbacks)
	if err != nil {
		return nil, err
	}
	return device, nil
}

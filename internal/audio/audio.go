package audio

import (
	"strings"
)

// systemAudioStrategy determines how capture of the system output mix is
// offered on a platform.
type systemAudioStrategy struct {
	// supported is true when the driver can capture the audio rendered on
	// the default output device. The synthetic device is then listed
	// first.
	supported bool

	// name is the name of the synthetic device when supported. Otherwise
	// it is the name of the hint listed when no virtual device exists.
	name string

	// renderAnchor is set when loopback capture requires a render stream
	// open on the same output device.
	renderAnchor bool
}

// virtualDeviceKeywords are substrings of product names of virtual audio
// cables.
var virtualDeviceKeywords = []string{
	"BlackHole",
	"Soundflower",
	"VB-CABLE",
	"CABLE Output",
	"Virtual Audio Cable",
}

// unknownDeviceName is listed for devices that do not report a name.
const unknownDeviceName = "Unknown Device"

func classifyDevice(name string) DeviceKind {
	for _, kw := range virtualDeviceKeywords {
		if strings.Contains(name, kw) {
			return DeviceKindVirtual
		}
	}
	return DeviceKindPhysical
}

// listedDevice is a Device along with how to open it.
type listedDevice struct {
	Device

	// raw is nil for the synthetic system audio device and for the
	// virtual cable hint.
	raw *rawDevice
}

// buildDeviceList builds the ordered device list out of the raw capture
// devices reported by the driver.
func buildDeviceList(raw []rawDevice, sys systemAudioStrategy) []listedDevice {
	res := make([]listedDevice, 0, len(raw)+1)
	if sys.supported {
		res = append(res, listedDevice{Device: Device{
			Name:  sys.name,
			Index: 0,
			Kind:  DeviceKindSystemAudio,
		}})
	}

	var hasVirtual bool
	for i := range raw {
		name := raw[i].name
		if name == "" {
			name = unknownDeviceName
		}
		kind := classifyDevice(name)
		hasVirtual = hasVirtual || kind == DeviceKindVirtual
		res = append(res, listedDevice{
			Device: Device{
				Name:      name,
				IsDefault: raw[i].isDefault,
				Index:     len(res),
				Kind:      kind,
			},
			raw: &raw[i],
		})
	}

	if !sys.supported && !hasVirtual {
		res = append(res, listedDevice{Device: Device{
			Name:  sys.name,
			Index: len(res),
			Kind:  DeviceKindVirtual,
		}})
	}

	return res
}

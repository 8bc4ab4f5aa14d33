package audio

// dataProc is the signature of the real-time callback invoked by the driver.
// For capture devices, in holds the captured bytes. For playback devices, out
// must be filled with the bytes to render.
type dataProc func(out, in []byte, framecount uint32)

// audioDevice is a device initialized by an audioContext.
type audioDevice interface {
	Start() error
	Stop() error
	Uninit()
}

// rawDevice is a device as reported by the driver.
type rawDevice struct {
	id        DeviceID
	name      string
	isDefault bool
}

// streamParams are the parameters requested when initializing a device. A
// zero format requests the device's native format.
type streamParams struct {
	sampleRate int
	channels   int
	format     SampleFormat
}

// audioContext abstracts the audio driver.
type audioContext interface {
	name() string
	free() error

	captureDevices() ([]rawDevice, error)
	playbackDevices() ([]rawDevice, error)

	// initCapture initializes a capture device. When loopback is true, the
	// id refers to an output device whose rendered audio is captured. The
	// returned format is the one the callback will receive. A device that
	// negotiated a format with no conversion is returned with FormatUnknown
	// and a nil error; the caller uninits it.
	initCapture(id DeviceID, loopback bool, params streamParams, cb dataProc) (audioDevice, SampleFormat, error)

	// initPlayback initializes a playback device that renders in the
	// requested format.
	initPlayback(id DeviceID, params streamParams, cb dataProc) (audioDevice, error)
}

// newAudioContext is set by the driver implementation selected at build time.
var newAudioContext func() (audioContext, error)

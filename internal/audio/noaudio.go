//go:build !cgo || noaudio

// This audio context is only used in cgo-less and noaudio builds.

package audio

func init() {
	newAudioContext = newNullAudioContext
}

type nullAudioContext struct{}

func newNullAudioContext() (audioContext, error) {
	return nullAudioContext{}, nil
}

func (_ nullAudioContext) name() string { return "nullaudio" }

func (_ nullAudioContext) captureDevices() ([]rawDevice, error) {
	return nil, errAudioDisabledCompilation
}

func (_ nullAudioContext) playbackDevices() ([]rawDevice, error) {
	return nil, errAudioDisabledCompilation
}

func (_ nullAudioContext) initPlayback(DeviceID, streamParams, dataProc) (audioDevice, error) {
	return nil, errAudioDisabledCompilation
}

func (_ nullAudioContext) initCapture(DeviceID, bool, streamParams, dataProc) (audioDevice, SampleFormat, error) {
	return nil, FormatUnknown, errAudioDisabledCompilation
}

func (_ nullAudioContext) free() error {
	return nil
}

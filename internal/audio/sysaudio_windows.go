//go:build windows

package audio

// WASAPI offers loopback capture of the default output device. The loopback
// client only produces data while the output device is rendering, so a silent
// render stream is kept open for the duration of the capture.
var platformSystemAudio = systemAudioStrategy{
	supported:    true,
	name:         "System Audio (Windows)",
	renderAnchor: true,
}

//go:build !windows

package audio

// Other platforms have no driver level loopback capture. Capturing system
// audio requires routing the output through a virtual cable device.
var platformSystemAudio = systemAudioStrategy{
	name: "System Audio (requires BlackHole/Soundflower installation)",
}

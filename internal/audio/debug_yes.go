//go:build audiodebug

// This file is conditionally compiled when the build tag 'audiodebug' is set
// to include per-chunk signal level tracing in the capture and playback
// streams.
//
// These run inside the audio callbacks, so for production builds they are
// removed during compilation.

package audio

const addDebugTrace = true

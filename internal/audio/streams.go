package audio

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"
)

// CaptureStats are counters about a capture stream.
type CaptureStats struct {
	Callbacks uint64
	Chunks    uint64
	Samples   uint64
}

// CaptureStream captures data from an input device and splits it into
// chunks.
type CaptureStream struct {
	log    slog.Logger
	cfg    CaptureConfig
	device audioDevice
	anchor audioDevice
	format SampleFormat

	// These are only accessed from the driver callback.
	chunker *chunker
	convBuf []float32
	convErr bool

	out      chan SampleChunk
	stopChan chan struct{}
	stopping chan struct{}
	done     chan struct{}
	runErr   error

	callbacks atomic.Uint64
	chunks    atomic.Uint64
	samples   atomic.Uint64

	errMtx  sync.Mutex
	cbError error
}

func newCaptureStream(cfg CaptureConfig, log slog.Logger) *CaptureStream {
	return &CaptureStream{
		log:      log,
		cfg:      cfg,
		chunker:  newChunker(cfg.ChunkSamples()),
		convBuf:  make([]float32, 0, cfg.ChunkSamples()),
		out:      make(chan SampleChunk, ChunkQueueSize),
		stopChan: make(chan struct{}, 1),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Format is the native format of the captured samples before conversion.
func (cs *CaptureStream) Format() SampleFormat {
	return cs.format
}

// Stats returns the current capture counters.
func (cs *CaptureStream) Stats() CaptureStats {
	return CaptureStats{
		Callbacks: cs.callbacks.Load(),
		Chunks:    cs.chunks.Load(),
		Samples:   cs.samples.Load(),
	}
}

// Done is closed once capturing is completed and the chunks channel has been
// closed.
func (cs *CaptureStream) Done() <-chan struct{} {
	return cs.done
}

// Stop stops the capture stream independently of the run context stopping.
func (cs *CaptureStream) Stop() {
	select {
	case cs.stopChan <- struct{}{}:
	case <-cs.done:
	}
}

// Err is the capturing error. It is only set after capturing is done.
func (cs *CaptureStream) Err() error {
	select {
	case <-cs.done:
		return cs.runErr
	default:
		return nil
	}
}

// onRecvFrames is the capture callback. It converts the native samples and
// sends every complete chunk to the out channel.
//
// Sending blocks when the channel is full. The stopping chan releases a
// blocked send so that the device can be stopped.
func (cs *CaptureStream) onRecvFrames(_, inSamples []byte, framecount uint32) {
	cs.callbacks.Add(1)
	if cs.convErr {
		return
	}

	readSize := int(framecount) * cs.cfg.Channels * cs.format.SampleSize()
	if len(inSamples) < readSize {
		cs.log.Warnf("inSamples buffer has len %d when expected %d",
			len(inSamples), readSize)
		readSize = len(inSamples)
	}

	var err error
	cs.convBuf, err = appendFloat32Samples(cs.convBuf[:0], inSamples[:readSize], cs.format)
	if err != nil {
		cs.convErr = true
		cs.errMtx.Lock()
		cs.cbError = err
		cs.errMtx.Unlock()
		cs.log.Errorf("Unable to convert captured samples: %v", err)
		return
	}
	cs.samples.Add(uint64(len(cs.convBuf)))

	cs.chunker.push(cs.convBuf, cs.emit)
}

func (cs *CaptureStream) emit(chunk SampleChunk) bool {
	if addDebugTrace {
		peak, rms := signalLevels(chunk)
		cs.log.Tracef("Captured chunk %d peak %.4f rms %.4f qlen %d",
			cs.chunks.Load(), peak, rms, len(cs.out))
	}

	select {
	case <-cs.stopping:
		return false
	default:
	}

	select {
	case cs.out <- chunk:
		cs.chunks.Add(1)
		return true
	case <-cs.stopping:
		return false
	}
}

func (cs *CaptureStream) uninitAnchor() {
	if cs.anchor == nil {
		return
	}
	if err := cs.anchor.Stop(); err != nil {
		cs.log.Debugf("Unable to stop render anchor: %v", err)
	}
	cs.anchor.Uninit()
}

// start starts the render anchor (if needed) and the capture device.
func (cs *CaptureStream) start() error {
	if cs.anchor != nil {
		if err := cs.anchor.Start(); err != nil {
			cs.device.Uninit()
			cs.anchor.Uninit()
			return makeKindError(ErrStreamBuild, "unable to start render anchor", err)
		}
	}
	if err := cs.device.Start(); err != nil {
		cs.device.Uninit()
		cs.uninitAnchor()
		return makeKindError(ErrStreamBuild, "unable to start capture", err)
	}
	return nil
}

// run waits until the stream is stopped, then stops the device and closes the
// chunks channel.
func (cs *CaptureStream) run(ctx context.Context) {
	cs.log.Debug("Starting capture stream")

	select {
	case <-ctx.Done():
	case <-cs.stopChan:
	}

	// Release a callback blocked on a full out channel before stopping the
	// device.
	close(cs.stopping)
	stopErr := cs.device.Stop()
	cs.device.Uninit()
	cs.uninitAnchor()

	// The device is uninitialized, so no more callbacks will write to the
	// channel.
	close(cs.out)

	cs.errMtx.Lock()
	cbErr := cs.cbError
	cs.errMtx.Unlock()
	switch {
	case cbErr != nil:
		cs.runErr = cbErr
	case stopErr != nil:
		cs.runErr = makeKindError(ErrDevice, "unable to stop capture", stopErr)
	}

	stats := cs.Stats()
	cs.log.Debugf("Finished capture stream: %d callbacks, %d samples, "+
		"%d chunks", stats.Callbacks, stats.Samples, stats.Chunks)
	close(cs.done)
}

// PlaybackStats are counters about a playback stream.
type PlaybackStats struct {
	Callbacks        uint64
	Chunks           uint64
	Underruns        uint64
	DiscardedSamples uint64
}

// PlaybackStream plays back chunks received on its input channel.
type PlaybackStream struct {
	log    slog.Logger
	in     chan SampleChunk
	device audioDevice

	stopChan chan struct{}
	done     chan struct{}
	runErr   error

	callbacks        atomic.Uint64
	chunks           atomic.Uint64
	underruns        atomic.Uint64
	discardedSamples atomic.Uint64
}

func newPlaybackStream(log slog.Logger) *PlaybackStream {
	return &PlaybackStream{
		log:      log,
		in:       make(chan SampleChunk, ChunkQueueSize),
		stopChan: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Stats returns the current playback counters.
func (ps *PlaybackStream) Stats() PlaybackStats {
	return PlaybackStats{
		Callbacks:        ps.callbacks.Load(),
		Chunks:           ps.chunks.Load(),
		Underruns:        ps.underruns.Load(),
		DiscardedSamples: ps.discardedSamples.Load(),
	}
}

// Done is closed when playback of this stream is finished.
func (ps *PlaybackStream) Done() <-chan struct{} {
	return ps.done
}

// Stop stops the playback stream independently of the run context stopping.
func (ps *PlaybackStream) Stop() {
	select {
	case ps.stopChan <- struct{}{}:
	case <-ps.done:
	}
}

// Err returns the playback error. It is only set after playback is done.
func (ps *PlaybackStream) Err() error {
	select {
	case <-ps.done:
		return ps.runErr
	default:
		return nil
	}
}

// onSendFrames is the playback callback. It never blocks: at most one chunk is
// consumed per call. Output not covered by the chunk is silenced.
func (ps *PlaybackStream) onSendFrames(outSamples, _ []byte, framecount uint32) {
	ps.callbacks.Add(1)

	writeSize := int(framecount) * playbackChannels * 4
	if len(outSamples) < writeSize {
		ps.log.Warnf("Buffer size %d is smaller than write size %d",
			len(outSamples), writeSize)
		writeSize = len(outSamples)
	}
	out := outSamples[:writeSize]

	var chunk SampleChunk
	var ok bool
	select {
	case chunk, ok = <-ps.in:
	default:
	}
	if !ok {
		// Underrun or input closed.
		ps.underruns.Add(1)
		clear(out)
		return
	}

	n := putFloat32Samples(out, chunk)
	clear(out[n*4:])
	ps.chunks.Add(1)
	if n < len(chunk) {
		ps.discardedSamples.Add(uint64(len(chunk) - n))
	}

	if addDebugTrace {
		peak, rms := signalLevels(chunk)
		ps.log.Tracef("Rendering chunk with %d samples (%d discarded) "+
			"peak %.4f rms %.4f qlen %d", len(chunk), len(chunk)-n,
			peak, rms, len(ps.in))
	}
}

func (ps *PlaybackStream) run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-ps.stopChan:
	}

	if err := ps.device.Stop(); err != nil {
		ps.runErr = makeKindError(ErrDevice, "unable to stop playback", err)
	}
	ps.device.Uninit()

	stats := ps.Stats()
	ps.log.Debugf("Finished playback stream: %d callbacks, %d chunks, "+
		"%d underruns, %d discarded samples", stats.Callbacks,
		stats.Chunks, stats.Underruns, stats.DiscardedSamples)
	close(ps.done)
}

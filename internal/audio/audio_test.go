package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/companyzero/lanaudio/internal/assert"
)

// testAudioContext is used to test stream implementations. Callbacks are
// driven by the test.
type testAudioContext struct {
	t testing.TB

	captureDevs  []rawDevice
	playbackDevs []rawDevice
	format       SampleFormat
	initErr      error

	mtx      sync.Mutex
	inflight sync.WaitGroup
	started  chan struct{}
	stopped  chan struct{}
	uninited chan struct{}
	cb       dataProc
	params   streamParams
	loopback bool
	capID    DeviceID
	playID   DeviceID
	playInit int
}

func newTestAudioContext(t testing.TB) *testAudioContext {
	return &testAudioContext{
		t: t,
		captureDevs: []rawDevice{
			{id: "mic", name: "Built-in Microphone", isDefault: true},
			{id: "line", name: "Line In"},
		},
		playbackDevs: []rawDevice{
			{id: "speakers", name: "Speakers", isDefault: true},
		},
		format:   FormatF32,
		started:  make(chan struct{}, 5),
		stopped:  make(chan struct{}, 5),
		uninited: make(chan struct{}, 5),
	}
}

func (tac *testAudioContext) name() string {
	return "testaudio"
}

func (tac *testAudioContext) captureDevices() ([]rawDevice, error) {
	return tac.captureDevs, nil
}

func (tac *testAudioContext) playbackDevices() ([]rawDevice, error) {
	return tac.playbackDevs, nil
}

func (tac *testAudioContext) initPlayback(deviceID DeviceID, params streamParams, cb dataProc) (audioDevice, error) {
	if tac.initErr != nil {
		return nil, tac.initErr
	}
	tac.mtx.Lock()
	tac.cb = cb
	tac.params = params
	tac.playID = deviceID
	tac.playInit++
	tac.mtx.Unlock()
	return tac, nil
}

func (tac *testAudioContext) initCapture(deviceID DeviceID, loopback bool, params streamParams, cb dataProc) (audioDevice, SampleFormat, error) {
	if tac.initErr != nil {
		return nil, FormatUnknown, tac.initErr
	}
	tac.mtx.Lock()
	tac.cb = cb
	tac.params = params
	tac.loopback = loopback
	tac.capID = deviceID
	tac.mtx.Unlock()
	return tac, tac.format, nil
}

func (tac *testAudioContext) free() error {
	return nil
}

// These are part of the audioDevice interface.

func (tac *testAudioContext) Start() error {
	tac.started <- struct{}{}
	return nil
}

// Stop waits for in-flight callbacks, like real drivers do.
func (tac *testAudioContext) Stop() error {
	tac.inflight.Wait()
	tac.stopped <- struct{}{}
	return nil
}

func (tac *testAudioContext) Uninit() {
	tac.uninited <- struct{}{}
}

// These are test functions.

// callCB calls the current callback in a goroutine and returns a chan that is
// closed once the callback returns.
func (tac *testAudioContext) callCB(out, in []byte, framecount uint32) chan struct{} {
	tac.t.Helper()
	tac.mtx.Lock()
	cb := tac.cb
	tac.mtx.Unlock()

	if cb == nil {
		tac.t.Fatalf("callback not initialized")
	}

	calledChan := make(chan struct{})
	tac.inflight.Add(1)
	go func() {
		cb(out, in, framecount)
		tac.inflight.Done()
		close(calledChan)
	}()
	return calledChan
}

// captureF32 calls the capture callback with the given float32 samples and
// asserts it completes.
func (tac *testAudioContext) captureF32(channels int, samples []float32) {
	tac.t.Helper()
	in := f32Bytes(samples)
	assert.ChanWritten(tac.t, tac.callCB(nil, in, uint32(len(samples)/channels)))
}

// render calls the playback callback for the given number of stereo frames
// and returns the rendered samples.
func (tac *testAudioContext) render(frames int) []float32 {
	tac.t.Helper()
	out := make([]byte, frames*playbackChannels*4)
	for i := range out {
		out[i] = 0xff
	}
	assert.ChanWritten(tac.t, tac.callCB(out, nil, uint32(frames)))
	res := make([]float32, len(out)/4)
	for i := range res {
		res[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	return res
}

var errTestDriver = errors.New("test driver error")

func f32Bytes(samples []float32) []byte {
	b := make([]byte, len(samples)*4)
	putFloat32Samples(b, samples)
	return b
}

// rampSamples returns n samples with increasing values starting at start.
func rampSamples(start, n int) []float32 {
	res := make([]float32, n)
	for i := range res {
		res[i] = float32(start+i) / 1000
	}
	return res
}

package audio

// chunker accumulates converted samples and splits them into chunks of exactly
// size samples. Samples that do not fill a chunk are kept until the next push.
//
// A chunker is not safe for concurrent use. It is only accessed from the
// driver's callback.
type chunker struct {
	size    int
	pending []float32
}

func newChunker(size int) *chunker {
	return &chunker{
		size:    size,
		pending: make([]float32, 0, size*2),
	}
}

// push adds samples to the pending buffer and calls emit with every complete
// chunk. If emit returns false, no more chunks are emitted during this call
// and the remaining samples stay pending.
func (c *chunker) push(samples []float32, emit func(SampleChunk) bool) {
	c.pending = append(c.pending, samples...)
	for len(c.pending) >= c.size {
		chunk := make(SampleChunk, c.size)
		copy(chunk, c.pending)
		n := copy(c.pending, c.pending[c.size:])
		c.pending = c.pending[:n]
		if !emit(chunk) {
			return
		}
	}
}


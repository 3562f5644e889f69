package audio

// Accumulator buffers encoded samples into fixed-size frames. A frame is
// emitted exactly when it fills; partial frames are never emitted. Samples
// left over at teardown stay buffered and are dropped with the accumulator —
// up to chunkSize-1 trailing samples per session are lost, matching the
// behavior of the wire protocol's producer side.
//
// Not safe for concurrent use; drive it from a single render callback.
type Accumulator struct {
	chunkSize int
	buf       Frame
	n         int
}

// NewAccumulator creates an accumulator emitting frames of chunkSize
// samples. Non-positive sizes fall back to [DefaultChunkSize].
func NewAccumulator(chunkSize int) *Accumulator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Accumulator{
		chunkSize: chunkSize,
		buf:       make(Frame, chunkSize),
	}
}

// Push appends samples to the current frame and returns zero or more
// completed frames, in order. A batch spanning a frame boundary emits the
// completed frame and keeps filling the next from the remainder within the
// same call. Each returned frame has a fresh backing array; the accumulator
// never reuses a buffer it has handed off.
func (a *Accumulator) Push(samples []int16) []Frame {
	var frames []Frame
	for len(samples) > 0 {
		n := copy(a.buf[a.n:], samples)
		a.n += n
		samples = samples[n:]
		if a.n == a.chunkSize {
			frames = append(frames, a.buf)
			a.buf = make(Frame, a.chunkSize)
			a.n = 0
		}
	}
	return frames
}

// Pending reports how many samples are buffered awaiting a full frame.
func (a *Accumulator) Pending() int { return a.n }

// ChunkSize returns the configured frame length in samples.
func (a *Accumulator) ChunkSize() int { return a.chunkSize }

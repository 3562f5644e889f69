package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/vocalink/pkg/audio/capture"
)

// fakeDevice delivers blocks on demand via Feed. It records lifecycle calls
// so tests can assert release ordering.
type fakeDevice struct {
	rate    int
	fn      func([]float32)
	started bool
	closed  bool
}

func (d *fakeDevice) Start(_ context.Context, fn func(block []float32)) error {
	d.fn = fn
	d.started = true
	return nil
}

func (d *fakeDevice) SampleRate() int { return d.rate }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// Feed pushes one render block through the pipeline, as the audio thread
// would.
func (d *fakeDevice) Feed(block []float32) { d.fn(block) }

func constBlock(n int, v float32) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestPipeline_BypassAtTargetRate(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{rate: 16000}
	p := capture.New(dev, capture.Config{TargetRate: 16000, ChunkSize: 4})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	if !p.Bypassed() {
		t.Error("pipeline at target rate should bypass the resampler")
	}

	dev.Feed(constBlock(4, 0.5))
	select {
	case frame := <-p.Frames():
		if len(frame) != 4 {
			t.Fatalf("frame length = %d; want 4", len(frame))
		}
		if frame[0] != 16383 {
			t.Errorf("sample = %d; want 16383 (0.5 * 32767)", frame[0])
		}
	case <-time.After(time.Second):
		t.Fatal("no frame emitted")
	}
}

func TestPipeline_ResamplesMismatchedRate(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{rate: 48000}
	p := capture.New(dev, capture.Config{TargetRate: 16000, ChunkSize: 160})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	if p.Bypassed() {
		t.Error("pipeline with mismatched rates should resample")
	}

	// 480 device samples become exactly one 160-sample frame at 16 kHz.
	dev.Feed(constBlock(480, 0.25))
	select {
	case frame := <-p.Frames():
		if len(frame) != 160 {
			t.Fatalf("frame length = %d; want 160", len(frame))
		}
	case <-time.After(time.Second):
		t.Fatal("no frame emitted")
	}
	if p.Pending() != 0 {
		t.Errorf("Pending = %d; want 0", p.Pending())
	}
}

func TestPipeline_StartTwiceFails(t *testing.T) {
	t.Parallel()
	p := capture.New(&fakeDevice{rate: 16000}, capture.Config{TargetRate: 16000})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer p.Close()
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded; want error")
	}
}

func TestPipeline_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{rate: 16000}
	p := capture.New(dev, capture.Config{TargetRate: 16000, ChunkSize: 2, QueueDepth: 1})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	// One frame fills the queue; the next two are dropped, not blocked on.
	dev.Feed(constBlock(2, 0.1))
	dev.Feed(constBlock(2, 0.1))
	dev.Feed(constBlock(2, 0.1))

	if got := p.Dropped(); got != 2 {
		t.Errorf("Dropped = %d; want 2", got)
	}
	if got := len(p.Frames()); got != 1 {
		t.Errorf("queued frames = %d; want 1", got)
	}
}

func TestPipeline_CloseStopsDeviceAndClosesChannel(t *testing.T) {
	t.Parallel()
	dev := &fakeDevice{rate: 16000}
	p := capture.New(dev, capture.Config{TargetRate: 16000, ChunkSize: 2})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Leftover sub-frame samples must not surface as a partial frame.
	dev.Feed(constBlock(1, 0.3))

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !dev.closed {
		t.Error("device not closed")
	}

	if _, ok := <-p.Frames(); ok {
		t.Error("frame channel delivered data after Close; want closed empty channel")
	}

	// Close twice is harmless.
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

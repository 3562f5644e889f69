package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/vocalink/pkg/audio"
)

// defaultQueueDepth is the frame channel capacity when none is configured.
// At 1024 samples per frame and 16 kHz that is roughly two seconds of
// headroom before frames are dropped.
const defaultQueueDepth = 32

// Config holds the processing parameters for a [Pipeline].
type Config struct {
	// TargetRate is the wire sample rate in Hz. Zero means
	// [audio.TargetSampleRate].
	TargetRate int

	// ChunkSize is the samples-per-frame count. Zero means
	// [audio.DefaultChunkSize].
	ChunkSize int

	// QueueDepth is the frame channel capacity. Zero means a default of
	// 32 frames.
	QueueDepth int
}

// Pipeline converts the device's render blocks into fixed-size PCM16 frames
// at the target rate and emits them on [Pipeline.Frames].
//
// When the device rate already matches the target rate the pipeline runs in
// bypass mode and the resampler is never constructed. The render callback
// never blocks: if the frame channel is full the frame is dropped and
// counted instead.
type Pipeline struct {
	device     Device
	targetRate int

	resampler *audio.Resampler // nil in bypass mode
	acc       *audio.Accumulator

	frames  chan audio.Frame
	dropped atomic.Uint64

	started   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a pipeline reading from device. The device is not started
// until [Pipeline.Start]; the hardware handle is assumed to be acquired
// already.
func New(device Device, cfg Config) *Pipeline {
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = audio.TargetSampleRate
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	return &Pipeline{
		device:     device,
		targetRate: cfg.TargetRate,
		acc:        audio.NewAccumulator(cfg.ChunkSize),
		frames:     make(chan audio.Frame, cfg.QueueDepth),
	}
}

// Start selects bypass or resample mode from the device rate and begins
// capture. It may be called once per pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("capture: pipeline already started")
	}

	rate := p.device.SampleRate()
	if rate != p.targetRate {
		rs, err := audio.NewResampler(rate, p.targetRate)
		if err != nil {
			return fmt.Errorf("capture: configure resampler %d -> %d: %w", rate, p.targetRate, err)
		}
		p.resampler = rs
	}

	if err := p.device.Start(ctx, p.onBlock); err != nil {
		return fmt.Errorf("capture: start device: %w", err)
	}
	return nil
}

// onBlock runs in the device's render context once per render callback.
// It must not block: frames that do not fit in the channel are dropped.
func (p *Pipeline) onBlock(block []float32) {
	if p.resampler != nil {
		block = p.resampler.Resample(block)
	}
	for _, frame := range p.acc.Push(audio.EncodePCM16(block)) {
		select {
		case p.frames <- frame:
		default:
			p.dropped.Add(1)
		}
	}
}

// Frames returns the channel delivering completed frames in emission order.
// The channel is closed by [Pipeline.Close].
func (p *Pipeline) Frames() <-chan audio.Frame { return p.frames }

// Bypassed reports whether the pipeline runs without a resampler. Only
// meaningful after Start.
func (p *Pipeline) Bypassed() bool { return p.resampler == nil }

// Dropped reports how many frames were discarded because the channel was
// full.
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }

// Pending reports how many sub-frame samples are buffered in the
// accumulator. These samples are discarded on Close, never flushed.
func (p *Pipeline) Pending() int { return p.acc.Pending() }

// Close stops the device, releases the capture handle, and closes the frame
// channel. The device is stopped first so no render callback can race the
// channel close. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.device.Close()
		close(p.frames)
	})
	return p.closeErr
}

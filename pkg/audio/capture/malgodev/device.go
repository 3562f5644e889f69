// Package malgodev implements [capture.Device] on top of the miniaudio
// bindings (github.com/gen2brain/malgo). miniaudio delivers capture data
// from a realtime-priority audio thread, which is exactly the render
// context the pipeline expects.
package malgodev

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/vocalink/pkg/audio/capture"
)

// DefaultCaptureRate is the capture rate requested from miniaudio when the
// caller does not specify one. miniaudio converts internally if the
// hardware runs at a different native rate.
const DefaultCaptureRate = 48000

var _ capture.Device = (*Device)(nil)

// Device is a mono microphone capture device. Open acquires the hardware
// handle; Start begins delivering render blocks; Close releases everything.
type Device struct {
	mctx *malgo.AllocatedContext
	rate int

	mu     sync.Mutex
	dev    *malgo.Device
	closed bool
}

// Open initialises the miniaudio context and acquires the default capture
// device at rate Hz (DefaultCaptureRate when rate <= 0). Errors here map to
// microphone-acquisition failures: the caller must treat them as fatal to
// session start.
func Open(rate int) (*Device, error) {
	if rate <= 0 {
		rate = DefaultCaptureRate
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgodev: init context: %w", err)
	}

	return &Device{mctx: mctx, rate: rate}, nil
}

// SampleRate reports the configured capture rate in Hz.
func (d *Device) SampleRate() int { return d.rate }

// Start opens the capture stream and begins invoking fn from the audio
// thread with one block of normalized mono samples per period.
func (d *Device) Start(_ context.Context, fn func(block []float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("malgodev: device closed")
	}
	if d.dev != nil {
		return fmt.Errorf("malgodev: capture already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(d.rate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			fn(blockFromF32LE(input, int(frameCount)))
		},
	}

	dev, err := malgo.InitDevice(d.mctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("malgodev: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("malgodev: start capture: %w", err)
	}

	d.dev = dev
	return nil
}

// Close stops capture and releases the device and context handles. After
// Close returns no callback runs. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.dev != nil {
		// Uninit stops the audio thread synchronously.
		d.dev.Uninit()
		d.dev = nil
	}
	err := d.mctx.Uninit()
	d.mctx.Free()
	if err != nil {
		return fmt.Errorf("malgodev: uninit context: %w", err)
	}
	return nil
}

// blockFromF32LE copies a raw little-endian float32 buffer into a sample
// slice. miniaudio reuses the input buffer between callbacks, so the copy
// is mandatory.
func blockFromF32LE(raw []byte, frames int) []float32 {
	if frames*4 > len(raw) {
		frames = len(raw) / 4
	}
	block := make([]float32, frames)
	for i := range block {
		block[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return block
}

// Package capture drives the microphone render callback through the
// resample → encode → accumulate chain and hands completed frames across
// the realtime boundary.
//
// The two abstractions are:
//
//   - [Device] — a source of fixed-size blocks of captured samples,
//     delivered from a realtime render context.
//   - [Pipeline] — the per-session processing chain that turns those blocks
//     into wire-ready [audio.Frame] values on a buffered channel.
//
// Device implementations live in adapter packages (capture/malgodev for the
// miniaudio microphone); tests use an in-memory device.
package capture

import (
	"context"
)

// Device supplies blocks of captured audio. Implementations wrap a hardware
// capture stream and invoke the callback from their own render context.
//
// Implementations must be safe for concurrent use of Close with an active
// callback.
type Device interface {
	// Start begins capture. fn is invoked from the device's render context
	// with one fixed-size block of normalized mono samples per render
	// period; fn must not block and must not retain the block. Start
	// returns once capture is running.
	Start(ctx context.Context, fn func(block []float32)) error

	// SampleRate reports the rate, in Hz, of the blocks delivered to the
	// Start callback.
	SampleRate() int

	// Close stops capture and releases the hardware handle. No callback
	// runs after Close returns. Safe to call more than once.
	Close() error
}

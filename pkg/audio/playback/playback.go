// Package playback plays agent-synthesized audio segments strictly
// sequentially with no overlap or gap.
//
// The [Scheduler] keeps a FIFO queue of [Item] values and a single
// "now playing" slot. Draining is completion-driven: the next item starts
// only when the sink signals that the previous one finished. This trades a
// little latency for a hard guarantee that segments never overlap or play
// out of order, even when they arrive in bursts.
package playback

import (
	"context"
	"errors"
)

// Item is one encoded audio segment received from the agent server. The
// payload is opaque until decode time; Format selects the decoder.
type Item struct {
	// Data is the raw segment payload.
	Data []byte

	// Format identifies the payload encoding: "pcm16k" (or empty), "wav",
	// or "opus".
	Format string

	// SampleRate is the source rate for raw PCM payloads. Zero means
	// 16000 Hz.
	SampleRate int
}

// Sink plays decoded PCM segments on the output device.
//
// Start must not invoke onDone synchronously: the completion signal always
// arrives from the sink's own goroutine after Start has returned. This lets
// the scheduler record the cancel handle before the chain can advance.
type Sink interface {
	// Start begins playback of pcm (little-endian int16 mono at rate Hz).
	// onDone is invoked exactly once when playback completes or is
	// cancelled. The returned cancel function stops playback early and is
	// safe to call at any time, including after completion.
	Start(pcm []byte, rate int, onDone func()) (cancel func(), err error)

	// Close releases the output device. No onDone fires after Close.
	Close() error
}

// Decoder turns an [Item] payload into raw little-endian PCM16 mono plus
// its sample rate. A decode error is local to the item: the scheduler
// skips it and continues the chain.
type Decoder interface {
	Decode(ctx context.Context, item Item) (pcm []byte, rate int, err error)
}

// ErrUnknownFormat is returned by decoders for unrecognized segment
// formats.
var ErrUnknownFormat = errors.New("playback: unknown segment format")

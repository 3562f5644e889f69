// Package audio provides the sample-processing primitives for the vocalink
// capture path: sample-rate conversion, PCM16 encoding, and fixed-size frame
// accumulation.
//
// The types here are driven from the capture device's render callback, so
// none of them block or take locks. Concurrency is handled one layer up, in
// audio/capture, where completed frames cross the realtime boundary over a
// buffered channel.
package audio

import "encoding/binary"

const (
	// DefaultChunkSize is the number of int16 samples per outbound frame.
	DefaultChunkSize = 1024

	// TargetSampleRate is the wire sample rate the agent server expects.
	TargetSampleRate = 16000
)

// Frame is a fixed-length block of 16-bit signed mono samples, the atomic
// unit sent per outbound message. Frames are emitted by the [Accumulator]
// with a freshly allocated backing array; once emitted, ownership transfers
// to the receiver and the accumulator never touches the buffer again.
type Frame []int16

// Bytes serializes the frame as little-endian int16 PCM, the byte layout
// used inside the audio_data wire envelope.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FrameFromBytes parses little-endian int16 PCM back into a Frame.
// A trailing odd byte is ignored.
func FrameFromBytes(b []byte) Frame {
	f := make(Frame, len(b)/2)
	for i := range f {
		f[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return f
}

package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"layeh.com/gopus"

	"github.com/MrWong99/vocalink/pkg/audio"
)

const (
	// opusRate is the decode rate for opus segments. Opus always operates
	// on 48 kHz internally.
	opusRate = 48000

	// opusMaxFrameSamples is the largest opus frame at 48 kHz (120 ms).
	opusMaxFrameSamples = 5760
)

// StandardDecoder decodes the segment formats the agent server emits:
// raw PCM16 ("pcm16k"/"pcm16", the default), WAV containers, and single
// opus packets. Safe for concurrent use; the opus decoder state is
// guarded because a session decodes segments one at a time anyway.
type StandardDecoder struct {
	mu   sync.Mutex
	opus *gopus.Decoder
}

var _ Decoder = (*StandardDecoder)(nil)

// NewStandardDecoder creates a decoder with no eagerly allocated state;
// the opus decoder is constructed on first use.
func NewStandardDecoder() *StandardDecoder {
	return &StandardDecoder{}
}

// Decode returns the item's payload as little-endian PCM16 mono and its
// sample rate.
func (d *StandardDecoder) Decode(_ context.Context, item Item) ([]byte, int, error) {
	switch strings.ToLower(item.Format) {
	case "", "pcm16k", "pcm16":
		return decodeRawPCM(item)
	case "wav":
		return decodeWAV(item.Data)
	case "opus":
		return d.decodeOpus(item.Data)
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownFormat, item.Format)
	}
}

// decodeRawPCM validates a raw PCM16 payload. The rate defaults to the
// wire rate when the envelope omitted it.
func decodeRawPCM(item Item) ([]byte, int, error) {
	if len(item.Data) == 0 {
		return nil, 0, fmt.Errorf("playback: empty pcm segment")
	}
	if len(item.Data)%2 != 0 {
		return nil, 0, fmt.Errorf("playback: odd byte count %d in pcm segment", len(item.Data))
	}
	rate := item.SampleRate
	if rate <= 0 {
		rate = audio.TargetSampleRate
	}
	return item.Data, rate, nil
}

func (d *StandardDecoder) decodeOpus(data []byte) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("playback: empty opus segment")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opus == nil {
		dec, err := gopus.NewDecoder(opusRate, 1)
		if err != nil {
			return nil, 0, fmt.Errorf("playback: create opus decoder: %w", err)
		}
		d.opus = dec
	}

	samples, err := d.opus.Decode(data, opusMaxFrameSamples, false)
	if err != nil {
		return nil, 0, fmt.Errorf("playback: opus decode: %w", err)
	}
	return audio.Frame(samples).Bytes(), opusRate, nil
}

// decodeWAV extracts PCM16 audio from a RIFF/WAVE container. Stereo data
// is averaged down to mono; only 16-bit PCM encoding is accepted.
func decodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("playback: not a RIFF/WAVE container")
	}

	var (
		rate     int
		channels int
		bits     int
		pcm      []byte
		haveFmt  bool
	)

	// Walk the chunk list. Chunks are word-aligned.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, 0, fmt.Errorf("playback: truncated wav chunk %q", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("playback: short wav fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			rate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
			if format != 1 {
				return nil, 0, fmt.Errorf("playback: unsupported wav encoding %d (want PCM)", format)
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || pcm == nil {
		return nil, 0, fmt.Errorf("playback: wav missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("playback: unsupported wav bit depth %d", bits)
	}

	switch channels {
	case 1:
		return pcm, rate, nil
	case 2:
		return stereoToMono(pcm), rate, nil
	default:
		return nil, 0, fmt.Errorf("playback: unsupported wav channel count %d", channels)
	}
}

// stereoToMono averages L+R per stereo frame using int32 arithmetic to
// avoid overflow.
func stereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		avg := (l + r) / 2
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}

// Package otosink implements [playback.Sink] on top of the oto/v3 audio
// context. Decoded segments are resampled to the sink's fixed output rate
// and streamed through a short-lived player per segment, whose completion
// drives the scheduler's chain.
package otosink

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/audio/playback"
)

// DefaultPlaybackRate is the output device rate used when none is
// configured.
const DefaultPlaybackRate = 48000

// pollInterval is how often the completion watcher samples player state.
const pollInterval = 10 * time.Millisecond

var _ playback.Sink = (*Sink)(nil)

// Sink plays mono PCM16 through the default output device. An oto context
// is process-global, so create one Sink per process and share it across
// sessions.
type Sink struct {
	ctx  *oto.Context
	rate int

	mu     sync.Mutex
	closed bool
}

// New initialises the output device at rate Hz (DefaultPlaybackRate when
// rate <= 0). It blocks until the audio context is ready.
func New(rate int) (*Sink, error) {
	if rate <= 0 {
		rate = DefaultPlaybackRate
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("otosink: init audio context: %w", err)
	}
	<-ready

	return &Sink{ctx: ctx, rate: rate}, nil
}

// Start begins playback of pcm and watches for completion on a background
// goroutine. onDone fires exactly once, from that goroutine.
func (s *Sink) Start(pcm []byte, rate int, onDone func()) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("otosink: sink closed")
	}
	s.mu.Unlock()

	if rate != s.rate {
		pcm = audio.ResamplePCM16(pcm, rate, s.rate)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("otosink: empty segment after resample")
	}

	player := s.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	cancelCh := make(chan struct{})
	var cancelOnce sync.Once
	cancel := func() { cancelOnce.Do(func() { close(cancelCh) }) }

	go func() {
		defer onDone()
		defer player.Close()
		for player.IsPlaying() {
			select {
			case <-cancelCh:
				return
			case <-time.After(pollInterval):
			}
		}
	}()

	return cancel, nil
}

// Close marks the sink closed. The oto context itself has no teardown; it
// lives for the remainder of the process.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

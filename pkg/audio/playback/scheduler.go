package playback

import (
	"context"
	"log/slog"
	"sync"
)

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithSpeakingFunc registers fn to be called when the scheduler transitions
// between draining (true) and idle (false). This drives the externally
// observed "agent speaking" indicator.
func WithSpeakingFunc(fn func(speaking bool)) Option {
	return func(s *Scheduler) { s.onSpeaking = fn }
}

// WithDecodeErrorFunc registers fn to be called once per item whose decode
// failed. The failure is already logged; the hook exists for metrics.
func WithDecodeErrorFunc(fn func()) Option {
	return func(s *Scheduler) { s.onDecodeErr = fn }
}

// WithQueueFunc registers fn to be called with the change in queue length
// whenever items are added or removed. The hook exists for metrics.
func WithQueueFunc(fn func(delta int)) Option {
	return func(s *Scheduler) { s.onQueue = fn }
}

// Scheduler sequences segment playback. At most one playback is active at
// any time; queued items play in strict arrival order. All exported methods
// are safe for concurrent use.
type Scheduler struct {
	sink        Sink
	decoder     Decoder
	onSpeaking  func(bool)
	onDecodeErr func()
	onQueue     func(delta int)

	mu      sync.Mutex
	queue   []Item
	playing bool
	cancel  func() // interrupts the active playback, nil when idle
	closed  bool
}

// NewScheduler creates a scheduler playing through sink, decoding items
// with decoder. Neither may be nil.
func NewScheduler(sink Sink, decoder Decoder, opts ...Option) *Scheduler {
	s := &Scheduler{sink: sink, decoder: decoder}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue appends item to the queue. If no playback is active the chain
// starts immediately; otherwise the item waits its turn. Items enqueued
// after Close are discarded.
func (s *Scheduler) Enqueue(item Item) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, item)
	s.notifyQueue(1)
	if s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = true
	s.mu.Unlock()

	s.notifySpeaking(true)
	s.playNext()
}

// QueueLen reports the number of items waiting behind the active playback.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Playing reports whether a playback is currently active or the chain is
// draining.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Flush discards all queued items and cancels the active playback, if any.
// The session stays usable: subsequent Enqueue calls start a new chain.
// Used for server-initiated interruption (user barge-in).
func (s *Scheduler) Flush() {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	cancel := s.cancel
	s.mu.Unlock()

	s.notifyQueue(-dropped)

	if dropped > 0 {
		slog.Debug("playback: flushed queued segments", "count", dropped)
	}
	if cancel != nil {
		// The sink still fires onDone for the cancelled item, which
		// advances the chain into the now-empty queue and lands idle.
		cancel()
	}
}

// Close cancels any active playback, discards the queue, and releases the
// sink. Safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	cancel := s.cancel
	s.cancel = nil
	wasPlaying := s.playing
	s.playing = false
	s.mu.Unlock()

	s.notifyQueue(-dropped)
	if cancel != nil {
		cancel()
	}
	if wasPlaying {
		s.notifySpeaking(false)
	}
	return s.sink.Close()
}

// playToken links one sink.Start call to its completion signal. Both fields
// are guarded by the scheduler mutex. The sink may fire onDone from its own
// goroutine before Start has even returned; the token lets the start frame
// and the completion agree on who owns the now-playing slot.
type playToken struct {
	// stored means the start frame recorded this item's cancel func.
	stored bool

	// completed means onDone ran before the cancel was recorded. The start
	// frame must then leave s.cancel alone: the chain has already advanced
	// past this item.
	completed bool
}

// playNext pops head items until one starts playing or the queue is empty.
// Items that fail to decode or start are skipped without pausing the chain.
func (s *Scheduler) playNext() {
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			s.playing = false
			s.cancel = nil
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.notifySpeaking(false)
			}
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.notifyQueue(-1)

		pcm, rate, err := s.decoder.Decode(context.Background(), item)
		if err != nil {
			slog.Warn("playback: segment decode failed, skipping",
				"format", item.Format,
				"bytes", len(item.Data),
				"err", err,
			)
			if s.onDecodeErr != nil {
				s.onDecodeErr()
			}
			continue
		}

		tok := &playToken{}
		cancel, err := s.sink.Start(pcm, rate, func() { s.onItemDone(tok) })
		if err != nil {
			slog.Warn("playback: sink start failed, skipping segment", "err", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			// Close raced the start; stop the item it could not see.
			s.mu.Unlock()
			cancel()
			return
		}
		if tok.completed {
			// The item finished while Start was unwinding and the
			// completion already continued the chain. Recording its
			// cancel now would clobber the handle of whatever is
			// playing in its place.
			s.mu.Unlock()
			return
		}
		tok.stored = true
		s.cancel = cancel
		s.mu.Unlock()
		return
	}
}

// onItemDone is the completion signal from the sink. It continues draining.
func (s *Scheduler) onItemDone(tok *playToken) {
	s.mu.Lock()
	if tok.stored {
		s.cancel = nil
	} else {
		tok.completed = true
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.playNext()
}

func (s *Scheduler) notifySpeaking(speaking bool) {
	if s.onSpeaking != nil {
		s.onSpeaking(speaking)
	}
}

func (s *Scheduler) notifyQueue(delta int) {
	if s.onQueue != nil && delta != 0 {
		s.onQueue(delta)
	}
}

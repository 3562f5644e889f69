// Package session owns the call lifecycle: resource acquisition in a fixed
// order, the duplex streaming loops, and teardown that releases everything
// acquired regardless of how the session ended.
//
// A manager runs at most one session at a time. The lifecycle is
// idle -> starting -> active -> closing -> idle; see [State].
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalink/internal/backend"
	"github.com/MrWong99/vocalink/internal/observe"
	"github.com/MrWong99/vocalink/internal/transport"
	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/audio/playback"
)

// ErrSessionActive is returned by Start when a session already exists.
var ErrSessionActive = errors.New("session: a session is already active")

// hangupTimeout bounds the best-effort hangup notification on user-initiated
// closure.
const hangupTimeout = 2 * time.Second

// finalizeTimeout bounds the best-effort call-log post at teardown.
const finalizeTimeout = 5 * time.Second

// Transport is the duplex message channel to the agent, as used by the
// manager. *transport.Channel satisfies it.
type Transport interface {
	SendFrame(ctx context.Context, frame audio.Frame) error
	SendHangup(ctx context.Context) error
	Receive(ctx context.Context, h transport.Handler) error
	Close() error
}

// Capture is the microphone frame source, as used by the manager.
// *capture.Pipeline satisfies it.
type Capture interface {
	Start(ctx context.Context) error
	Frames() <-chan audio.Frame
	Dropped() uint64
	Close() error
}

// Player sequences inbound segment playback. *playback.Scheduler satisfies
// it.
type Player interface {
	Enqueue(item playback.Item)
	Flush()
	Close() error
}

// Config holds the manager's injected dependencies. Dial and NewCapture are
// required; everything else is optional.
type Config struct {
	// Dial opens the agent channel for a session.
	Dial func(ctx context.Context, sessionID string) (Transport, error)

	// NewCapture acquires the microphone and builds the capture pipeline.
	// Acquisition happens here; streaming starts when the manager calls
	// Capture.Start.
	NewCapture func() (Capture, error)

	// NewPlayer builds the playback chain. onSpeaking reports agent
	// speaking transitions and is safe to call from playback goroutines.
	NewPlayer func(onSpeaking func(bool)) (Player, error)

	// Backend, when set, is notified at teardown with the session's call
	// log. Failures are logged, never fatal.
	Backend *backend.Client

	// Metrics defaults to [observe.Default] when nil.
	Metrics *observe.Metrics

	// OnTranscript, when set, receives transcript lines as they arrive.
	OnTranscript func(text string)

	// OnStatus, when set, is called after every state change with a fresh
	// snapshot.
	OnStatus func(Status)
}

// Status is a point-in-time snapshot of the manager for display surfaces.
type Status struct {
	State         State
	SessionID     string
	MicActive     bool
	TransportUp   bool
	AgentSpeaking bool
}

// Manager drives one session at a time through its lifecycle. All exported
// methods are safe for concurrent use.
type Manager struct {
	cfg     Config
	metrics *observe.Metrics

	mu        sync.Mutex
	state     State
	sessionID string
	startedAt time.Time
	tr        Transport
	mic       Capture
	player    Player
	cancel    context.CancelFunc
	done      chan struct{}
	speaking  bool
	turns     []backend.CallTurn
}

// NewManager creates a manager in the idle state.
func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg, metrics: cfg.Metrics}
	if m.metrics == nil {
		m.metrics = observe.Default()
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	return Status{
		State:         m.state,
		SessionID:     m.sessionID,
		MicActive:     m.mic != nil,
		TransportUp:   m.tr != nil,
		AgentSpeaking: m.speaking,
	}
}

// Done returns a channel closed when the current session has fully torn
// down. Returns nil when no session is active.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Start acquires resources in order (microphone, channel, playback) and
// begins streaming. On any acquisition failure everything already acquired
// is released and the manager returns to idle.
//
// Returns [ErrSessionActive] if a session already exists.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.state = StateStarting
	m.sessionID = sessionID
	m.mu.Unlock()
	m.notifyStatus()

	mic, err := m.cfg.NewCapture()
	if err != nil {
		m.abortStart()
		return fmt.Errorf("session: acquire microphone: %w", err)
	}

	tr, err := m.cfg.Dial(ctx, sessionID)
	if err != nil {
		_ = mic.Close()
		m.abortStart()
		return fmt.Errorf("session: connect: %w", err)
	}

	var player Player
	if m.cfg.NewPlayer != nil {
		player, err = m.cfg.NewPlayer(m.setSpeaking)
		if err != nil {
			_ = tr.Close()
			_ = mic.Close()
			m.abortStart()
			return fmt.Errorf("session: playback init: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := mic.Start(runCtx); err != nil {
		cancel()
		if player != nil {
			_ = player.Close()
		}
		_ = tr.Close()
		_ = mic.Close()
		m.abortStart()
		return fmt.Errorf("session: start capture: %w", err)
	}

	m.mu.Lock()
	m.state = StateActive
	m.startedAt = time.Now()
	m.tr = tr
	m.mic = mic
	m.player = player
	m.cancel = cancel
	m.done = make(chan struct{})
	m.turns = nil
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(context.Background(), 1)
	slog.Info("session started", "session_id", sessionID)
	m.notifyStatus()

	go m.run(runCtx, tr, mic)
	return nil
}

// abortStart returns the manager to idle after a failed acquisition step.
func (m *Manager) abortStart() {
	m.mu.Lock()
	m.state = StateIdle
	m.sessionID = ""
	m.mu.Unlock()
	m.notifyStatus()
}

// run hosts the sender and receiver loops. Whichever fails first cancels
// the other; any non-cancellation error triggers abnormal teardown.
func (m *Manager) run(ctx context.Context, tr Transport, mic Capture) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case frame, ok := <-mic.Frames():
				if !ok {
					return nil
				}
				if err := tr.SendFrame(gctx, frame); err != nil {
					return err
				}
				m.metrics.FramesSent.Add(gctx, 1)
				m.metrics.AudioBytesSent.Add(gctx, int64(len(frame)*2))
			}
		}
	})

	g.Go(func() error {
		return tr.Receive(gctx, m)
	})

	err := g.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, transport.ErrServerHangup):
		slog.Info("session: server ended the call")
		m.shutdown(context.Background(), false, "server-hangup")
	default:
		slog.Warn("session: stream failed", "err", err)
		m.shutdown(context.Background(), false, "stream-error")
	}
}

// Hangup ends the active session on user request. The hangup notification
// is sent before the channel closes, bounded by ctx and an internal
// timeout. When no session is active this is a no-op and returns nil, so
// repeated hangups are harmless.
func (m *Manager) Hangup(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	m.shutdown(ctx, true, "user-hangup")
	return nil
}

// OnAudio implements [transport.Handler]: inbound segments are queued for
// playback in arrival order.
func (m *Manager) OnAudio(seg transport.Segment) {
	m.mu.Lock()
	player := m.player
	m.mu.Unlock()
	if player == nil {
		return
	}
	m.metrics.SegmentsReceived.Add(context.Background(), 1)
	player.Enqueue(playback.Item{
		Data:       seg.Audio,
		Format:     seg.Format,
		SampleRate: seg.SampleRate,
	})
}

// OnTranscript implements [transport.Handler]: transcript lines are
// recorded in the call log and forwarded to the configured callback.
func (m *Manager) OnTranscript(text string) {
	m.metrics.Transcripts.Add(context.Background(), 1)
	m.mu.Lock()
	m.turns = append(m.turns, backend.CallTurn{
		Role:      "user",
		Text:      text,
		Timestamp: time.Now(),
	})
	m.mu.Unlock()
	if m.cfg.OnTranscript != nil {
		m.cfg.OnTranscript(text)
	}
}

// OnInterrupt implements [transport.Handler]: the agent was interrupted, so
// pending playback is stale and gets flushed.
func (m *Manager) OnInterrupt() {
	m.mu.Lock()
	player := m.player
	m.mu.Unlock()
	if player != nil {
		player.Flush()
	}
}

// setSpeaking records agent speaking transitions for status snapshots.
func (m *Manager) setSpeaking(speaking bool) {
	m.mu.Lock()
	m.speaking = speaking
	m.mu.Unlock()
	m.notifyStatus()
}

// shutdown moves the session from active to closing exactly once; later
// callers return immediately. sendHangup is true only for user-initiated
// closure; the hangup send honors ctx in addition to its own timeout, and
// a failed send never blocks teardown.
func (m *Manager) shutdown(ctx context.Context, sendHangup bool, reason string) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	sessionID := m.sessionID
	tr := m.tr
	cancel := m.cancel
	m.mu.Unlock()
	m.notifyStatus()

	slog.Info("session closing", "session_id", sessionID, "reason", reason)

	if sendHangup {
		sendCtx, cancelSend := context.WithTimeout(ctx, hangupTimeout)
		if err := tr.SendHangup(sendCtx); err != nil {
			slog.Warn("session: hangup send failed", "session_id", sessionID, "err", err)
		}
		cancelSend()
	}

	cancel()
	m.teardown(reason)
}

// teardown releases resources in reverse acquisition order: capture first
// so the microphone is freed immediately, then playback, then the channel.
// It always lands the manager back in idle.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	sessionID := m.sessionID
	startedAt := m.startedAt
	tr := m.tr
	mic := m.mic
	player := m.player
	done := m.done
	turns := m.turns
	m.mu.Unlock()

	if mic != nil {
		if dropped := mic.Dropped(); dropped > 0 {
			m.metrics.FramesDropped.Add(context.Background(), int64(dropped))
			slog.Warn("session: capture dropped frames", "session_id", sessionID, "count", dropped)
		}
		if err := mic.Close(); err != nil {
			slog.Warn("session: capture close error", "session_id", sessionID, "err", err)
		}
		// The frame channel is closed now; discard whatever the sender
		// loop never picked up.
		audio.Drain(mic.Frames())
	}

	if player != nil {
		player.Flush()
		if err := player.Close(); err != nil {
			slog.Warn("session: playback close error", "session_id", sessionID, "err", err)
		}
	}

	if tr != nil {
		if err := tr.Close(); err != nil {
			slog.Warn("session: channel close error", "session_id", sessionID, "err", err)
		}
	}

	if m.cfg.Backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		err := m.cfg.Backend.FinalizeCall(ctx, sessionID, backend.CallLog{
			Outcome: reason,
			Turns:   turns,
		})
		cancel()
		if err != nil {
			slog.Warn("session: call finalize failed", "session_id", sessionID, "err", err)
		}
	}

	duration := time.Since(startedAt)
	m.metrics.ActiveSessions.Add(context.Background(), -1)
	m.metrics.SessionDuration.Record(context.Background(), duration.Seconds())

	m.mu.Lock()
	m.state = StateIdle
	m.sessionID = ""
	m.tr = nil
	m.mic = nil
	m.player = nil
	m.cancel = nil
	m.done = nil
	m.speaking = false
	m.turns = nil
	m.mu.Unlock()

	slog.Info("session ended",
		"session_id", sessionID,
		"reason", reason,
		"duration", duration.Round(time.Millisecond),
	)
	m.notifyStatus()

	if done != nil {
		close(done)
	}
}

func (m *Manager) notifyStatus() {
	if m.cfg.OnStatus == nil {
		return
	}
	m.mu.Lock()
	st := m.statusLocked()
	m.mu.Unlock()
	m.cfg.OnStatus(st)
}

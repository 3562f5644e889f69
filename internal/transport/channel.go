package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalink/pkg/audio"
)

// ErrServerHangup is returned by [Channel.Receive] when the agent server
// ends the call with a hangup message. The session must tear down without
// echoing a hangup envelope back.
var ErrServerHangup = errors.New("transport: server requested hangup")

// maxMessageSize bounds inbound messages. Synthesized segments can run to
// several seconds of audio, so this is generous: 8 MiB of base64 is over
// two minutes of 16 kHz PCM16.
const maxMessageSize = 8 << 20

// Channel is one duplex message channel to the agent server, bound to a
// single session. Writes are serialized internally; Receive runs on the
// caller's goroutine.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Dial opens the session's channel at baseURL/sessionID. The context
// governs the connection attempt only; the channel stays open until Close
// or a transport failure.
func Dial(ctx context.Context, baseURL, sessionID string) (*Channel, error) {
	wsURL := strings.TrimRight(baseURL, "/") + "/" + sessionID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Channel{conn: conn}, nil
}

// SendFrame writes one captured frame as an audio_data envelope.
func (c *Channel) SendFrame(ctx context.Context, frame audio.Frame) error {
	return c.writeJSON(ctx, envelope{
		Type:   TypeAudioData,
		Audio:  base64.StdEncoding.EncodeToString(frame.Bytes()),
		Format: FormatPCM16K,
	})
}

// SendHangup writes the hangup envelope. Sent exactly once, and only for
// user-initiated closure; abnormal closures never call this.
func (c *Channel) SendHangup(ctx context.Context) error {
	return c.writeJSON(ctx, envelope{Type: TypeHangup})
}

// Receive reads inbound messages and dispatches them to h until the
// context is cancelled or the channel fails. The returned error is the
// transport failure; context cancellation returns ctx.Err().
func (c *Channel) Receive(ctx context.Context, h Handler) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transport: read: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("transport: malformed message: %w", err)
		}

		switch env.Type {
		case TypeAudioResponse:
			payload, err := base64.StdEncoding.DecodeString(env.Audio)
			if err != nil || len(payload) == 0 {
				// Bad payload in an otherwise well-formed envelope is a
				// per-segment failure, not a channel failure.
				slog.Warn("transport: dropping audio_response with bad payload", "err", err)
				continue
			}
			h.OnAudio(Segment{Audio: payload, Format: env.Format, SampleRate: env.SampleRate})

		case TypeTranscript:
			if env.Text != "" {
				h.OnTranscript(env.Text)
			}

		case TypeInterrupt:
			h.OnInterrupt()

		case TypeHangup:
			// The server ended the call; stop reading so the session can
			// tear down.
			return ErrServerHangup

		default:
			// Unknown types are ignored for forward compatibility.
			slog.Debug("transport: ignoring message", "type", env.Type)
		}
	}
}

// writeJSON marshals v and writes it as one text message.
func (c *Channel) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close closes the channel with a normal-closure status. Safe to call more
// than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close(websocket.StatusNormalClosure, "session closed")
}

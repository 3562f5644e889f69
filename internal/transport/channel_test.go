package transport_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalink/internal/transport"
	"github.com/MrWong99/vocalink/pkg/audio"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startAgentServer launches a test WebSocket server. The handler receives
// the accepted conn and the request. The server closes with the test.
func startAgentServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// recordingHandler collects dispatched messages for assertions.
type recordingHandler struct {
	mu          sync.Mutex
	segments    []transport.Segment
	transcripts []string
	interrupts  int
}

func (h *recordingHandler) OnAudio(seg transport.Segment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.segments = append(h.segments, seg)
}

func (h *recordingHandler) OnTranscript(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transcripts = append(h.transcripts, text)
}

func (h *recordingHandler) OnInterrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interrupts++
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestDial_AppendsSessionID(t *testing.T) {
	t.Parallel()
	paths := make(chan string, 1)
	srv := startAgentServer(t, func(conn *websocket.Conn, r *http.Request) {
		paths <- r.URL.Path
		<-conn.CloseRead(context.Background()).Done()
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv)+"/ws/", "sess-42")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	select {
	case p := <-paths:
		if p != "/ws/sess-42" {
			t.Errorf("path = %q; want /ws/sess-42", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never accepted")
	}
}

func TestSendFrame_EnvelopeFields(t *testing.T) {
	t.Parallel()
	envelopes := make(chan map[string]any, 1)
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		envelopes <- raw
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	frame := audio.Frame{1, -1, 32767, -32768}
	if err := ch.SendFrame(context.Background(), frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	select {
	case env := <-envelopes:
		if env["type"] != "audio_data" {
			t.Errorf("type = %v; want audio_data", env["type"])
		}
		if env["format"] != "pcm16k" {
			t.Errorf("format = %v; want pcm16k", env["format"])
		}
		decoded, err := base64.StdEncoding.DecodeString(env["audio"].(string))
		if err != nil {
			t.Fatalf("audio field is not valid base64: %v", err)
		}
		got := audio.FrameFromBytes(decoded)
		for i := range frame {
			if got[i] != frame[i] {
				t.Fatalf("payload sample %d = %d; want %d", i, got[i], frame[i])
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no envelope received")
	}
}

func TestSendHangup_Envelope(t *testing.T) {
	t.Parallel()
	envelopes := make(chan map[string]any, 1)
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		envelopes <- raw
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	if err := ch.SendHangup(context.Background()); err != nil {
		t.Fatalf("SendHangup: %v", err)
	}

	select {
	case env := <-envelopes:
		if env["type"] != "hangup" {
			t.Errorf("type = %v; want hangup", env["type"])
		}
		if _, ok := env["audio"]; ok {
			t.Error("hangup envelope carries an audio field")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no envelope received")
	}
}

func TestReceive_DispatchesMessages(t *testing.T) {
	t.Parallel()
	payload := audio.Frame{5, 6, 7}.Bytes()
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeJSON(t, conn, map[string]any{
			"type":        "audio_response",
			"audio":       base64.StdEncoding.EncodeToString(payload),
			"format":      "pcm16k",
			"sample_rate": 16000,
		})
		writeJSON(t, conn, map[string]any{"type": "transcript", "text": "hello there"})
		writeJSON(t, conn, map[string]any{"type": "interrupt"})
		// Unknown types must be ignored, not treated as failures.
		writeJSON(t, conn, map[string]any{"type": "telemetry", "blob": "x"})
		writeJSON(t, conn, map[string]any{"type": "transcript", "text": "second"})
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	h := &recordingHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() {
		for {
			h.mu.Lock()
			n := len(h.transcripts)
			h.mu.Unlock()
			if n >= 2 {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()

	err = ch.Receive(ctx, h)
	if ctx.Err() == nil {
		t.Fatalf("Receive returned early: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.segments) != 1 {
		t.Fatalf("segments = %d; want 1", len(h.segments))
	}
	seg := h.segments[0]
	if seg.Format != "pcm16k" || seg.SampleRate != 16000 {
		t.Errorf("segment meta = %q/%d; want pcm16k/16000", seg.Format, seg.SampleRate)
	}
	if len(seg.Audio) != len(payload) {
		t.Errorf("segment payload = %d bytes; want %d", len(seg.Audio), len(payload))
	}
	if len(h.transcripts) != 2 || h.transcripts[0] != "hello there" {
		t.Errorf("transcripts = %v", h.transcripts)
	}
	if h.interrupts != 1 {
		t.Errorf("interrupts = %d; want 1", h.interrupts)
	}
}

func TestReceive_BadPayloadSkipsSegment(t *testing.T) {
	t.Parallel()
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeJSON(t, conn, map[string]any{"type": "audio_response", "audio": "!!!not-base64!!!"})
		writeJSON(t, conn, map[string]any{"type": "transcript", "text": "still alive"})
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	h := &recordingHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	go func() {
		for {
			h.mu.Lock()
			n := len(h.transcripts)
			h.mu.Unlock()
			if n >= 1 {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()
	defer cancel()

	_ = ch.Receive(ctx, h)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.segments) != 0 {
		t.Errorf("segments = %d; want 0 (bad payload dropped)", len(h.segments))
	}
	if len(h.transcripts) != 1 {
		t.Errorf("transcripts = %v; want the message after the bad one", h.transcripts)
	}
}

func TestReceive_ServerHangupEndsReadLoop(t *testing.T) {
	t.Parallel()
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		writeJSON(t, conn, map[string]any{"type": "transcript", "text": "bye"})
		writeJSON(t, conn, map[string]any{"type": "hangup"})
		// Anything after the hangup must never be dispatched.
		writeJSON(t, conn, map[string]any{"type": "transcript", "text": "too late"})
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	h := &recordingHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err = ch.Receive(ctx, h)
	if !errors.Is(err, transport.ErrServerHangup) {
		t.Fatalf("Receive = %v; want ErrServerHangup", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.transcripts) != 1 || h.transcripts[0] != "bye" {
		t.Errorf("transcripts = %v; want only the message before the hangup", h.transcripts)
	}
}

func TestReceive_MalformedJSONFailsChannel(t *testing.T) {
	t.Parallel()
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = conn.Write(ctx, websocket.MessageText, []byte("{not json"))
		<-conn.CloseRead(context.Background()).Done()
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err = ch.Receive(ctx, &recordingHandler{})
	if err == nil || ctx.Err() != nil {
		t.Fatalf("Receive = %v; want malformed-message error before timeout", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()
	srv := startAgentServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	ch, err := transport.Dial(context.Background(), wsURL(srv), "s1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

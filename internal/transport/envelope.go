// Package transport implements the JSON wire protocol between vocalink and
// the agent server, and the WebSocket channel that carries it.
//
// Outbound messages (client → server):
//
//	{"type":"audio_data","audio":"<base64 pcm16le>","format":"pcm16k"}
//	{"type":"hangup"}
//
// Inbound messages (server → client):
//
//	{"type":"audio_response","audio":"<base64 segment>","format":...,"sample_rate":...}
//	{"type":"transcript","text":"..."}
//	{"type":"interrupt"}
//	{"type":"hangup"}
//
// An inbound hangup ends the read loop (see [ErrServerHangup]).
// Unrecognized inbound types are ignored so the server can add message
// kinds without breaking deployed clients.
package transport

// Wire message type tags.
const (
	TypeAudioData     = "audio_data"
	TypeHangup        = "hangup"
	TypeAudioResponse = "audio_response"
	TypeTranscript    = "transcript"
	TypeInterrupt     = "interrupt"
)

// FormatPCM16K tags outbound frames as 16 kHz little-endian PCM16.
const FormatPCM16K = "pcm16k"

// envelope is the superset of fields across all wire messages. One struct
// keeps encode/decode symmetric; the Type field selects which of the rest
// are meaningful.
type envelope struct {
	Type       string `json:"type"`
	Audio      string `json:"audio,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Segment is one synthesized audio segment lifted out of an audio_response
// envelope, with the base64 layer already removed.
type Segment struct {
	// Audio is the decoded segment payload.
	Audio []byte

	// Format is the payload encoding tag; empty means pcm16k.
	Format string

	// SampleRate is the source rate for raw PCM payloads, 0 when omitted.
	SampleRate int
}

// Handler receives dispatched inbound messages. Methods are invoked from
// the channel's receive loop; implementations must not block for long.
type Handler interface {
	// OnAudio delivers one synthesized segment for playback.
	OnAudio(seg Segment)

	// OnTranscript surfaces a recognized user utterance for display.
	OnTranscript(text string)

	// OnInterrupt tells the client the user barged in: flush queued
	// playback immediately.
	OnInterrupt()
}

package playback_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/vocalink/pkg/audio"
	"github.com/MrWong99/vocalink/pkg/audio/playback"
)

func TestStandardDecoder_RawPCMPassthrough(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()
	data := audio.Frame{100, -100, 32767}.Bytes()

	for _, format := range []string{"", "pcm16k", "pcm16", "PCM16K"} {
		pcm, rate, err := d.Decode(context.Background(), playback.Item{
			Data: data, Format: format, SampleRate: 24000,
		})
		if err != nil {
			t.Fatalf("Decode(%q): %v", format, err)
		}
		if !bytes.Equal(pcm, data) {
			t.Errorf("Decode(%q) altered the payload", format)
		}
		if rate != 24000 {
			t.Errorf("Decode(%q) rate = %d; want 24000", format, rate)
		}
	}
}

func TestStandardDecoder_RawPCMDefaultRate(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()
	_, rate, err := d.Decode(context.Background(), playback.Item{
		Data: audio.Frame{1, 2}.Bytes(), Format: "pcm16k",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != audio.TargetSampleRate {
		t.Errorf("rate = %d; want %d", rate, audio.TargetSampleRate)
	}
}

func TestStandardDecoder_RejectsBadPCM(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()

	if _, _, err := d.Decode(context.Background(), playback.Item{Format: "pcm16k"}); err == nil {
		t.Error("empty payload accepted")
	}
	if _, _, err := d.Decode(context.Background(), playback.Item{
		Data: []byte{1, 2, 3}, Format: "pcm16k",
	}); err == nil {
		t.Error("odd-length payload accepted")
	}
}

func TestStandardDecoder_UnknownFormat(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()
	_, _, err := d.Decode(context.Background(), playback.Item{
		Data: []byte{0, 0}, Format: "mp3",
	})
	if !errors.Is(err, playback.ErrUnknownFormat) {
		t.Fatalf("error = %v; want ErrUnknownFormat", err)
	}
}

// buildWAV assembles a minimal RIFF/WAVE file around the given PCM data.
func buildWAV(t *testing.T, rate, channels, bits int, pcm []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	buf.WriteString("RIFF")
	write(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(rate))
	write(uint32(rate * channels * bits / 8))
	write(uint16(channels * bits / 8))
	write(uint16(bits))
	buf.WriteString("data")
	write(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func TestStandardDecoder_WAVMono(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()
	samples := audio.Frame{10, -10, 300}.Bytes()

	pcm, rate, err := d.Decode(context.Background(), playback.Item{
		Data: buildWAV(t, 22050, 1, 16, samples), Format: "wav",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate = %d; want 22050", rate)
	}
	if !bytes.Equal(pcm, samples) {
		t.Errorf("pcm = %v; want %v", audio.FrameFromBytes(pcm), audio.FrameFromBytes(samples))
	}
}

func TestStandardDecoder_WAVStereoDownmix(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()
	stereo := audio.Frame{100, 200, -100, -200}.Bytes() // L,R,L,R

	pcm, _, err := d.Decode(context.Background(), playback.Item{
		Data: buildWAV(t, 16000, 2, 16, stereo), Format: "wav",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := audio.FrameFromBytes(pcm)
	want := audio.Frame{150, -150}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("downmix = %v; want %v", got, want)
	}
}

func TestStandardDecoder_RejectsBadWAV(t *testing.T) {
	t.Parallel()
	d := playback.NewStandardDecoder()

	cases := map[string][]byte{
		"not riff":  []byte("this is not a wav file at all!"),
		"truncated": buildWAV(t, 16000, 1, 16, audio.Frame{1, 2}.Bytes())[:20],
		"8-bit":     buildWAV(t, 16000, 1, 8, []byte{1, 2, 3, 4}),
	}
	for name, data := range cases {
		if _, _, err := d.Decode(context.Background(), playback.Item{
			Data: data, Format: "wav",
		}); err == nil {
			t.Errorf("%s wav accepted", name)
		}
	}
}

package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/vocalink/pkg/audio"
)

func TestNewResampler_IdentityRate(t *testing.T) {
	t.Parallel()
	_, err := audio.NewResampler(16000, 16000)
	if !errors.Is(err, audio.ErrIdentityRate) {
		t.Fatalf("NewResampler(16000, 16000) error = %v; want ErrIdentityRate", err)
	}
}

func TestNewResampler_InvalidRates(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct{ from, to int }{
		{0, 16000},
		{48000, 0},
		{-1, 16000},
		{48000, -8000},
	} {
		if _, err := audio.NewResampler(tc.from, tc.to); err == nil {
			t.Errorf("NewResampler(%d, %d) succeeded; want error", tc.from, tc.to)
		}
	}
}

func TestResample_OutputLength(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		from, to int
		in       int
		want     int
	}{
		{48000, 16000, 480, 160},
		{48000, 16000, 481, 160}, // fractional remainder floors
		{44100, 16000, 441, 160},
		{44100, 16000, 1024, 371}, // floor(1024 * 16000 / 44100)
		{8000, 16000, 100, 200},
	} {
		rs, err := audio.NewResampler(tc.from, tc.to)
		if err != nil {
			t.Fatalf("NewResampler(%d, %d): %v", tc.from, tc.to, err)
		}
		out := rs.Resample(make([]float32, tc.in))
		if len(out) != tc.want {
			t.Errorf("Resample %d->%d of %d samples: got %d, want %d",
				tc.from, tc.to, tc.in, len(out), tc.want)
		}
	}
}

func TestResample_EmptyInput(t *testing.T) {
	t.Parallel()
	rs, err := audio.NewResampler(48000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if out := rs.Resample(nil); len(out) != 0 {
		t.Errorf("Resample(nil) returned %d samples; want 0", len(out))
	}
}

func TestResample_PreservesConstantSignal(t *testing.T) {
	t.Parallel()
	rs, err := audio.NewResampler(48000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]float32, 480)
	for i := range in {
		in[i] = 0.5
	}
	for i, s := range rs.Resample(in) {
		if s != 0.5 {
			t.Fatalf("sample %d = %v; want 0.5", i, s)
		}
	}
}

func TestResample_InterpolatesRamp(t *testing.T) {
	t.Parallel()
	rs, err := audio.NewResampler(32000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	// A linear ramp survives linear interpolation exactly (ratio 2 picks
	// every other point, which lies on the ramp).
	in := make([]float32, 64)
	for i := range in {
		in[i] = float32(i) / 64
	}
	out := rs.Resample(in)
	for i, s := range out {
		want := float32(i*2) / 64
		if math.Abs(float64(s-want)) > 1e-6 {
			t.Fatalf("sample %d = %v; want %v", i, s, want)
		}
	}
}

func TestResamplePCM16_Identity(t *testing.T) {
	t.Parallel()
	pcm := audio.Frame{1, 2, 3, 4}.Bytes()
	out := audio.ResamplePCM16(pcm, 16000, 16000)
	if &out[0] != &pcm[0] {
		t.Error("identity resample copied the buffer")
	}
}

func TestResamplePCM16_Upsamples(t *testing.T) {
	t.Parallel()
	in := make(audio.Frame, 160)
	for i := range in {
		in[i] = 1000
	}
	out := audio.FrameFromBytes(audio.ResamplePCM16(in.Bytes(), 16000, 48000))
	if len(out) != 480 {
		t.Fatalf("got %d samples; want 480", len(out))
	}
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d; want 1000", i, s)
		}
	}
}

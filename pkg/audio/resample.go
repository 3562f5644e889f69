package audio

import (
	"errors"
	"fmt"
)

// ErrIdentityRate is returned by [NewResampler] when source and target rates
// are equal. Callers must take the bypass path instead of resampling with a
// ratio of 1 — the identity case has to be bit-transparent.
var ErrIdentityRate = errors.New("audio: source and target rates are equal, bypass the resampler")

// Resampler converts mono float samples between two fixed sample rates using
// linear interpolation. It carries no state between calls: each Resample
// call is a pure function of the configured ratio and its input.
//
// This is a deliberately low-fidelity O(n) conversion. Mild aliasing is
// acceptable because the downstream recognizer tolerates it, and the render
// callback budget does not.
type Resampler struct {
	fromRate int
	toRate   int
	ratio    float64
}

// NewResampler creates a converter from fromRate to toRate (both in Hz).
// Equal rates yield [ErrIdentityRate]; non-positive rates are rejected.
func NewResampler(fromRate, toRate int) (*Resampler, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate {
		return nil, ErrIdentityRate
	}
	return &Resampler{
		fromRate: fromRate,
		toRate:   toRate,
		ratio:    float64(fromRate) / float64(toRate),
	}, nil
}

// FromRate returns the configured source rate in Hz.
func (r *Resampler) FromRate() int { return r.fromRate }

// ToRate returns the configured target rate in Hz.
func (r *Resampler) ToRate() int { return r.toRate }

// Resample converts in to the target rate. The output length is
// floor(len(in) / ratio); an empty input yields an empty output.
func (r *Resampler) Resample(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	outLen := int(float64(len(in)) / r.ratio)
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * r.ratio
		lo := int(pos)
		hi := lo + 1
		if hi > len(in)-1 {
			hi = len(in) - 1
		}
		frac := float32(pos - float64(lo))
		out[i] = in[lo] + (in[hi]-in[lo])*frac
	}
	return out
}

// ResamplePCM16 resamples little-endian int16 mono PCM from srcRate to
// dstRate using the same linear interpolation as [Resampler]. Used on the
// playback side, where decoded segments arrive as raw PCM bytes. If the
// rates match the input is returned unchanged.
func ResamplePCM16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := FrameFromBytes(pcm)
	dstLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}
	ratio := float64(srcRate) / float64(dstRate)
	out := make(Frame, dstLen)
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		hi := lo + 1
		if hi > len(src)-1 {
			hi = len(src) - 1
		}
		frac := pos - float64(lo)
		out[i] = int16(float64(src[lo])*(1-frac) + float64(src[hi])*frac)
	}
	return out.Bytes()
}

package audio

// EncodePCM16 converts normalized float samples to 16-bit signed PCM.
// Each sample is clamped to [-1, 1] first. Negative values scale by 32768
// and non-negative values by 32767, which covers the asymmetric int16 range
// exactly without overflowing at +1.0.
func EncodePCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// DecodePCM16 converts 16-bit signed samples back to normalized floats,
// mirroring the asymmetric scaling of [EncodePCM16].
func DecodePCM16(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		if s < 0 {
			out[i] = float32(s) / 32768
		} else {
			out[i] = float32(s) / 32767
		}
	}
	return out
}

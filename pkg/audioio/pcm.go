// Package audioio converts participant PCM16 audio to the format a voice
// runtime expects: mono, little-endian, at the runtime's sample rate.
package audioio

// Normalize converts little-endian PCM16 with the given channel count and
// rate to mono at toRate. A zero rate or channel count is taken to already
// match. Odd trailing bytes are dropped.
func Normalize(pcm []byte, fromRate, channels, toRate int) []byte {
	if (fromRate == 0 || fromRate == toRate) && channels <= 1 {
		return pcm
	}
	samples := Samples(pcm)
	if channels == 2 {
		samples = Downmix(samples)
	}
	if fromRate != 0 {
		samples = Resample(samples, fromRate, toRate)
	}
	return Bytes(samples)
}

// Resample changes the rate of mono samples by linear interpolation, which
// is good enough for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	step := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / step)
	out := make([]int16, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(a + (pos-float64(idx))*(b-a))
	}
	return out
}

// Downmix averages interleaved stereo samples to mono.
func Downmix(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return mono
}

// Samples decodes little-endian PCM16.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
	}
	return out
}

// Bytes encodes samples as little-endian PCM16.
func Bytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

package audio

import (
	"encoding/binary"
	"math"
)

// Downmix averages interleaved frames of the given channel count into a new
// mono slice. A trailing partial frame is ignored. The result never aliases in.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from one rate to another using linear
// interpolation between neighbouring samples.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(in)) / ratio)
	out := make([]float32, n)
	last := len(in) - 1

	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo > last {
			lo = last
		}
		hi := min(lo+1, last)
		frac := float32(pos - float64(lo))
		out[i] = in[lo] + (in[hi]-in[lo])*frac
	}
	return out
}

// PCM16 encodes samples as 16-bit little-endian PCM, clamping to [-1, 1].
func PCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return buf
}

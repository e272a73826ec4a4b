package whisper

import (
	"encoding/binary"
	"math"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM audio that
// whisper.cpp expects.
const bitsPerSample = 16

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. An empty buffer has zero energy.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}

// durationMs returns the duration in milliseconds of a mono PCM buffer at
// the given sample rate. Returns 0 for a non-positive rate.
func durationMs(numBytes, sampleRate int) int {
	bps := bytesPerMs(sampleRate)
	if bps <= 0 {
		return 0
	}
	return numBytes / bps
}

// bytesPerMs returns the number of PCM bytes per millisecond of mono audio.
func bytesPerMs(sampleRate int) int {
	return sampleRate * (bitsPerSample / 8) / 1000
}

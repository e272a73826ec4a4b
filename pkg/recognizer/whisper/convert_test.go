package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()

	got := pcmToFloat32(pcm16(0, 32767, -32768, 16384))
	want := []float32{0, 32767.0 / 32768.0, -1, 0.5}

	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCMToFloat32_OddTrailingByteIgnored(t *testing.T) {
	t.Parallel()

	buf := append(pcm16(100, 200), 0x7f)
	if got := pcmToFloat32(buf); len(got) != 2 {
		t.Errorf("got %d samples, want 2", len(got))
	}
}

func TestComputeRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{name: "empty", pcm: nil, want: 0},
		{name: "silence", pcm: pcm16(0, 0, 0, 0), want: 0},
		{name: "constant amplitude", pcm: pcm16(1000, -1000, 1000, -1000), want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := computeRMS(tt.pcm); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("computeRMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDurationMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		numBytes   int
		sampleRate int
		want       int
	}{
		{name: "one second at 16kHz", numBytes: 32000, sampleRate: 16000, want: 1000},
		{name: "300ms window at 16kHz", numBytes: 9600, sampleRate: 16000, want: 300},
		{name: "zero rate", numBytes: 9600, sampleRate: 0, want: 0},
		{name: "negative rate", numBytes: 9600, sampleRate: -1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := durationMs(tt.numBytes, tt.sampleRate); got != tt.want {
				t.Errorf("durationMs(%d, %d) = %d, want %d", tt.numBytes, tt.sampleRate, got, tt.want)
			}
		})
	}
}

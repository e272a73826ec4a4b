package vosk

import (
	"testing"
	"time"
)

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		msg       string
		wantText  string
		wantFinal bool
		wantOK    bool
	}{
		{
			name:      "committed text",
			msg:       `{"text": "i want a refund"}`,
			wantText:  "i want a refund",
			wantFinal: true,
			wantOK:    true,
		},
		{
			name:      "partial hypothesis",
			msg:       `{"partial": "i want"}`,
			wantText:  "i want",
			wantFinal: false,
			wantOK:    true,
		},
		{name: "empty partial during silence", msg: `{"partial": ""}`, wantOK: false},
		{name: "empty committed text", msg: `{"text": ""}`, wantOK: false},
		{name: "whitespace text", msg: `{"text": "   "}`, wantOK: false},
		{name: "malformed json", msg: `{"text": `, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			seg, ok := parseReply([]byte(tt.msg), time.Second, 2*time.Second)
			if ok != tt.wantOK {
				t.Fatalf("parseReply ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if seg.Text != tt.wantText || seg.IsFinal != tt.wantFinal {
				t.Errorf("got segment {%q, final=%v}, want {%q, final=%v}",
					seg.Text, seg.IsFinal, tt.wantText, tt.wantFinal)
			}
		})
	}
}

func TestParseReply_WindowBoundsWithoutWordTimings(t *testing.T) {
	t.Parallel()

	seg, ok := parseReply([]byte(`{"text": "hello"}`), 3*time.Second, 4*time.Second)
	if !ok {
		t.Fatal("parseReply returned ok=false")
	}
	if seg.Start != 3*time.Second || seg.End != 4*time.Second {
		t.Errorf("segment bounds = [%v, %v], want [3s, 4s]", seg.Start, seg.End)
	}
}

func TestParseReply_WordTimingsTakePrecedence(t *testing.T) {
	t.Parallel()

	msg := `{"text": "hello there", "result": [
		{"word": "hello", "start": 1.5, "end": 1.9, "conf": 0.98},
		{"word": "there", "start": 2.0, "end": 2.4, "conf": 0.95}
	]}`

	seg, ok := parseReply([]byte(msg), 10*time.Second, 11*time.Second)
	if !ok {
		t.Fatal("parseReply returned ok=false")
	}
	if seg.Start != 1500*time.Millisecond || seg.End != 2400*time.Millisecond {
		t.Errorf("segment bounds = [%v, %v], want [1.5s, 2.4s]", seg.Start, seg.End)
	}
}

func TestPCMDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		numBytes   int
		sampleRate int
		want       time.Duration
	}{
		{name: "one second at 16kHz", numBytes: 32000, sampleRate: 16000, want: time.Second},
		{name: "300ms window", numBytes: 9600, sampleRate: 16000, want: 300 * time.Millisecond},
		{name: "zero rate", numBytes: 9600, sampleRate: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pcmDuration(tt.numBytes, tt.sampleRate); got != tt.want {
				t.Errorf("pcmDuration(%d, %d) = %v, want %v", tt.numBytes, tt.sampleRate, got, tt.want)
			}
		})
	}
}

func TestProvider_DefaultEndpoint(t *testing.T) {
	t.Parallel()

	if p := New(""); p.endpoint != defaultEndpoint {
		t.Errorf("endpoint = %q, want %q", p.endpoint, defaultEndpoint)
	}
	if p := New("ws://other:2700", WithWords()); p.endpoint != "ws://other:2700" || !p.words {
		t.Errorf("got {%q, words=%v}, want custom endpoint with words", p.endpoint, p.words)
	}
}

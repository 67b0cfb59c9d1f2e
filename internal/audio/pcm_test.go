package audio

import (
	"testing"
	"time"
)

func TestPCM16Duration(t *testing.T) {
	tests := []struct {
		name       string
		bytes      int64
		sampleRate int
		want       time.Duration
	}{
		{name: "one second at 16kHz", bytes: 32000, sampleRate: 16000, want: time.Second},
		{name: "half second at 16kHz", bytes: 16000, sampleRate: 16000, want: 500 * time.Millisecond},
		{name: "one second at 8kHz", bytes: 16000, sampleRate: 8000, want: time.Second},
		{name: "zero bytes", bytes: 0, sampleRate: 16000, want: 0},
		{name: "invalid rate", bytes: 32000, sampleRate: 0, want: 0},
	}

	for _, tt := range tests {
		if got := PCM16Duration(tt.bytes, tt.sampleRate); got != tt.want {
			t.Errorf("%s: PCM16Duration(%d, %d) = %v, want %v", tt.name, tt.bytes, tt.sampleRate, got, tt.want)
		}
	}
}

func TestPCM16Seconds(t *testing.T) {
	if got := PCM16Seconds(48000, 16000); got != 1.5 {
		t.Errorf("PCM16Seconds(48000, 16000) = %f, want 1.5", got)
	}

	if got := PCM16Seconds(-1, 16000); got != 0 {
		t.Errorf("PCM16Seconds(-1, 16000) = %f, want 0", got)
	}
}

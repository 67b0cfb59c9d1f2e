package audio

import "time"

// BytesPerSample for 16-bit mono PCM
const BytesPerSample = 2

// PCM16Duration returns the playback duration of n bytes of 16-bit mono PCM
// at the given sample rate.
func PCM16Duration(n int64, sampleRate int) time.Duration {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// PCM16Seconds returns the playback duration in seconds as a float, matching
// how transcription providers report processed audio duration.
func PCM16Seconds(n int64, sampleRate int) float64 {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	return float64(n/BytesPerSample) / float64(sampleRate)
}

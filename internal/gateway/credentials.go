package gateway

import (
	"encoding/json"
	"fmt"
)

// Credentials maps each provider to the opaque key supplied for the session.
// Only the transcription key is mandatory; an empty field leaves that leg
// permanently disabled for the session.
type Credentials struct {
	Transcription string
	Generation    string
	Lookup        string
	Synthesis     string
	Weather       string
}

// handshakeFrame accepts both the short and the environment-style spelling
// for every key. The short name takes precedence.
type handshakeFrame struct {
	Assembly    string `json:"assembly"`
	AssemblyEnv string `json:"ASSEMBLYAI_API_KEY"`
	Google      string `json:"google"`
	GoogleEnv   string `json:"GOOGLE_API_KEY"`
	Murf        string `json:"murf"`
	MurfEnv     string `json:"MURF_API_KEY"`
	Tavily      string `json:"tavily"`
	TavilyEnv   string `json:"TAVILY_API_KEY"`
	Weather     string `json:"weather"`
	WeatherEnv  string `json:"WEATHER_API_KEY"`
}

// ParseCredentials decodes the first client frame into per-provider keys.
func ParseCredentials(data []byte) (Credentials, error) {
	var frame handshakeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Credentials{}, fmt.Errorf("malformed credential frame: %w", err)
	}

	return Credentials{
		Transcription: firstNonEmpty(frame.Assembly, frame.AssemblyEnv),
		Generation:    firstNonEmpty(frame.Google, frame.GoogleEnv),
		Lookup:        firstNonEmpty(frame.Tavily, frame.TavilyEnv),
		Synthesis:     firstNonEmpty(frame.Murf, frame.MurfEnv),
		Weather:       firstNonEmpty(frame.Weather, frame.WeatherEnv),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

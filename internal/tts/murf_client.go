package tts

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxline/session-gateway/internal/observability"
)

// contextID groups all messages of one synthesis exchange on the provider
// side. Connections are per-turn and never reused, so a fixed id suffices.
const contextID = "session-context-1"

// MurfClient implements Client against the Murf streaming synthesis API.
type MurfClient struct {
	apiKey     string
	baseURL    string
	voiceID    string
	style      string
	sampleRate int

	dialer *websocket.Dialer
	logger zerolog.Logger
}

type voiceConfigMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
	ContextID   string      `json:"context_id"`
}

type voiceConfig struct {
	VoiceID   string `json:"voiceId"`
	Style     string `json:"style"`
	Rate      int    `json:"rate"`
	Pitch     int    `json:"pitch"`
	Variation int    `json:"variation"`
}

type textMessage struct {
	Text      string `json:"text"`
	ContextID string `json:"context_id"`
	End       bool   `json:"end"`
}

type audioMessage struct {
	Audio string `json:"audio"`
	Final bool   `json:"final"`
}

// NewMurfClient creates a synthesis client bound to one session's API key.
func NewMurfClient(apiKey, baseURL, voiceID, style string, sampleRate int) *MurfClient {
	return &MurfClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		voiceID:    voiceID,
		style:      style,
		sampleRate: sampleRate,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		logger: observability.GetLogger().With().Str("component", "tts").Logger(),
	}
}

// Synthesize opens a fresh connection, sends the voice configuration and the
// full text with an end-of-input marker, then relays every audio chunk until
// the provider signals finality. A transport error mid-stream closes the
// channel without a Final chunk.
func (c *MurfClient) Synthesize(ctx context.Context, text string) (<-chan Chunk, error) {
	query := url.Values{}
	query.Set("api-key", c.apiKey)
	query.Set("sample_rate", fmt.Sprintf("%d", c.sampleRate))
	query.Set("channel_type", "MONO")
	query.Set("format", "WAV")

	conn, _, err := c.dialer.DialContext(ctx, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect synthesis stream: %w", err)
	}

	cfg := voiceConfigMessage{
		VoiceConfig: voiceConfig{
			VoiceID:   c.voiceID,
			Style:     c.style,
			Rate:      0,
			Pitch:     0,
			Variation: 1,
		},
		ContextID: contextID,
	}
	if err := conn.WriteJSON(cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send voice config: %w", err)
	}

	msg := textMessage{Text: text, ContextID: contextID, End: true}
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send synthesis text: %w", err)
	}

	chunks := make(chan Chunk, 16)

	go func() {
		defer close(chunks)
		defer conn.Close()

		for {
			var msg audioMessage
			if err := conn.ReadJSON(&msg); err != nil {
				// No Final chunk on transport failure; consumers treat
				// the bare close as an implicit leg failure.
				c.logger.Warn().Err(err).Msg("Synthesis stream ended without final marker")
				return
			}

			if msg.Audio != "" {
				select {
				case chunks <- Chunk{Audio: msg.Audio}:
				case <-ctx.Done():
					return
				}
			}

			if msg.Final {
				select {
				case chunks <- Chunk{Final: true}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return chunks, nil
}

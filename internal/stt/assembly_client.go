package stt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxline/session-gateway/internal/audio"
	"github.com/voxline/session-gateway/internal/observability"
)

// AssemblyClient streams audio to the AssemblyAI v3 realtime endpoint and
// bridges its message stream onto an ordered event channel. One read loop
// feeds one channel, so events reach the consumer in provider order.
type AssemblyClient struct {
	apiKey     string
	baseURL    string
	sampleRate int

	dialer *websocket.Dialer
	logger zerolog.Logger

	mu        sync.Mutex // guards conn and writes
	conn      *websocket.Conn
	connected bool

	events chan Event
	done   chan struct{}

	closing       atomic.Bool
	bytesStreamed atomic.Int64
}

// streamMessage is the provider's wire envelope; fields are populated
// according to Type.
type streamMessage struct {
	Type string `json:"type"`

	// Begin
	ID        string `json:"id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`

	// Turn
	TurnOrder       int    `json:"turn_order,omitempty"`
	Transcript      string `json:"transcript,omitempty"`
	EndOfTurn       bool   `json:"end_of_turn,omitempty"`
	TurnIsFormatted bool   `json:"turn_is_formatted,omitempty"`

	// Termination
	AudioDurationSeconds float64 `json:"audio_duration_seconds,omitempty"`

	// Error
	Error string `json:"error,omitempty"`
}

type terminateMessage struct {
	Type string `json:"type"`
}

// NewAssemblyClient creates a streaming transcription client. The stream is
// opened with turn formatting enabled so finalized turns arrive punctuated.
func NewAssemblyClient(apiKey, baseURL string, sampleRate, eventBuffer int) *AssemblyClient {
	return &AssemblyClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		sampleRate: sampleRate,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		logger: observability.GetLogger().With().Str("component", "stt").Logger(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Connect dials the streaming endpoint and starts the read loop.
func (c *AssemblyClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("transcription stream is already connected")
	}

	url := fmt.Sprintf("%s?sample_rate=%d&format_turns=true", c.baseURL, c.sampleRate)

	header := http.Header{}
	header.Set("Authorization", c.apiKey)

	conn, _, err := c.dialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("failed to connect transcription stream: %w", err)
	}

	c.conn = conn
	c.connected = true

	go c.readLoop(conn)

	c.logger.Info().
		Int("sample_rate", c.sampleRate).
		Msg("Transcription stream connected")
	return nil
}

// Stream sends one chunk of raw PCM audio. Fire-and-forget from the caller's
// perspective; backpressure is the websocket write itself.
func (c *AssemblyClient) Stream(audioData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("transcription stream is not connected")
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
		return fmt.Errorf("failed to send audio to transcription stream: %w", err)
	}

	c.bytesStreamed.Add(int64(len(audioData)))
	return nil
}

// Disconnect closes the stream. When terminate is true a Terminate message
// is sent first so the provider flushes and reports total audio processed.
func (c *AssemblyClient) Disconnect(terminate bool) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil // already closing
	}
	close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return nil
	}
	c.connected = false

	if terminate {
		msg := terminateMessage{Type: "Terminate"}
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to send terminate message")
		}
	}

	err := c.conn.Close()
	c.logger.Info().
		Float64("audio_seconds_streamed", audio.PCM16Seconds(c.bytesStreamed.Load(), c.sampleRate)).
		Msg("Transcription stream disconnected")
	return err
}

// Events returns the ordered event channel. Closed when the stream ends.
func (c *AssemblyClient) Events() <-chan Event {
	return c.events
}

// BytesStreamed reports total audio bytes written to the stream.
func (c *AssemblyClient) BytesStreamed() int64 {
	return c.bytesStreamed.Load()
}

// readLoop decodes provider messages and posts them, in order, onto the
// event channel. It runs until the connection drops or Disconnect is called.
func (c *AssemblyClient) readLoop(conn *websocket.Conn) {
	defer close(c.events)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return // expected close
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return // provider closed cleanly
			}
			c.logger.Warn().Err(err).Msg("Transcription stream read error")
			c.post(Event{Kind: EventError, Err: err})
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse transcription message")
			continue
		}

		switch msg.Type {
		case "Begin":
			c.post(Event{Kind: EventBegin, StreamID: msg.ID})

		case "Turn":
			c.post(Event{Kind: EventTurn, Turn: &Turn{
				Order:      msg.TurnOrder,
				Transcript: msg.Transcript,
				EndOfTurn:  msg.EndOfTurn,
				Formatted:  msg.TurnIsFormatted,
			}})

		case "Termination":
			c.post(Event{Kind: EventTermination, AudioDuration: msg.AudioDurationSeconds})

		case "Error":
			c.post(Event{Kind: EventError, Err: fmt.Errorf("transcription provider error: %s", msg.Error)})

		default:
			c.logger.Debug().Str("type", msg.Type).Msg("Unknown transcription message type")
		}
	}
}

// post delivers an event in order. The channel is bounded; when the consumer
// is gone the send is abandoned via done instead of blocking forever.
func (c *AssemblyClient) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

package gateway

import "encoding/json"

// Outbound event type discriminators. The client only ever receives
// serialized instances of this closed set.
const (
	EventTypeTurnEnd            = "turn_end"
	EventTypeGenerationResponse = "generation_response"
	EventTypeLookupResult       = "lookup_result"
	EventTypeAudioChunk         = "audio_chunk"
	EventTypeAudioEnd           = "audio_end"
	EventTypeError              = "error"
)

// Event is one outbound message to the client
type Event interface {
	EventType() string
}

// TurnEndEvent announces a finalized utterance
type TurnEndEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

func NewTurnEndEvent(transcript string) TurnEndEvent {
	return TurnEndEvent{Type: EventTypeTurnEnd, Transcript: transcript}
}

func (TurnEndEvent) EventType() string { return EventTypeTurnEnd }

// GenerationResponseEvent carries the full generated response text
type GenerationResponseEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewGenerationResponseEvent(text string) GenerationResponseEvent {
	return GenerationResponseEvent{Type: EventTypeGenerationResponse, Text: text}
}

func (GenerationResponseEvent) EventType() string { return EventTypeGenerationResponse }

// LookupResultEvent carries the lookup summary plus the raw provider payload
type LookupResultEvent struct {
	Type string          `json:"type"`
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

func NewLookupResultEvent(text string, raw json.RawMessage) LookupResultEvent {
	return LookupResultEvent{Type: EventTypeLookupResult, Text: text, Raw: raw}
}

func (LookupResultEvent) EventType() string { return EventTypeLookupResult }

// AudioChunkEvent carries one base64 audio payload
type AudioChunkEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func NewAudioChunkEvent(data string) AudioChunkEvent {
	return AudioChunkEvent{Type: EventTypeAudioChunk, Data: data}
}

func (AudioChunkEvent) EventType() string { return EventTypeAudioChunk }

// AudioEndEvent marks the end of one synthesis stream
type AudioEndEvent struct {
	Type string `json:"type"`
}

func NewAudioEndEvent() AudioEndEvent {
	return AudioEndEvent{Type: EventTypeAudioEnd}
}

func (AudioEndEvent) EventType() string { return EventTypeAudioEnd }

// ErrorEvent notifies the client of a fatal session error before the
// connection closes. Non-fatal leg failures never produce one.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventTypeError, Message: message}
}

func (ErrorEvent) EventType() string { return EventTypeError }

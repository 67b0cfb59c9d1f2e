package stt

// EventKind identifies a transcription stream event
type EventKind string

const (
	// EventBegin is emitted once when the provider opens the stream
	EventBegin EventKind = "begin"

	// EventTurn carries a (possibly interim) transcript for one turn
	EventTurn EventKind = "turn"

	// EventError carries a provider or transport error; the stream may
	// still be alive
	EventError EventKind = "error"

	// EventTermination is emitted once when the provider closes the stream
	EventTermination EventKind = "termination"
)

// Turn is one transcript report from the provider. Only turns with both
// EndOfTurn and Formatted set represent a finalized utterance; everything
// else is an interim partial.
type Turn struct {
	Order      int    `json:"turn_order"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
	Formatted  bool   `json:"turn_is_formatted"`
}

// Event is one item on the bridge's timeline. Exactly the fields for its
// Kind are populated.
type Event struct {
	Kind EventKind

	// StreamID is set on EventBegin
	StreamID string

	// Turn is set on EventTurn
	Turn *Turn

	// Err is set on EventError
	Err error

	// AudioDuration is the provider-reported seconds of audio processed,
	// set on EventTermination
	AudioDuration float64
}

// Client is the interface for streaming transcription clients.
//
// Events are delivered on a single bounded channel in the order the provider
// emitted them; the channel is closed when the stream ends for any reason.
type Client interface {
	// Connect opens the streaming session
	Connect() error

	// Stream sends a chunk of raw audio to the provider
	Stream(audio []byte) error

	// Disconnect closes the stream; when terminate is true the provider is
	// asked to flush and report the total audio processed first
	Disconnect(terminate bool) error

	// Events returns the channel of stream events
	Events() <-chan Event
}

package tts

import "context"

// Chunk is one unit of synthesized speech. Audio carries a base64 payload;
// the final chunk has Final set and no audio.
type Chunk struct {
	Audio string
	Final bool
}

// Client is the interface for streaming speech-synthesis clients.
//
// Synthesize opens one connection, pushes the full text, and relays audio
// chunks until the provider signals finality. The returned channel closes
// when the stream ends; a close without a Final chunk means the stream
// failed mid-flight.
type Client interface {
	Synthesize(ctx context.Context, text string) (<-chan Chunk, error)
}

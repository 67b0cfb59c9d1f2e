package llm

import "context"

// Client is the interface for text-generation clients.
type Client interface {
	// Generate streams a completion for the transcript and returns the
	// accumulated text once the stream ends
	Generate(ctx context.Context, transcript string) (string, error)

	// Close releases the underlying provider client
	Close() error
}

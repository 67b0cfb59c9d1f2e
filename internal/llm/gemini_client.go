package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// systemInstruction keeps the assistant neutral; callers get plain
// conversational answers suitable for speech synthesis.
const systemInstruction = "You are a helpful assistant."

// GeminiClient implements Client using Google's generative AI streaming API.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiClient creates a generation client bound to one session's API key.
func NewGeminiClient(ctx context.Context, apiKey, model string, maxTokens int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		model:     model,
		maxTokens: int32(maxTokens),
	}, nil
}

// Generate streams a completion for the transcript, accumulating text
// fragments in arrival order, and returns the full response once the
// provider stream ends. Fragments are never exposed to callers.
func (g *GeminiClient) Generate(ctx context.Context, transcript string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.SetMaxOutputTokens(g.maxTokens)

	iter := model.GenerateContentStream(ctx, genai.Text(transcript))

	var accumulated strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("generation stream failed: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					accumulated.WriteString(string(text))
				}
			}
		}
	}

	return accumulated.String(), nil
}

// Close releases the underlying provider client.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

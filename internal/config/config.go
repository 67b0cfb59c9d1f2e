package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all process-level configuration for the session gateway.
//
// Provider API keys are deliberately absent: every credential arrives from
// the client in the first websocket frame and is scoped to that session.
type Config struct {
	// Server configuration
	Port      string `envconfig:"PORT" default:"8080"`
	StaticDir string `envconfig:"STATIC_DIR" default:"static"`

	// Inbound audio format. Clients send raw 16-bit mono PCM.
	SampleRate int `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`

	// Provider endpoints. Overridable so tests and staging can point the
	// legs at local servers; the defaults are the production endpoints.
	TranscriptionURL string `envconfig:"TRANSCRIPTION_STREAM_URL" default:"wss://streaming.assemblyai.com/v3/ws"`
	SynthesisURL     string `envconfig:"SYNTHESIS_STREAM_URL" default:"wss://api.murf.ai/v1/speech/stream-input"`
	SearchURL        string `envconfig:"SEARCH_API_URL" default:"https://api.tavily.com/search"`
	WeatherURL       string `envconfig:"WEATHER_API_URL" default:"http://api.weatherapi.com/v1/current.json"`

	// Generation leg configuration
	GenerationModel     string `envconfig:"GENERATION_MODEL" default:"gemini-2.5-flash"`
	GenerationMaxTokens int    `envconfig:"GENERATION_MAX_TOKENS" default:"512"`

	// Synthesis leg configuration
	SynthesisVoiceID    string `envconfig:"SYNTHESIS_VOICE_ID" default:"en-US-amara"`
	SynthesisStyle      string `envconfig:"SYNTHESIS_STYLE" default:"Conversational"`
	SynthesisSampleRate int    `envconfig:"SYNTHESIS_SAMPLE_RATE" default:"44100"`

	// Session configuration
	HandshakeTimeout int `envconfig:"HANDSHAKE_TIMEOUT" default:"10"` // seconds to wait for the credential frame
	EventBuffer      int `envconfig:"EVENT_BUFFER" default:"64"`      // bridge event channel capacity

	// Resilience configuration
	RetryMaxAttempts    int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`      // attempts for unary leg calls
	RetryInitialBackoff int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // initial backoff in milliseconds
	WeatherTimeout      int `envconfig:"WEATHER_TIMEOUT" default:"8"`         // upstream weather timeout in seconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	if cfg.EventBuffer <= 0 {
		return nil, fmt.Errorf("EVENT_BUFFER must be positive, got %d", cfg.EventBuffer)
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

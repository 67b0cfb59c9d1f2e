// Package weather proxies current-conditions lookups to the upstream
// weather API so browser clients never talk to it directly.
package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxline/session-gateway/internal/config"
	"github.com/voxline/session-gateway/internal/observability"
	"github.com/voxline/session-gateway/internal/resilience"
)

// DefaultCity is used when the request names no city.
const DefaultCity = "Delhi"

// Client fetches current conditions from the upstream API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   *resilience.RetryConfig
}

// NewClient creates a weather client against the given endpoint.
func NewClient(baseURL string, timeout time.Duration, retryCfg *resilience.RetryConfig) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retryCfg,
	}
}

// Current returns the upstream response body verbatim. The payload shape
// belongs to the upstream API; the gateway does not interpret it.
func (c *Client) Current(city, apiKey string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("key", apiKey)
	query.Set("q", city)
	endpoint := c.baseURL + "?" + query.Encode()

	var body json.RawMessage
	err := resilience.Retry(func() error {
		resp, err := c.httpClient.Get(endpoint)
		if err != nil {
			return fmt.Errorf("weather request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read weather response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("weather API returned status %d", resp.StatusCode)
		}

		body = data
		return nil
	}, c.retryCfg, resilience.IsRetryableNetworkError)

	if err != nil {
		return nil, err
	}
	return body, nil
}

// Handler serves GET /api/weather, forwarding the caller's key and city to
// the upstream API.
type Handler struct {
	client *Client
	logger zerolog.Logger
}

// NewHandler builds the weather endpoint from gateway configuration.
func NewHandler(cfg *config.Config) *Handler {
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
	return &Handler{
		client: NewClient(cfg.WeatherURL, time.Duration(cfg.WeatherTimeout)*time.Second, retryCfg),
		logger: observability.GetLogger().With().Str("component", "weather").Logger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	apiKey := r.URL.Query().Get("key")
	if apiKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "weather API key missing"})
		return
	}

	city := r.URL.Query().Get("city")
	if city == "" {
		city = DefaultCity
	}

	body, err := h.client.Current(city, apiKey)
	if err != nil {
		h.logger.Warn().Err(err).Str("city", city).Msg("Weather lookup failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "weather lookup failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write weather response")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

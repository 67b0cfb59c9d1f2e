package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxline/session-gateway/internal/config"
	"github.com/voxline/session-gateway/internal/llm"
	"github.com/voxline/session-gateway/internal/observability"
	"github.com/voxline/session-gateway/internal/search"
	"github.com/voxline/session-gateway/internal/stt"
	"github.com/voxline/session-gateway/internal/tts"
)

// Close codes distinguish the fatal handshake outcomes from a normal
// disconnect.
const (
	CloseMalformedHandshake = 4000
	CloseMissingCredential  = 4001
	CloseServiceInitFailure = 4002
)

// Handler owns the websocket endpoint: credential handshake, session
// construction, and the inbound audio pump.
type Handler struct {
	cfg      *config.Config
	registry *Registry
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// Constructor seams; tests stand in fake providers here
	newBridge      func(apiKey string) stt.Client
	newGenerator   func(ctx context.Context, apiKey string) (llm.Client, error)
	newSearcher    func(apiKey string) search.Client
	newSynthesizer func(apiKey string) tts.Client
}

// NewHandler creates the websocket handler with the real provider
// constructors wired in.
func NewHandler(cfg *config.Config, registry *Registry) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients carry the credentials themselves, so
				// origin checks add nothing here (development posture).
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: observability.GetLogger().With().Str("component", "gateway").Logger(),
		newBridge: func(apiKey string) stt.Client {
			return stt.NewAssemblyClient(apiKey, cfg.TranscriptionURL, cfg.SampleRate, cfg.EventBuffer)
		},
		newGenerator: func(ctx context.Context, apiKey string) (llm.Client, error) {
			return llm.NewGeminiClient(ctx, apiKey, cfg.GenerationModel, cfg.GenerationMaxTokens)
		},
		newSearcher: func(apiKey string) search.Client {
			return search.NewTavilyClient(apiKey, cfg.SearchURL)
		},
		newSynthesizer: func(apiKey string) tts.Client {
			return tts.NewMurfClient(apiKey, cfg.SynthesisURL, cfg.SynthesisVoiceID, cfg.SynthesisStyle, cfg.SynthesisSampleRate)
		},
	}
}

// ServeHTTP upgrades the connection, performs the credential handshake,
// builds the session, and pumps binary audio frames until disconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	creds, ok := h.handshake(conn)
	if !ok {
		return
	}

	legs, ok := h.buildLegs(conn, creds)
	if !ok {
		return
	}

	bridge := h.newBridge(creds.Transcription)
	if err := bridge.Connect(); err != nil {
		h.logger.Error().Err(err).Msg("Failed to connect transcription bridge")
		observability.RecordHandshakeFailure("init_failed")
		h.writeError(conn, "Failed to initialize services")
		h.closeWith(conn, CloseServiceInitFailure, "service initialization failed")
		if legs.Generator != nil {
			legs.Generator.Close()
		}
		return
	}

	session := NewSession(h.cfg, conn, bridge, legs, h.registry)
	defer session.Close()

	go session.Run()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("session_id", session.ID()).Msg("Client channel read error")
			}
			return
		}

		if mt == websocket.BinaryMessage {
			session.IngestAudio(data)
		}
		// Text frames after the handshake are ignored
	}
}

// handshake reads and parses the mandatory first credential frame. On any
// failure it closes the connection with the matching code and returns false.
func (h *Handler) handshake(conn *websocket.Conn) (Credentials, bool) {
	conn.SetReadDeadline(time.Now().Add(time.Duration(h.cfg.HandshakeTimeout) * time.Second))

	mt, data, err := conn.ReadMessage()
	if err != nil || mt != websocket.TextMessage {
		h.logger.Error().Err(err).Msg("Failed to receive credential handshake")
		observability.RecordHandshakeFailure("malformed")
		h.closeWith(conn, CloseMalformedHandshake, "credential handshake required")
		return Credentials{}, false
	}

	// Audio frames have no deadline; silence is a valid client state
	conn.SetReadDeadline(time.Time{})

	creds, err := ParseCredentials(data)
	if err != nil {
		h.logger.Error().Err(err).Msg("Malformed credential handshake")
		observability.RecordHandshakeFailure("malformed")
		h.closeWith(conn, CloseMalformedHandshake, "malformed credential frame")
		return Credentials{}, false
	}

	if creds.Transcription == "" {
		h.logger.Error().Msg("Transcription API key missing in handshake")
		observability.RecordHandshakeFailure("missing_key")
		h.writeError(conn, "Transcription API key missing")
		h.closeWith(conn, CloseMissingCredential, "transcription API key missing")
		return Credentials{}, false
	}

	return creds, true
}

// buildLegs constructs a client for each optional credential present.
// Absent credentials leave the leg nil, permanently disabled for the
// session.
func (h *Handler) buildLegs(conn *websocket.Conn, creds Credentials) (Legs, bool) {
	var legs Legs

	if creds.Generation != "" {
		gen, err := h.newGenerator(context.Background(), creds.Generation)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to initialize generation client")
			observability.RecordHandshakeFailure("init_failed")
			h.writeError(conn, "Failed to initialize services")
			h.closeWith(conn, CloseServiceInitFailure, "service initialization failed")
			return Legs{}, false
		}
		legs.Generator = gen
	}

	if creds.Lookup != "" {
		legs.Searcher = h.newSearcher(creds.Lookup)
	}

	if creds.Synthesis != "" {
		legs.Synthesizer = h.newSynthesizer(creds.Synthesis)
	}

	return legs, true
}

func (h *Handler) writeError(conn *websocket.Conn, message string) {
	if err := conn.WriteJSON(NewErrorEvent(message)); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write error event")
	}
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write close frame")
	}
	conn.Close()
}

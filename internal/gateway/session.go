package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxline/session-gateway/internal/config"
	"github.com/voxline/session-gateway/internal/llm"
	"github.com/voxline/session-gateway/internal/observability"
	"github.com/voxline/session-gateway/internal/resilience"
	"github.com/voxline/session-gateway/internal/search"
	"github.com/voxline/session-gateway/internal/stt"
	"github.com/voxline/session-gateway/internal/tts"
)

// lookupSentinel is sent when the lookup leg has nothing to report, whether
// the result set was empty or the call failed.
const lookupSentinel = "No details found."

// clientConn is the outbound side of the client channel. Satisfied by
// *websocket.Conn.
type clientConn interface {
	WriteJSON(v any) error
}

// Legs holds the per-session provider clients for the optional legs. A nil
// client means the credential was absent and the leg silently no-ops for the
// whole session.
type Legs struct {
	Generator   llm.Client
	Searcher    search.Client
	Synthesizer tts.Client
}

// Session owns one client connection's state and timeline. A single run
// loop drains the transcription bridge's event channel in provider order;
// leg goroutines only re-enter the session through send, which re-reads the
// registry so results for a replaced session are dropped rather than
// delivered.
type Session struct {
	id         string
	cfg        *config.Config
	conn       clientConn
	bridge     stt.Client
	legs       Legs
	registry   *Registry
	activation uint64

	logger  zerolog.Logger
	metrics *observability.SessionMetrics

	retryCfg *resilience.RetryConfig

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	// turns is touched only by the run loop
	turns uint64
}

// NewSession wires a session and registers it as the active one, displacing
// any prior session.
func NewSession(cfg *config.Config, conn clientConn, bridge stt.Client, legs Legs, registry *Registry) *Session {
	id := observability.NewSessionID()

	s := &Session{
		id:       id,
		cfg:      cfg,
		conn:     conn,
		bridge:   bridge,
		legs:     legs,
		registry: registry,
		logger:   observability.WithSession(id),
		metrics:  observability.NewSessionMetrics(id),
		retryCfg: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		done: make(chan struct{}),
	}

	s.activation = registry.Activate(s)
	s.metrics.RecordSessionStart()

	s.logger.Info().
		Uint64("activation", s.activation).
		Bool("generation_enabled", legs.Generator != nil).
		Bool("lookup_enabled", legs.Searcher != nil).
		Bool("synthesis_enabled", legs.Synthesizer != nil).
		Msg("Session started")

	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Run drains the bridge's event channel until the stream ends or the
// session closes. This loop is the session's single scheduling domain: all
// shared state mutation happens here.
func (s *Session) Run() {
	for {
		select {
		case ev, ok := <-s.bridge.Events():
			if !ok {
				s.logger.Debug().Msg("Bridge event channel closed")
				return
			}
			s.handleBridgeEvent(ev)
		case <-s.done:
			return
		}
	}
}

// IngestAudio forwards one raw PCM frame to the transcription bridge.
// Fire-and-forget: failures are logged and the receive loop moves on.
func (s *Session) IngestAudio(frame []byte) {
	s.metrics.RecordAudioBytes("in", int64(len(frame)))
	if err := s.bridge.Stream(frame); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stream audio to transcription bridge")
	}
}

// Close invalidates the session and terminates the upstream transcription
// connection. Idempotent; in-flight leg results are dropped at the send
// choke point rather than cancelled.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.registry.Deactivate(s)

		if err := s.bridge.Disconnect(true); err != nil {
			s.logger.Warn().Err(err).Msg("Error disconnecting transcription bridge")
		}
		if s.legs.Generator != nil {
			if err := s.legs.Generator.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("Error closing generation client")
			}
		}

		s.metrics.RecordSessionEnd()
		s.logger.Info().Msg("Session closed")
	})
}

func (s *Session) handleBridgeEvent(ev stt.Event) {
	switch ev.Kind {
	case stt.EventBegin:
		s.logger.Info().Str("stream_id", ev.StreamID).Msg("Transcription stream began")

	case stt.EventTurn:
		turn := ev.Turn
		if turn == nil {
			return
		}
		// Only finalized, formatted turns are actionable; everything
		// else is an interim partial.
		if !turn.EndOfTurn || !turn.Formatted || turn.Transcript == "" {
			return
		}
		s.onTurnFinalized(turn.Transcript)

	case stt.EventError:
		// Non-fatal: log and keep the session alive
		s.logger.Error().Err(ev.Err).Msg("Transcription stream error")

	case stt.EventTermination:
		s.logger.Info().
			Float64("audio_duration_seconds", ev.AudioDuration).
			Msg("Transcription stream terminated")
	}
}

// onTurnFinalized is the pipeline's single fan-out point: announce the turn,
// then start the generation and lookup legs concurrently. Turns are not
// serialized against each other; a fast-talking user can have a later turn's
// legs racing an earlier turn's synthesis.
func (s *Session) onTurnFinalized(transcript string) {
	s.turns++
	turnID := s.turns
	s.metrics.RecordTurn()

	s.logger.Info().
		Uint64("turn", turnID).
		Str("transcript", transcript).
		Msg("Turn finalized")

	s.send(NewTurnEndEvent(transcript))

	go s.runGeneration(turnID, transcript)
	go s.runLookup(turnID, transcript)
}

// runGeneration drives the generation leg for one turn and chains into
// synthesis on success. Leg failure degrades to silence: logged, no client
// error, no synthesis.
func (s *Session) runGeneration(turnID uint64, transcript string) {
	if s.legs.Generator == nil {
		observability.RecordLegSkipped("generation")
		s.logger.Debug().Uint64("turn", turnID).Msg("Generation leg disabled, skipping")
		return
	}

	start := time.Now()

	// Leg calls are never cancelled: a closed session drops the result
	// at the send choke point instead of stopping the call.
	text, err := s.legs.Generator.Generate(context.Background(), transcript)
	if err != nil {
		observability.RecordLeg("generation", start, "error")
		s.logger.Warn().Err(err).Uint64("turn", turnID).Msg("Generation leg failed")
		return
	}
	observability.RecordLeg("generation", start, "success")

	s.logger.Info().Uint64("turn", turnID).Int("length", len(text)).Msg("Generation complete")
	s.send(NewGenerationResponseEvent(text))

	if text == "" {
		s.logger.Debug().Uint64("turn", turnID).Msg("Empty generation result, skipping synthesis")
		return
	}
	s.runSynthesis(turnID, text)
}

// runLookup drives the lookup leg for one turn. Every failure mode reports
// the sentinel instead of an error event.
func (s *Session) runLookup(turnID uint64, transcript string) {
	if s.legs.Searcher == nil {
		observability.RecordLegSkipped("lookup")
		s.logger.Debug().Uint64("turn", turnID).Msg("Lookup leg disabled, skipping")
		return
	}

	start := time.Now()

	var resp *search.Response
	err := resilience.Retry(func() error {
		r, callErr := s.legs.Searcher.Search(context.Background(), transcript)
		if callErr == nil {
			resp = r
		}
		return callErr
	}, s.retryCfg, resilience.IsRetryableNetworkError)

	if err != nil {
		observability.RecordLeg("lookup", start, "error")
		s.logger.Warn().Err(err).Uint64("turn", turnID).Msg("Lookup leg failed")
		s.send(NewLookupResultEvent(lookupSentinel, nil))
		return
	}
	observability.RecordLeg("lookup", start, "success")

	s.send(NewLookupResultEvent(summarizeLookup(resp), resp.Raw))
}

// summarizeLookup reduces a result set to the user-facing summary: the top
// result only, title and content.
func summarizeLookup(resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		return lookupSentinel
	}

	top := resp.Results[0]
	title := top.Title
	if title == "" {
		title = "No title"
	}
	content := top.Content
	if content == "" {
		content = "No content"
	}
	return title + ": " + content
}

// runSynthesis opens one synthesis connection for the turn and relays audio
// chunks as they arrive. The terminal audio_end is only emitted when the
// provider signals finality; a mid-stream failure just stops the audio.
func (s *Session) runSynthesis(turnID uint64, text string) {
	if s.legs.Synthesizer == nil {
		observability.RecordLegSkipped("synthesis")
		s.logger.Debug().Uint64("turn", turnID).Msg("Synthesis leg disabled, skipping")
		return
	}

	start := time.Now()

	chunks, err := s.legs.Synthesizer.Synthesize(context.Background(), text)
	if err != nil {
		observability.RecordLeg("synthesis", start, "error")
		s.logger.Warn().Err(err).Uint64("turn", turnID).Msg("Synthesis leg failed to start")
		return
	}

	finalized := false
	for chunk := range chunks {
		if chunk.Final {
			finalized = true
			s.send(NewAudioEndEvent())
			continue
		}
		s.metrics.RecordAudioBytes("out", int64(len(chunk.Audio)))
		s.send(NewAudioChunkEvent(chunk.Audio))
	}

	if finalized {
		observability.RecordLeg("synthesis", start, "success")
	} else {
		observability.RecordLeg("synthesis", start, "error")
		s.logger.Warn().Uint64("turn", turnID).Msg("Synthesis stream ended without final marker")
	}
}

// send is the single ordering point for outbound traffic. Events for a
// session that is no longer active are counted and discarded.
func (s *Session) send(ev Event) {
	if !s.registry.IsActive(s) {
		observability.RecordDroppedEvent()
		s.logger.Debug().Str("event", ev.EventType()).Msg("Dropping event for invalidated session")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Warn().Err(err).Str("event", ev.EventType()).Msg("Failed to write event to client")
		return
	}
	observability.RecordOutboundEvent(ev.EventType())
}

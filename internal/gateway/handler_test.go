package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxline/session-gateway/internal/llm"
	"github.com/voxline/session-gateway/internal/search"
	"github.com/voxline/session-gateway/internal/stt"
	"github.com/voxline/session-gateway/internal/tts"
)

type handlerFixture struct {
	handler *Handler
	bridge  *fakeBridge
	server  *httptest.Server
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	cfg := testConfig()
	cfg.HandshakeTimeout = 2

	bridge := newFakeBridge()
	h := NewHandler(cfg, NewRegistry())
	h.newBridge = func(apiKey string) stt.Client { return bridge }
	h.newGenerator = func(ctx context.Context, apiKey string) (llm.Client, error) {
		return &fakeGenerator{text: "generated"}, nil
	}
	h.newSearcher = func(apiKey string) search.Client {
		return &fakeSearcher{resp: &search.Response{}}
	}
	h.newSynthesizer = func(apiKey string) tts.Client {
		return &fakeSynthesizer{chunks: []tts.Chunk{{Final: true}}}
	}

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &handlerFixture{handler: h, bridge: bridge, server: server}
}

func (f *handlerFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expectClose reads frames until the peer closes, asserting the close code.
// Any error events received on the way are returned.
func expectClose(t *testing.T, conn *websocket.Conn, code int) []map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var events []map[string]any
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				t.Fatalf("Expected close frame, got %v", err)
			}
			if closeErr.Code != code {
				t.Fatalf("Expected close code %d, got %d (%s)", code, closeErr.Code, closeErr.Text)
			}
			return events
		}
		var ev map[string]any
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Non-JSON frame before close: %q", data)
		}
		events = append(events, ev)
	}
}

func TestHandlerRejectsBinaryHandshake(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	expectClose(t, conn, CloseMalformedHandshake)
}

func TestHandlerRejectsMalformedCredentialFrame(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	expectClose(t, conn, CloseMalformedHandshake)
}

func TestHandlerRejectsMissingTranscriptionKey(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"google":"g1"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	events := expectClose(t, conn, CloseMissingCredential)

	if len(events) != 1 || events[0]["type"] != EventTypeError {
		t.Fatalf("Expected a single error event before close, got %v", events)
	}
}

func TestHandlerGeneratorInitFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.handler.newGenerator = func(ctx context.Context, apiKey string) (llm.Client, error) {
		return nil, errors.New("bad key")
	}
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"a1","google":"g1"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	events := expectClose(t, conn, CloseServiceInitFailure)

	if len(events) != 1 || events[0]["type"] != EventTypeError {
		t.Fatalf("Expected a single error event before close, got %v", events)
	}
}

func TestHandlerBridgeConnectFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.bridge.connectErr = errors.New("upstream refused")
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"a1"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	events := expectClose(t, conn, CloseServiceInitFailure)

	if len(events) != 1 || events[0]["type"] != EventTypeError {
		t.Fatalf("Expected a single error event before close, got %v", events)
	}
}

func TestHandlerSessionFlow(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"a1"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Audio frames reach the transcription bridge
	audio := []byte{0x10, 0x20, 0x30, 0x40}
	if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		f.bridge.mu.Lock()
		n := len(f.bridge.streamed)
		f.bridge.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Audio never reached the bridge")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A finalized turn comes back as a turn_end event
	f.bridge.emitFinalTurn("hello gateway", 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Non-JSON event: %q", data)
	}
	if ev["type"] != EventTypeTurnEnd || ev["transcript"] != "hello gateway" {
		t.Errorf("Unexpected event %v", ev)
	}

	// Client disconnect tears the session down and terminates the bridge
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for f.bridge.disconnectCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Bridge was never disconnected after client close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerIgnoresTextFramesAfterHandshake(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"a1"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"replacement"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		f.bridge.mu.Lock()
		n := len(f.bridge.streamed)
		f.bridge.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Binary frame never reached the bridge")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerSecondConnectionDisplacesFirst(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeTimeout = 2

	bridge1 := newFakeBridge()
	bridge2 := newFakeBridge()
	bridges := []*fakeBridge{bridge1, bridge2}
	next := 0

	h := NewHandler(cfg, NewRegistry())
	h.newBridge = func(apiKey string) stt.Client {
		b := bridges[next]
		next++
		return b
	}

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	conn1, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn1.Close() })
	if err := conn1.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"a1"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn2.Close() })
	if err := conn2.WriteMessage(websocket.TextMessage, []byte(`{"assembly":"a2"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Give the second session a moment to claim the registry
	time.Sleep(50 * time.Millisecond)

	// Output from the first session's bridge is now dropped
	bridge1.emitFinalTurn("stale", 1)
	bridge2.emitFinalTurn("fresh", 1)

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn2.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Non-JSON event: %q", data)
	}
	if ev["transcript"] != "fresh" {
		t.Errorf("Second session got the wrong event: %v", ev)
	}

	conn1.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn1.ReadMessage(); err == nil {
		t.Error("Displaced session must not receive events")
	}
}

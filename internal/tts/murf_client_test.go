package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSynthesisServer runs a provider-side script after consuming the voice
// config and text messages, and returns the ws:// URL to dial.
func newSynthesisServer(t *testing.T, script func(conn *websocket.Conn, cfg, text map[string]any)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var cfg, text map[string]any
		if err := conn.ReadJSON(&cfg); err != nil {
			t.Errorf("failed to read voice config: %v", err)
			return
		}
		if err := conn.ReadJSON(&text); err != nil {
			t.Errorf("failed to read text message: %v", err)
			return
		}

		script(conn, cfg, text)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func drainChunks(t *testing.T, chunks <-chan Chunk) []Chunk {
	t.Helper()

	var got []Chunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return got
			}
			got = append(got, chunk)
		case <-timeout:
			t.Fatal("timed out draining chunks")
		}
	}
}

func TestMurfClient_SynthesizeRelaysChunks(t *testing.T) {
	url := newSynthesisServer(t, func(conn *websocket.Conn, cfg, text map[string]any) {
		// Protocol checks
		vc, ok := cfg["voice_config"].(map[string]any)
		if !ok {
			t.Error("First message missing voice_config")
		} else if vc["voiceId"] != "en-US-amara" {
			t.Errorf("Unexpected voiceId %v", vc["voiceId"])
		}

		if text["text"] != "Hello there." {
			t.Errorf("Unexpected text %v", text["text"])
		}
		if text["end"] != true {
			t.Error("Text message missing end marker")
		}

		for _, audio := range []string{"YXVkaW8x", "YXVkaW8y"} {
			if err := conn.WriteJSON(map[string]any{"audio": audio}); err != nil {
				return
			}
		}
		conn.WriteJSON(map[string]any{"final": true})
	})

	c := NewMurfClient("test-key", url, "en-US-amara", "Conversational", 44100)
	chunks, err := c.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	got := drainChunks(t, chunks)
	if len(got) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(got))
	}

	if got[0].Audio != "YXVkaW8x" || got[0].Final {
		t.Errorf("Unexpected first chunk %+v", got[0])
	}
	if got[1].Audio != "YXVkaW8y" || got[1].Final {
		t.Errorf("Unexpected second chunk %+v", got[1])
	}
	if !got[2].Final || got[2].Audio != "" {
		t.Errorf("Expected terminal chunk, got %+v", got[2])
	}
}

func TestMurfClient_TransportErrorOmitsFinal(t *testing.T) {
	url := newSynthesisServer(t, func(conn *websocket.Conn, cfg, text map[string]any) {
		conn.WriteJSON(map[string]any{"audio": "YXVkaW8x"})
		// Drop the connection before finality
		conn.Close()
	})

	c := NewMurfClient("test-key", url, "en-US-amara", "Conversational", 44100)
	chunks, err := c.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	got := drainChunks(t, chunks)
	for _, chunk := range got {
		if chunk.Final {
			t.Error("Final chunk must not be emitted after a transport failure")
		}
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 audio chunk before failure, got %d", len(got))
	}
}

func TestMurfClient_DialFailure(t *testing.T) {
	c := NewMurfClient("test-key", "ws://localhost:1", "en-US-amara", "Conversational", 44100)
	if _, err := c.Synthesize(context.Background(), "Hello"); err == nil {
		t.Error("Expected error for unreachable endpoint")
	}
}

func TestMurfClient_APIKeyInQuery(t *testing.T) {
	keyCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyCh <- r.URL.Query().Get("api-key")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg json.RawMessage
		conn.ReadJSON(&msg)
		conn.ReadJSON(&msg)
		conn.WriteJSON(map[string]any{"final": true})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewMurfClient("secret-key", url, "en-US-amara", "Conversational", 44100)
	chunks, err := c.Synthesize(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	drainChunks(t, chunks)

	select {
	case key := <-keyCh:
		if key != "secret-key" {
			t.Errorf("Expected api-key 'secret-key', got '%s'", key)
		}
	case <-time.After(time.Second):
		t.Fatal("Server never saw the request")
	}
}

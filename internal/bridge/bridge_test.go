package bridge_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/searshs/voicebridge/internal/bridge"
	"github.com/searshs/voicebridge/internal/collaborators/memory"
	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/session"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func newModelServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestRun_EndsSessionOnCarrierStop drives a full call through a fake carrier
// client and a fake model server, verifying model audio is forwarded to the
// carrier and that the session is removed from the store on termination.
func TestRun_EndsSessionOnCarrierStop(t *testing.T) {
	modelSrv := newModelServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		conn.Read(ctx) // session.update
		conn.Read(ctx) // greeting conversation.item.create
		conn.Read(ctx) // greeting response.create

		evt, _ := json.Marshal(map[string]string{
			"type": "response.audio.delta", "delta": base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		})
		conn.Write(ctx, websocket.MessageText, evt)

		// Keep the connection open until the bridge tears it down.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	store := session.NewMemStore()
	state, err := store.Create("CA1", "+15551234567", "cust-1")
	if err != nil {
		t.Fatal(err)
	}

	dispatch := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)

	carrierSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		b := bridge.New(conn, state, store, dispatch, bridge.Config{
			APIKey:   "test-key",
			BaseURL:  wsURL(modelSrv.URL),
			Greeting: "Thanks for calling",
		}, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Run(ctx)
	}))
	t.Cleanup(carrierSrv.Close)

	client, _, err := websocket.Dial(context.Background(), wsURL(carrierSrv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	start, _ := json.Marshal(map[string]any{
		"event": "start",
		"start": map[string]string{"streamSid": "MZ1", "callSid": "CA1"},
	})
	if err := client.Write(context.Background(), websocket.MessageText, start); err != nil {
		t.Fatal(err)
	}

	// Expect the audio delta forwarded from the model to arrive as a media frame.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("reading forwarded media frame: %v", err)
	}
	var frame map[string]any
	json.Unmarshal(data, &frame)
	if frame["event"] != "media" {
		t.Errorf("frame event = %v, want media", frame["event"])
	}

	stop, _ := json.Marshal(map[string]string{"event": "stop"})
	client.Write(context.Background(), websocket.MessageText, stop)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get("CA1"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session was not removed from the store after the call ended")
}

// TestRun_FailsOverToFallbackBaseURL verifies that when the primary
// model-realtime endpoint refuses the dial, the Bridge retries against
// cfg.FallbackBaseURLs instead of failing the call outright.
func TestRun_FailsOverToFallbackBaseURL(t *testing.T) {
	deadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(deadServer.Close)

	fallbackDialed := make(chan struct{})
	fallbackSrv := newModelServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		conn.Read(ctx) // session.update
		close(fallbackDialed)
		conn.Read(ctx) // greeting conversation.item.create
		conn.Read(ctx) // greeting response.create
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	store := session.NewMemStore()
	state, err := store.Create("CA2", "+15551234567", "cust-1")
	if err != nil {
		t.Fatal(err)
	}
	dispatch := dispatcher.New(memory.NewScheduler(), memory.NewCustomerDirectory(), memory.NewImageIntake("https://u.example", 0), nil)

	carrierSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		b := bridge.New(conn, state, store, dispatch, bridge.Config{
			APIKey:           "test-key",
			BaseURL:          wsURL(deadServer.URL),
			FallbackBaseURLs: []string{wsURL(fallbackSrv.URL)},
			Greeting:         "Thanks for calling",
		}, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Run(ctx)
	}))
	t.Cleanup(carrierSrv.Close)

	client, _, err := websocket.Dial(context.Background(), wsURL(carrierSrv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	select {
	case <-fallbackDialed:
	case <-time.After(3 * time.Second):
		t.Fatal("fallback endpoint was never dialed after the primary failed")
	}

	stop, _ := json.Marshal(map[string]string{"event": "stop"})
	client.Write(context.Background(), websocket.MessageText, stop)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get("CA2"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session was not removed from the store after the call ended")
}

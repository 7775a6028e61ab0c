// Package bridge implements the Realtime Bridge: it owns one call's carrier
// media WebSocket and model-realtime WebSocket for its whole lifetime,
// pumping audio and tool calls between them.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/realtime"
	"github.com/searshs/voicebridge/internal/resilience"
	"github.com/searshs/voicebridge/internal/session"
	"github.com/searshs/voicebridge/internal/toolhost"
	"github.com/searshs/voicebridge/internal/toolschema"
)

// mediaFrame is the carrier media WebSocket's JSON frame grammar: a
// discriminated union keyed by Event.
type mediaFrame struct {
	Event string `json:"event"`

	Start struct {
		StreamSID string            `json:"streamSid"`
		CallSID   string            `json:"callSid"`
		Params    map[string]string `json:"customParameters"`
	} `json:"start"`

	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMediaFrame struct {
	Event     string             `json:"event"`
	StreamSID string             `json:"streamSid"`
	Media     outboundMediaBlock `json:"media"`
}

type outboundMediaBlock struct {
	Payload string `json:"payload"`
}

// Config configures a Bridge for one call.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	// FallbackBaseURLs are additional model-realtime endpoints tried, in
	// order, if BaseURL's dial fails or trips its circuit breaker.
	FallbackBaseURLs []string
	Voice            string
	Instructions     string
	Greeting         string
}

// Bridge owns the lifetime of one call's two WebSocket legs.
type Bridge struct {
	carrier *websocket.Conn
	state   *session.ConversationState
	store   session.Store
	cfg     Config
	logger  *slog.Logger

	dispatch *dispatcher.Dispatcher

	streamSID string
}

// New constructs a Bridge for one call. carrier must already be accepted.
func New(carrier *websocket.Conn, state *session.ConversationState, store session.Store, dispatch *dispatcher.Dispatcher, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{carrier: carrier, state: state, store: store, dispatch: dispatch, cfg: cfg, logger: logger}
}

// Run drives the call to completion: it connects to the model, exchanges the
// setup sequence, then pumps audio and tool calls until either leg closes.
// Session Store.End is always called before Run returns, regardless of which
// side closed first or why (spec §9 Open Question).
func (b *Bridge) Run(ctx context.Context) error {
	defer func() {
		b.store.End(b.state.CallID)
	}()

	host := toolhost.New(b.state, b.dispatch)

	model, err := b.connectModel(ctx)
	if err != nil {
		return fmt.Errorf("bridge: connect model: %w", err)
	}
	defer model.Close()

	model.OnToolCall(func(ctx context.Context, name, args string) (string, error) {
		result, err := host.ExecuteTool(ctx, name, args)
		if err != nil {
			return "", err
		}
		return toolResultText(result), nil
	})
	model.OnError(func(err error) {
		b.logger.Warn("model reported an error", "call_id", b.state.CallID, "error", err)
	})

	if err := b.sendGreeting(model); err != nil {
		return fmt.Errorf("bridge: send greeting: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	// The errgroup context is cancelled only on a pump error; cancelling
	// pumpCtx whenever either pump returns also stops the peer on a clean exit.
	pumpCtx, cancelPumps := context.WithCancel(gctx)
	defer cancelPumps()

	go func() {
		<-pumpCtx.Done()
		model.Close()
		b.carrier.Close(websocket.StatusNormalClosure, "bridge terminating")
	}()

	g.Go(func() error { defer cancelPumps(); return b.pumpCarrierToModel(pumpCtx, model) })
	g.Go(func() error { defer cancelPumps(); return b.pumpModelToCarrier(pumpCtx, model) })

	if err := g.Wait(); err != nil {
		b.logger.Info("bridge pump exited", "call_id", b.state.CallID, "error", err)
	}
	return nil
}

// connectModel dials the model-realtime endpoint, failing over through
// cfg.FallbackBaseURLs in order when the primary's dial fails. The fallback
// group and its per-endpoint breakers are built anew on every call, so each
// call dials the primary first; no breaker state carries over between calls.
func (b *Bridge) connectModel(ctx context.Context) (*realtime.Session, error) {
	primary := b.cfg.BaseURL
	group := resilience.NewFallbackGroup(primary, endpointLabel(primary, 0), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 2},
	})
	for i, url := range b.cfg.FallbackBaseURLs {
		group.AddFallback(endpointLabel(url, i+1), url)
	}

	return resilience.ExecuteWithResult(group, func(baseURL string) (*realtime.Session, error) {
		return realtime.Connect(ctx, realtime.Config{
			APIKey:       b.cfg.APIKey,
			Model:        b.cfg.Model,
			BaseURL:      baseURL,
			Voice:        b.cfg.Voice,
			Instructions: b.cfg.Instructions,
			Tools:        toolschema.All(),
		})
	})
}

func endpointLabel(baseURL string, index int) string {
	if baseURL == "" {
		baseURL = "default"
	}
	if index == 0 {
		return "model_endpoint_primary:" + baseURL
	}
	return fmt.Sprintf("model_endpoint_fallback_%d:%s", index, baseURL)
}

// toolResultText concatenates a tool result's text content, the shape the
// Realtime client's function_call_output expects.
func toolResultText(r *mcpsdk.CallToolResult) string {
	var sb []byte
	for _, c := range r.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb = append(sb, tc.Text...)
		}
	}
	return string(sb)
}

// sendGreeting injects the initial assistant message and requests audio for
// it, matching the original handler's fixed two-message opening sequence.
func (b *Bridge) sendGreeting(model *realtime.Session) error {
	return model.SendGreeting(b.cfg.Greeting)
}

// pumpCarrierToModel reads media frames from the carrier leg and forwards
// audio payloads to the model. It returns nil on a clean "stop" event or
// carrier close, and a non-nil error on any other read failure.
func (b *Bridge) pumpCarrierToModel(ctx context.Context, model *realtime.Session) error {
	for {
		_, data, err := b.carrier.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				return nil
			}
			return fmt.Errorf("bridge: carrier read: %w", err)
		}

		var frame mediaFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case "start":
			b.streamSID = frame.Start.StreamSID
			b.logger.Info("carrier stream started", "call_id", b.state.CallID, "stream_sid", b.streamSID)

		case "media":
			audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
			if err != nil || len(audio) == 0 {
				continue
			}
			if err := model.SendAudio(audio); err != nil {
				return fmt.Errorf("bridge: forward audio to model: %w", err)
			}

		case "stop":
			b.logger.Info("carrier stream stopped", "call_id", b.state.CallID)
			return nil
		}
	}
}

// pumpModelToCarrier forwards the model's synthesized audio to the carrier
// leg and folds completed user transcripts into the session's key facts. It
// returns when both of the model's channels are closed (session terminated).
func (b *Bridge) pumpModelToCarrier(ctx context.Context, model *realtime.Session) error {
	audioCh := model.Audio()
	transcriptCh := model.Transcripts()

	for audioCh != nil || transcriptCh != nil {
		select {
		case <-ctx.Done():
			return nil

		case chunk, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			if b.streamSID == "" {
				continue
			}
			frame := outboundMediaFrame{
				Event:     "media",
				StreamSID: b.streamSID,
				Media:     outboundMediaBlock{Payload: base64.StdEncoding.EncodeToString(chunk)},
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := b.carrier.Write(ctx, websocket.MessageText, data); err != nil {
				return fmt.Errorf("bridge: write audio to carrier: %w", err)
			}

		case t, ok := <-transcriptCh:
			if !ok {
				transcriptCh = nil
				continue
			}
			if t.Speaker == "user" {
				b.state.AddFact(session.TranscriptFact(t.Text))
				b.store.Update(b.state)
			}
		}
	}

	if err := model.Err(); err != nil {
		return fmt.Errorf("bridge: model session: %w", err)
	}
	return nil
}

// Package realtime implements the Realtime Bridge's model-facing leg: a
// client for an OpenAI-Realtime-style conversational model WebSocket.
//
// Audio is exchanged as base64-encoded G.711 µ-law (g711_ulaw) chunks to
// match the carrier media leg exactly — unlike the teacher's PCM16 provider,
// no transcoding step exists anywhere in this bridge (spec §1 Non-goals).
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/searshs/voicebridge/internal/toolschema"
)

const defaultBaseURL = "wss://api.openai.com/v1/realtime"

// ToolCallHandler is invoked when the model requests a tool call. It must
// return the text result to send back as function_call_output.
type ToolCallHandler func(ctx context.Context, name, argsJSON string) (string, error)

// Config configures a new model session.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Voice        string
	Instructions string
	Tools        []toolschema.Definition
}

// Session is one live model-facing WebSocket connection.
type Session struct {
	conn *websocket.Conn

	audioCh     chan []byte
	transcripts chan Transcript

	mu           sync.Mutex
	toolHandler  ToolCallHandler
	errorHandler func(error)
	errVal       error
	closed       bool

	currentAssistantText string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Transcript is one completed utterance, from either party.
type Transcript struct {
	Speaker string // "user" or "assistant"
	Text    string
}

// Connect dials the model WebSocket and sends the initial session.update.
// The returned Session's receive loop is already running.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-realtime-preview"
	}

	wsURL := fmt.Sprintf("%s?model=%s", baseURL, model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + cfg.APIKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s := &Session{
		conn:        conn,
		audioCh:     make(chan []byte, 64),
		transcripts: make(chan Transcript, 16),
		ctx:         sessCtx,
		cancel:      sessCancel,
	}

	if err := s.sendSessionUpdate(cfg.Voice, cfg.Instructions, cfg.Tools); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("realtime: session update: %w", err)
	}

	go s.receiveLoop()

	return s, nil
}

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	TurnDetection     map[string]any `json:"turn_detection,omitempty"`
	Tools             []wireTool     `json:"tools,omitempty"`
	ToolChoice        string         `json:"tool_choice,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
}

// serverVADDefault mirrors the original handler's turn_detection block:
// server-side voice-activity detection with a 500ms silence cutoff.
var serverVADDefault = map[string]any{
	"type":                "server_vad",
	"threshold":           0.5,
	"prefix_padding_ms":   300,
	"silence_duration_ms": 500,
}

type wireTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
	CallID  string             `json:"call_id,omitempty"`
	Output  string             `json:"output,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type createResponseMessage struct {
	Type     string           `json:"type"`
	Response *responseOptions `json:"response,omitempty"`
}

type responseOptions struct {
	Modalities []string `json:"modalities,omitempty"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`

	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	Error *serverErrorDetail `json:"error,omitempty"`
}

func (s *Session) sendSessionUpdate(voice, instructions string, tools []toolschema.Definition) error {
	params := sessionParams{
		InputAudioFormat:  "g711_ulaw",
		OutputAudioFormat: "g711_ulaw",
		Modalities:        []string{"text", "audio"},
		TurnDetection:     serverVADDefault,
		ToolChoice:        "auto",
		Temperature:       0.7,
	}
	if voice != "" {
		params.Voice = voice
	}
	if instructions != "" {
		params.Instructions = instructions
	}
	if len(tools) > 0 {
		params.Tools = toWireTools(tools)
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func toWireTools(tools []toolschema.Definition) []wireTool {
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		out[i] = wireTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return out
}

func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads and dispatches inbound events. It owns audioCh and
// transcripts and closes both when it exits.
func (s *Session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *Session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.created", "session.updated":
		// acknowledged, nothing to surface

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audio) == 0 {
			return
		}
		select {
		case s.audioCh <- audio:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentAssistantText += evt.Delta
		s.mu.Unlock()

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := s.currentAssistantText
		s.currentAssistantText = ""
		s.mu.Unlock()
		if text == "" {
			return
		}
		select {
		case s.transcripts <- Transcript{Speaker: "assistant", Text: text}:
		case <-s.ctx.Done():
		}

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		select {
		case s.transcripts <- Transcript{Speaker: "user", Text: evt.Transcript}:
		case <-s.ctx.Done():
		}

	case "response.function_call_arguments.done":
		s.handleFunctionCall(evt)

	case "error":
		s.handleErrorEvent(evt)
	}
}

func (s *Session) handleErrorEvent(evt *serverEvent) {
	s.mu.Lock()
	handler := s.errorHandler
	s.mu.Unlock()
	if handler == nil {
		return
	}
	msg := "unknown error"
	if evt.Error != nil && evt.Error.Message != "" {
		msg = evt.Error.Message
	}
	handler(fmt.Errorf("realtime: %s", msg))
}

// handleFunctionCall runs the registered handler and then sends the exact
// two-message sequence the model expects: a function_call_output item
// followed by a response.create (spec §4.5 tool-call round trip).
func (s *Session) handleFunctionCall(evt *serverEvent) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()
	if handler == nil {
		return
	}

	result, err := handler(s.ctx, evt.Name, evt.Arguments)
	if err != nil {
		result = fmt.Sprintf(`{"error": %q}`, err.Error())
	}

	_ = s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{Type: "function_call_output", CallID: evt.CallID, Output: result},
	})
	_ = s.writeJSON(map[string]string{"type": "response.create"})
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *Session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
}

// SendAudio forwards one G.711 µ-law chunk from the carrier leg to the model.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("realtime: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	return s.writeJSON(appendAudioMessage{Type: "input_audio_buffer.append", Audio: encoded})
}

// Audio returns the channel on which the model's synthesized audio arrives,
// closed when the session terminates.
func (s *Session) Audio() <-chan []byte { return s.audioCh }

// Transcripts returns the channel on which completed utterances arrive from
// either party, closed when the session terminates.
func (s *Session) Transcripts() <-chan Transcript { return s.transcripts }

// Err returns the first error that caused the receive loop to exit, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// OnError registers a callback for non-fatal error events from the model.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// OnToolCall registers the callback invoked for model-initiated tool calls.
func (s *Session) OnToolCall(handler ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// SendGreeting injects greeting as an assistant message and requests audio
// for it — the fixed two-message opening sequence that starts every call
// before either pump begins (spec §4.5 setup sequence). An empty greeting
// sends nothing.
func (s *Session) SendGreeting(greeting string) error {
	if greeting == "" {
		return nil
	}
	item := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    "assistant",
			Content: []conversationPart{{Type: "input_text", Text: greeting}},
		},
	}
	if err := s.writeJSON(item); err != nil {
		return err
	}
	return s.writeJSON(createResponseMessage{
		Type:     "response.create",
		Response: &responseOptions{Modalities: []string{"audio", "text"}},
	})
}

// Interrupt sends response.cancel, stopping the model's in-progress response.
// The Bridge does not call it; caller barge-in is not forwarded to the model.
func (s *Session) Interrupt() error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
}

// Close terminates the session and releases its resources. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

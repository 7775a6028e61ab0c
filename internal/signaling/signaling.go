// Package signaling implements the Carrier Signaling Handler: the inbound
// webhook endpoints a Twilio-style carrier calls to start and tear down a
// call, the media WebSocket accept handler that hands a call off to the
// Realtime Bridge, and the supplemented debug/inspection endpoints (spec §4
// of SPEC_FULL.md).
package signaling

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/searshs/voicebridge/internal/bridge"
	"github.com/searshs/voicebridge/internal/collaborators"
	"github.com/searshs/voicebridge/internal/dispatcher"
	"github.com/searshs/voicebridge/internal/session"
)

// terminalStatuses are the carrier call statuses that mean the call is over
// and its session should be removed even if the media WebSocket never
// connects or already disconnected uncleanly.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// twimlResponse is the XML document returned from /incoming-call: a
// <Connect><Stream> pointing the carrier at our media WebSocket.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Handler wires the Carrier Signaling Handler's HTTP and WebSocket endpoints
// to a Session Store and a Bridge per accepted media connection.
type Handler struct {
	Store     session.Store
	Customers collaborators.CustomerDirectory
	Dispatch  *dispatcher.Dispatcher
	BridgeCfg bridge.Config
	Logger    *slog.Logger
}

// New builds a Handler. logger may be nil, in which case slog.Default is used.
func New(store session.Store, customers collaborators.CustomerDirectory, dispatch *dispatcher.Dispatcher, bridgeCfg bridge.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Customers: customers, Dispatch: dispatch, BridgeCfg: bridgeCfg, Logger: logger}
}

// Register adds every signaling route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /incoming-call", h.IncomingCall)
	mux.HandleFunc("POST /call-status", h.CallStatus)
	mux.HandleFunc("GET /media/{call_id}", h.MediaStream)
	mux.HandleFunc("GET /sessions/{call_id}", h.GetSession)
	mux.HandleFunc("POST /sessions/{call_id}/context", h.AddSessionContext)
}

// IncomingCall is the entry point for every inbound call: it creates the
// call's session and returns TwiML connecting the carrier to our media
// WebSocket. It is idempotent — a retried webhook for a call_id that
// already has a live session is answered with the same TwiML rather than
// failing.
func (h *Handler) IncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form body", http.StatusBadRequest)
		return
	}

	callID := r.FormValue("CallSid")
	from := r.FormValue("From")
	to := r.FormValue("To")

	h.Logger.Info("incoming call", "call_id", callID, "from", from, "to", to)

	customerRef := ""
	if h.Customers != nil {
		ref, err := h.Customers.GetOrCreate(r.Context(), from)
		if err != nil {
			h.Logger.Warn("customer lookup failed", "error", err, "call_id", callID)
		} else {
			customerRef = ref
		}
	}

	if _, err := h.Store.Create(callID, from, customerRef); err != nil {
		h.Logger.Info("session already exists for call_id, re-answering idempotently", "call_id", callID)
	}

	host := r.Host
	wsURL := fmt.Sprintf("wss://%s/media/%s", host, callID)

	twiml := twimlResponse{
		Connect: twimlConnect{
			Stream: twimlStream{
				URL: wsURL,
				Parameters: []twimlParameter{
					{Name: "call_sid", Value: callID},
					{Name: "customer_phone", Value: from},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		h.Logger.Error("failed to encode TwiML response", "error", err, "call_id", callID)
	}
}

// CallStatus handles carrier call-status webhooks. A terminal status ends
// the session if it is still live; any other status is a no-op.
func (h *Handler) CallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form body", http.StatusBadRequest)
		return
	}
	callID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")

	h.Logger.Info("call status update", "call_id", callID, "status", status)

	if terminalStatuses[status] {
		h.Store.End(callID)
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// MediaStream accepts the carrier's media WebSocket and hands the call off
// to a new Bridge for the rest of its lifetime.
func (h *Handler) MediaStream(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	state, ok := h.Store.Get(callID)
	if !ok {
		h.Logger.Error("no session found for media connection", "call_id", callID)
		http.Error(w, "no session for call_id", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.Logger.Error("failed to accept media websocket", "error", err, "call_id", callID)
		return
	}

	b := bridge.New(conn, state, h.Store, h.Dispatch, h.BridgeCfg, h.Logger)
	if err := b.Run(r.Context()); err != nil {
		h.Logger.Error("bridge exited with error", "error", err, "call_id", callID)
	}
}

// GetSession is a supplemented debug/inspection endpoint: it reports a
// live session's current state (spec §4's supplemented features).
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	state, ok := h.Store.Get(callID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// sessionContextPatch is the request body accepted by AddSessionContext.
type sessionContextPatch struct {
	ApplianceType string   `json:"appliance_type"`
	Symptoms      []string `json:"symptoms"`
	ZipCode       string   `json:"zip_code"`
}

// AddSessionContext lets a caller inject diagnostic/scheduling context into a
// live session out of band — useful in development and tests, grounded on
// the original API's debug endpoint of the same shape.
func (h *Handler) AddSessionContext(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	state, ok := h.Store.Get(callID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	var patch sessionContextPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "bad JSON body", http.StatusBadRequest)
		return
	}

	if patch.ApplianceType != "" {
		state.Diagnostic.ApplianceType = patch.ApplianceType
	}
	if len(patch.Symptoms) > 0 {
		state.Diagnostic.AdditionalSymptoms = append(state.Diagnostic.AdditionalSymptoms, patch.Symptoms...)
	}
	if patch.ZipCode != "" {
		state.Scheduling.ZipCode = patch.ZipCode
	}
	h.Store.Update(state)

	writeJSON(w, http.StatusOK, map[string]any{"message": "Context updated", "session": state})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

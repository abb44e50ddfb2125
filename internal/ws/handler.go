// Package ws is the Protocol Server: it upgrades HTTP connections to
// WebSocket, performs the tag_id handshake, and routes each StreamEvent to
// either the Conversation Orchestrator (conversational events) or directly
// to the module registry and config store (management events), per
// spec.md §4.1. Grounded on the donor's internal/ws/handler.go, restructured
// around the new protocol.StreamEvent envelope instead of the donor's
// metadata-frame-plus-binary-audio handshake.
package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/config"
	"github.com/riverrun/voicegateway/internal/convo"
	"github.com/riverrun/voicegateway/internal/metrics"
	"github.com/riverrun/voicegateway/internal/prompts"
	"github.com/riverrun/voicegateway/internal/protocol"
	"github.com/riverrun/voicegateway/internal/session"
	"github.com/riverrun/voicegateway/internal/trace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds everything shared across sessions.
type HandlerConfig struct {
	Sessions    *session.Registry
	Modules     *capability.Registry
	Config      *config.Config
	TraceStore  *trace.Store
	SampleRate  int
	AudioFormat string
}

// Handler upgrades connections and drives the Protocol Server's per-session
// event loop.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a Protocol Server handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "wav"
	}
	return &Handler{cfg: cfg}
}

// connCloser adapts a *websocket.Conn to session.Conn.
type connCloser struct{ conn *websocket.Conn }

func (c connCloser) Close() error { return c.conn.Close() }

// ServeHTTP upgrades the connection and runs the session event loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	handshake, err := readHandshake(conn)
	if err != nil {
		slog.Error("read handshake", "error", err)
		return
	}

	sendRaw := newEventSender(conn)

	sess := h.cfg.Sessions.Start(handshake.TagID, connCloser{conn}, func() session.Session {
		return session.Session{
			ID:        uuid.NewString(),
			TagID:     handshake.TagID,
			Conn:      connCloser{conn},
			CreatedAt: time.Now(),
			Turn:      &session.TurnContext{},
		}
	})
	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	defer func() {
		h.cfg.Sessions.Remove(sess.ID)
		metrics.SessionsActive.Dec()
	}()

	if h.cfg.TraceStore != nil {
		_ = h.cfg.TraceStore.CreateSession(sess.ID, "")
		defer func() { _ = h.cfg.TraceStore.EndSession(sess.ID) }()
	}

	send := func(ev protocol.StreamEvent) error { return sendRaw(ev) }

	orch := convo.New(convo.Config{
		SessionID:    sess.ID,
		TagID:        sess.TagID,
		Registry:     h.cfg.Modules,
		Send:         send,
		SystemPrompt: prompts.ForSession(handshake.SystemPrompt),
		LLMModel:     handshake.LLMModel,
		LLMEngine:    handshake.LLMEngine,
		AudioFormat:  h.cfg.AudioFormat,
		SampleRate:   h.cfg.SampleRate,
	})
	sess.Orchestrator = orch
	defer orch.Close()

	ack, err := protocol.Marshal(protocol.EventServerSessionStart, sess.ID, sess.TagID, nowSeconds(), nil)
	if err == nil {
		_ = sendRaw(ack)
	}

	slog.Info("session started", "session_id", sess.ID, "tag_id", sess.TagID)
	h.eventLoop(conn, sess, orch, sendRaw)
	slog.Info("session ended", "session_id", sess.ID, "tag_id", sess.TagID)
}

func (h *Handler) eventLoop(conn *websocket.Conn, sess *session.Session, orch *convo.Orchestrator, send func(protocol.StreamEvent) error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			h.handleAudio(sess, orch, data)
		case websocket.TextMessage:
			var ev protocol.StreamEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Debug("malformed event", "session_id", sess.ID, "error", err)
				continue
			}
			h.dispatch(sess, orch, ev, send)
		}
	}
}

// dispatch routes one inbound text event per §4.1: conversational events go
// to the Orchestrator, management events (CONFIG_GET/SET, MODULE_STATUS_GET)
// are handled directly without touching it. Audio never arrives as a text
// event — it is carried on binary frames and routed in eventLoop.
func (h *Handler) dispatch(sess *session.Session, orch *convo.Orchestrator, ev protocol.StreamEvent, send func(protocol.StreamEvent) error) {
	switch ev.EventType {
	case protocol.EventClientTextInput:
		var td protocol.TextData
		if json.Unmarshal(ev.EventData, &td) == nil {
			orch.HandleTextInput(td.Text)
		}
	case protocol.EventServerAudioResponse:
		// Clients never send this; ignore defensively.
	case protocol.EventClientSpeechEnd, protocol.EventStreamEnd:
		orch.HandleSpeechEnd()
	case protocol.EventConfigGet:
		h.handleConfigGet(sess, send)
	case protocol.EventConfigSet:
		h.handleConfigSet(sess, ev, send)
	case protocol.EventModuleStatusGet:
		h.handleModuleStatus(sess, send)
	}
}

// handleAudio feeds a raw PCM16 binary frame straight to the Orchestrator's
// audio path, per §4.1/§5.1 — binary frames carry audio, never JSON.
func (h *Handler) handleAudio(sess *session.Session, orch *convo.Orchestrator, raw []byte) {
	if err := orch.HandleAudio(raw); err != nil {
		slog.Warn("handle audio failed", "session_id", sess.ID, "error", err)
	}
}

func (h *Handler) handleConfigGet(sess *session.Session, send func(protocol.StreamEvent) error) {
	ev, err := protocol.Marshal(protocol.EventConfigSnapshot, sess.ID, sess.TagID, nowSeconds(), h.cfg.Config.Snapshot())
	if err != nil {
		return
	}
	_ = send(ev)
}

type configSetPayload struct {
	Module  string         `json:"module"`
	Updates map[string]any `json:"updates"`
}

func (h *Handler) handleConfigSet(sess *session.Session, ev protocol.StreamEvent, send func(protocol.StreamEvent) error) {
	var payload configSetPayload
	if json.Unmarshal(ev.EventData, &payload) != nil {
		return
	}
	if err := h.cfg.Config.ApplySet(payload.Module, payload.Updates); err != nil {
		errEv, _ := protocol.Marshal(protocol.EventError, sess.ID, sess.TagID, nowSeconds(), protocol.ErrorData{Text: err.Error()})
		_ = send(errEv)
		return
	}
	h.handleConfigGet(sess, send)
}

func (h *Handler) handleModuleStatus(sess *session.Session, send func(protocol.StreamEvent) error) {
	ev, err := protocol.Marshal(protocol.EventModuleStatusReport, sess.ID, sess.TagID, nowSeconds(), h.cfg.Modules.Names())
	if err != nil {
		return
	}
	_ = send(ev)
}

// handshakePayload is the SYSTEM_CLIENT_SESSION_START event_data shape.
type handshakePayload struct {
	TagID        string `json:"tag_id"`
	SystemPrompt string `json:"system_prompt"`
	LLMModel     string `json:"llm_model"`
	LLMEngine    string `json:"llm_engine"`
}

// readHandshake reads the connection's first frame and requires it to be a
// SYSTEM_CLIENT_SESSION_START event carrying a non-empty tag_id. Per §4.1,
// any other frame arriving first is an error and the connection is closed.
func readHandshake(conn *websocket.Conn) (*handshakePayload, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("first frame must be a text handshake event, got binary")
	}
	var ev protocol.StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("first frame is not a valid StreamEvent: %w", err)
	}
	if ev.EventType != protocol.EventClientSessionStart {
		return nil, fmt.Errorf("first frame must be %s, got %s", protocol.EventClientSessionStart, ev.EventType)
	}
	var hs handshakePayload
	if len(ev.EventData) > 0 {
		if err := json.Unmarshal(ev.EventData, &hs); err != nil {
			return nil, fmt.Errorf("invalid handshake payload: %w", err)
		}
	}
	if hs.TagID == "" {
		return nil, fmt.Errorf("handshake missing tag_id")
	}
	return &hs, nil
}

func newEventSender(conn *websocket.Conn) func(protocol.StreamEvent) error {
	var mu sync.Mutex
	return func(ev protocol.StreamEvent) error {
		mu.Lock()
		defer mu.Unlock()
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

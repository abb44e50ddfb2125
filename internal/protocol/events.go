// Package protocol defines the wire envelope exchanged between clients and
// the gateway: one JSON StreamEvent shape carried on text frames. Outbound
// audio travels inline as base64 inside event_data, never as separate binary
// frames; inbound client audio arrives as raw binary frames outside this
// envelope.
package protocol

import (
	"encoding/base64"
	"encoding/json"
)

// EventType is the closed set of event_type values from the wire schema.
type EventType string

const (
	EventClientSessionStart EventType = "SYSTEM_CLIENT_SESSION_START"
	EventServerSessionStart EventType = "SYSTEM_SERVER_SESSION_START"
	EventClientTextInput    EventType = "CLIENT_TEXT_INPUT"
	EventClientSpeechEnd    EventType = "CLIENT_SPEECH_END"
	EventStreamEnd          EventType = "STREAM_END"
	EventServerTextResponse EventType = "SERVER_TEXT_RESPONSE"
	EventServerAudioResponse EventType = "SERVER_AUDIO_RESPONSE"
	EventError              EventType = "ERROR"
	EventConfigGet          EventType = "CONFIG_GET"
	EventConfigSet          EventType = "CONFIG_SET"
	EventModuleStatusGet    EventType = "MODULE_STATUS_GET"
	EventConfigSnapshot     EventType = "CONFIG_SNAPSHOT"
	EventModuleStatusReport EventType = "MODULE_STATUS_REPORT"
)

// StreamEvent is the sole wire message shape in both directions.
type StreamEvent struct {
	EventType EventType       `json:"event_type"`
	EventData json.RawMessage `json:"event_data,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	TagID     string          `json:"tag_id,omitempty"`
	Timestamp float64         `json:"timestamp"`
}

// TextData is the event_data payload for text-carrying events.
type TextData struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// AudioData is the event_data payload for SERVER_AUDIO_RESPONSE; raw bytes
// are carried as base64 text per §6, never as a separate binary frame.
type AudioData struct {
	Data    string `json:"data"`
	Format  string `json:"format"`
	IsFinal bool   `json:"is_final"`
}

// NewAudioData base64-encodes raw audio bytes for wire transport.
func NewAudioData(raw []byte, format string, isFinal bool) AudioData {
	return AudioData{Data: base64.StdEncoding.EncodeToString(raw), Format: format, IsFinal: isFinal}
}

// Decode returns the raw audio bytes carried by an AudioData payload.
func (a AudioData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// ErrorData is the event_data payload for ERROR events.
type ErrorData struct {
	Text string `json:"text"`
}

// Marshal packs a typed payload into event_data for sending.
func Marshal(eventType EventType, sessionID, tagID string, timestamp float64, payload any) (StreamEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return StreamEvent{}, err
		}
		raw = data
	}
	return StreamEvent{
		EventType: eventType,
		EventData: raw,
		SessionID: sessionID,
		TagID:     tagID,
		Timestamp: timestamp,
	}, nil
}

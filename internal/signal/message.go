package signal

import (
	"encoding/json"
	"fmt"

	"ring_home/native/internal/domain"
)

// Outbound methods.
const (
	methodLiveView        = "live_view"
	methodActivateSession = "activate_session"
	methodStreamOptions   = "stream_options"
	methodCameraOptions   = "camera_options"
	methodPing            = "ping"
)

// Inbound methods.
const (
	methodSessionCreated = "session_created"
	methodSDP            = "sdp"
	methodICE            = "ice"
	methodNotification   = "notification"
	methodClose          = "close"
	methodPong           = "pong"
)

const notificationCameraConnected = "camera_connected"

// Message is the signalling envelope exchanged over the WebSocket.
type Message struct {
	Method   string          `json:"method"`
	DialogID string          `json:"dialog_id,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// BuildMessage encodes an outbound envelope. The device id is always added
// to the body; the session id only once it is known.
func BuildMessage(method, dialogID string, deviceID int64, sessionID string, body map[string]any) ([]byte, error) {
	merged := make(map[string]any, len(body)+2)
	for k, v := range body {
		merged[k] = v
	}
	merged["doorbot_id"] = deviceID
	if sessionID != "" {
		merged["session_id"] = sessionID
	}

	data, err := json.Marshal(struct {
		Method   string         `json:"method"`
		DialogID string         `json:"dialog_id"`
		Body     map[string]any `json:"body"`
	}{method, dialogID, merged})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}
	return data, nil
}

// ParseMessage decodes an inbound envelope.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if msg.Method == "" {
		return nil, fmt.Errorf("%w: missing method", domain.ErrMalformedMessage)
	}
	return &msg, nil
}

func (m *Message) decodeBody(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("%w: %s without body", domain.ErrMalformedMessage, m.Method)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("%w: %s body: %v", domain.ErrMalformedMessage, m.Method, err)
	}
	return nil
}

// SessionID returns the id carried by a session_created message.
func (m *Message) SessionID() (string, error) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := m.decodeBody(&body); err != nil {
		return "", err
	}
	if body.SessionID == "" {
		return "", fmt.Errorf("%w: %s without session_id", domain.ErrMalformedMessage, m.Method)
	}
	return body.SessionID, nil
}

// SDP returns the answer carried by an sdp message.
func (m *Message) SDP() (domain.SDPAnswer, error) {
	var body domain.SDPAnswer
	if err := m.decodeBody(&body); err != nil {
		return body, err
	}
	if body.SDP == "" {
		return body, fmt.Errorf("%w: sdp without sdp", domain.ErrMalformedMessage)
	}
	return body, nil
}

// ICE returns the candidate carried by an ice message.
func (m *Message) ICE() (domain.ICECandidate, error) {
	var body domain.ICECandidate
	if err := m.decodeBody(&body); err != nil {
		return body, err
	}
	if body.Candidate == "" {
		return body, fmt.Errorf("%w: ice without candidate", domain.ErrMalformedMessage)
	}
	return body, nil
}

// NotificationText returns the text of a notification message.
func (m *Message) NotificationText() (string, error) {
	var body struct {
		Text string `json:"text"`
	}
	if err := m.decodeBody(&body); err != nil {
		return "", err
	}
	return body.Text, nil
}

// CloseReason returns the reason of a close message. A close without a
// readable reason still closes, so callers may treat the error as advisory.
func (m *Message) CloseReason() (domain.CloseReason, error) {
	var body struct {
		Reason domain.CloseReason `json:"reason"`
	}
	if err := m.decodeBody(&body); err != nil {
		return domain.CloseReason{}, err
	}
	return body.Reason, nil
}

package signal

import (
	"encoding/json"
	"testing"

	"ring_home/native/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage_LiveViewOmitsSessionID(t *testing.T) {
	data, err := BuildMessage(methodLiveView, "dialog-1", 12345, "", map[string]any{"sdp": "v=0"})
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "live_view", env["method"])
	assert.Equal(t, "dialog-1", env["dialog_id"])

	body := env["body"].(map[string]any)
	assert.Equal(t, float64(12345), body["doorbot_id"])
	assert.Equal(t, "v=0", body["sdp"])
	assert.NotContains(t, body, "session_id")
}

func TestBuildMessage_IncludesSessionID(t *testing.T) {
	data, err := BuildMessage(methodPing, "dialog-1", 7, "sess-9", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"ping","dialog_id":"dialog-1","body":{"doorbot_id":7,"session_id":"sess-9"}}`, string(data))
}

func TestBuildMessage_DoesNotMutateBody(t *testing.T) {
	body := map[string]any{"stealth_mode": false}
	_, err := BuildMessage(methodCameraOptions, "d", 1, "s", body)
	require.NoError(t, err)
	assert.Len(t, body, 1)
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"method":"ice","dialog_id":"d","body":{"ice":"candidate:1 1 udp 1 1.1.1.1 1 typ host","mlineindex":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "ice", msg.Method)

	ice, err := msg.ICE()
	require.NoError(t, err)
	assert.Equal(t, 1, ice.MLineIndex)
	assert.Equal(t, "candidate:1 1 udp 1 1.1.1.1 1 typ host", ice.Candidate)
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := ParseMessage([]byte(`{"method":`))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	_, err = ParseMessage([]byte(`{"body":{}}`))
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestMessageAccessors_MissingFields(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"method":"session_created","body":{}}`))
	require.NoError(t, err)
	_, err = msg.SessionID()
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	msg, err = ParseMessage([]byte(`{"method":"sdp"}`))
	require.NoError(t, err)
	_, err = msg.SDP()
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestMessage_CloseReason(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"method":"close","body":{"reason":{"code":5,"text":"timeout"}}}`))
	require.NoError(t, err)
	reason, err := msg.CloseReason()
	require.NoError(t, err)
	assert.Equal(t, domain.CloseReason{Code: 5, Text: "timeout"}, reason)

	msg, err = ParseMessage([]byte(`{"method":"close"}`))
	require.NoError(t, err)
	reason, err = msg.CloseReason()
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
	assert.Equal(t, domain.CloseReason{}, reason)

	msg, err = ParseMessage([]byte(`{"method":"close","body":{"reason":"gone"}}`))
	require.NoError(t, err)
	_, err = msg.CloseReason()
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:     EventOAuthBind,
		UserID:   "7",
		Provider: "github",
		Details:  map[string]interface{}{"intent": "bind", "attempt": 2, "created": false},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "oauth_bind", entry["event_type"])
	assert.Equal(t, "7", entry["user_id"])
	assert.Equal(t, "github", entry["provider"])
	assert.Equal(t, "bind", entry["intent"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, false, entry["created"])
	assert.NotContains(t, entry, "ip")
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("GET", "/oauth/github/callback", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	LogFromRequest(req, Event{Type: EventRateLimitExceed})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.7", entry["ip"])
	assert.Equal(t, "test-agent", entry["user_agent"])
}

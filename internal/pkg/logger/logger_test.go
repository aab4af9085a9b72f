package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
		SetRedactPII(true)
	})
	return &buf
}

func TestLog_RedactsRecipientFields(t *testing.T) {
	buf := captureOutput(t)

	Info("event applied", "recipient", "john.doe@example.com", "count", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "jo***@example.com", entry["recipient"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestLog_RedactsEmbeddedEmailsInErrors(t *testing.T) {
	buf := captureOutput(t)

	Error("send failed", "error", errors.New("rejected ab@example.com"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rejected ***@example.com", entry["error"])
}

func TestLog_RespectsLevel(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(WARN)

	Info("dropped")
	Debug("dropped")
	assert.Empty(t, buf.String())

	Warn("kept")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel(" error "))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-address"))
	assert.Equal(t, "ne***@example.com", RedactEmail("Weekly News <news@example.com>"))
	assert.Equal(t, "***@***", RedactEmail("a@b@example.com"))
}

func TestLog_FormatsTimesAndDurations(t *testing.T) {
	buf := captureOutput(t)

	Info("cycle", "cursor", time.Date(2025, 1, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600)), "took", 1500*time.Millisecond)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "2025-01-01T12:00:00Z", entry["cursor"])
	assert.Equal(t, "1.5s", entry["took"])
}

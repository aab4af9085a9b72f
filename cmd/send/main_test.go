package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/repository/memory"
	"github.com/ignite/bulkmail/internal/service/suppression"
)

func TestFilterSuppressed(t *testing.T) {
	svc := suppression.NewService(memory.NewSuppressionRepo())
	ctx := context.Background()
	_, err := svc.Apply(ctx, &domain.EmailEvent{
		Kind:      domain.EventComplained,
		Recipient: "spam@example.com",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, skipped, err := filterSuppressed(ctx, svc, domain.RecipientData{
		"ok@example.com":   {"name": "Ok"},
		"Spam@Example.com": {"name": "Spam"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, domain.RecipientData{"ok@example.com": {"name": "Ok"}}, got)
}

func TestReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"subject":"Hi %recipient.name%","from":"news@example.com","track_opens":true}`), 0o600))

	var msg domain.Message
	require.NoError(t, readJSON(path, &msg))
	assert.Equal(t, "Hi %recipient.name%", msg.Subject)
	assert.True(t, msg.TrackOpens)

	assert.Error(t, readJSON(filepath.Join(t.TempDir(), "missing.json"), &msg))
}

// writeFixtures writes a config, message and recipient file and clears the
// environment overrides that would point the command at real services.
func writeFixtures(t *testing.T) (cfgPath, msgPath, rcptPath string) {
	t.Helper()
	for _, key := range []string{"POSTMARK_API_TOKEN", "DATABASE_URL", "REDIS_URL", "MAIL_PROVIDER", "CONFIG_PATH"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	msgPath = filepath.Join(dir, "message.json")
	rcptPath = filepath.Join(dir, "recipients.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mailing:\n  provider: postmark\nlog:\n  level: error\n"), 0o600))
	require.NoError(t, os.WriteFile(msgPath, []byte(`{"id":"m-1","subject":"Hi","html":"<p>Hi</p>","from":"news@example.com"}`), 0o600))
	require.NoError(t, os.WriteFile(rcptPath, []byte(`{"a@example.com":{},"b@example.com":{}}`), 0o600))
	return cfgPath, msgPath, rcptPath
}

func TestRun_MissingFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"-message", "m.json"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}

func TestRun_DryRun(t *testing.T) {
	cfgPath, msgPath, rcptPath := writeFixtures(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath, "-message", msgPath, "-recipients", rcptPath, "-dry-run"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "message m-1 via postmark: 2 recipients, 0 suppressed, 1 batches")
}

func TestRun_BatchFailureReturnsExitCode(t *testing.T) {
	cfgPath, msgPath, rcptPath := writeFixtures(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfgPath, "-message", msgPath, "-recipients", rcptPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "batch 1/1 failed")
	assert.NotContains(t, stdout.String(), "accepted=")
}

func TestRun_MissingConfig(t *testing.T) {
	_, msgPath, rcptPath := writeFixtures(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "-message", msgPath, "-recipients", rcptPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "FATAL: load config")
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestWithContext(t *testing.T) {
	ctx := WithContext(context.Background(), New())
	assert.NotNil(t, ctx.Value(LoggerKey))
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrieved := FromContext(ctx)
	retrieved.Info().Msg("test")

	assert.NotZero(t, buf.Len())
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"run_id":    "123",
		"file_name": "CA-1.pdf",
	})
	log.Info().Msg("test message")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"123"`)
	assert.Contains(t, out, `"file_name":"CA-1.pdf"`)
}

func TestFromContextOr(t *testing.T) {
	buf := &bytes.Buffer{}
	fallback := zerolog.New(buf)

	FromContextOr(context.Background(), fallback).Info().Msg("fallback")
	assert.Contains(t, buf.String(), "fallback")

	buf.Reset()
	other := &bytes.Buffer{}
	ctx := WithContext(context.Background(), zerolog.New(other))
	FromContextOr(ctx, fallback).Info().Msg("stored")
	assert.Empty(t, buf.String())
	assert.Contains(t, other.String(), "stored")
}

func TestWithRequestID(t *testing.T) {
	t.Run("tags stored logger once", func(t *testing.T) {
		buf := &bytes.Buffer{}
		ctx := WithRequestID(WithContext(context.Background(), zerolog.New(buf)), "req-1")

		assert.Equal(t, "req-1", RequestID(ctx))
		FromContext(ctx).Info().Msg("tagged")
		assert.Equal(t, 1, strings.Count(buf.String(), `"request_id":"req-1"`))
	})

	t.Run("without logger only stores id", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-2")
		assert.Equal(t, "req-2", RequestID(ctx))
		assert.Nil(t, ctx.Value(LoggerKey))
	})
}

func TestWithRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithRunID(WithContext(context.Background(), zerolog.New(buf)), "run-9")

	assert.Equal(t, "run-9", RunID(ctx))
	assert.Empty(t, RequestID(ctx))
	FromContext(ctx).Info().Msg("tagged")
	assert.Contains(t, buf.String(), `"run_id":"run-9"`)
}

func TestWithFields_KeyOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(zerolog.New(buf), map[string]interface{}{"b": 2, "a": 1, "c": 3})
	log.Info().Msg("")

	assert.True(t, strings.HasPrefix(buf.String(), `{"level":"info","a":1,"b":2,"c":3`), buf.String())
}

func TestFileActivity(t *testing.T) {
	dir := t.TempDir()
	activity, err := NewFileActivity(dir, "Maria Santos")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "activity_Maria_Santos.log"), activity.Path())

	activity.Log(ActionExtractionStarted, "a.pdf", "b.png")
	activity.Log(ActionLedgerReset)
	require.NoError(t, activity.Close())
	activity.Log(ActionExportPerformed)

	data, err := os.ReadFile(activity.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first struct {
		User   string   `json:"user"`
		Action string   `json:"action"`
		Files  []string `json:"files"`
		Time   string   `json:"time"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Maria Santos", first.User)
	assert.Equal(t, ActionExtractionStarted, first.Action)
	assert.Equal(t, []string{"a.pdf", "b.png"}, first.Files)
	assert.NotEmpty(t, first.Time)

	assert.Contains(t, lines[1], ActionLedgerReset)
	assert.NotContains(t, lines[1], "files")
}

func TestFileActivity_Appends(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		activity, err := NewFileActivity(dir, "clerk")
		require.NoError(t, err)
		activity.Log(ActionExportPerformed, "ledger.csv")
		require.NoError(t, activity.Close())
	}

	data, err := os.ReadFile(filepath.Join(dir, "activity_clerk.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), ActionExportPerformed))
}

func TestNewFileActivity_BadDir(t *testing.T) {
	_, err := NewFileActivity(filepath.Join(t.TempDir(), "missing"), "clerk")
	assert.Error(t, err)
}

func TestNopActivity(t *testing.T) {
	var a Activity = NopActivity{}
	a.Log(ActionExportPerformed, "x")
}

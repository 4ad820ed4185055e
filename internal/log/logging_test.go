package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestLevelBandSplitsRecords(t *testing.T) {
	var low, high bytes.Buffer
	logger := slog.New(NewMultiHandler(
		LevelBand{Min: slog.LevelInfo, Max: slog.LevelError, H: slog.NewTextHandler(&low, nil)},
		LevelBand{Min: slog.LevelError, Max: LevelMax, H: slog.NewTextHandler(&high, nil)},
	))
	logger.Debug("quiet")
	logger.Info("hello")
	logger.Error("boom")

	assert.Contains(t, low.String(), "hello")
	assert.NotContains(t, low.String(), "boom")
	assert.NotContains(t, low.String(), "quiet")
	assert.Contains(t, high.String(), "boom")
	assert.NotContains(t, high.String(), "hello")
}

func TestMultiHandlerEnabled(t *testing.T) {
	h := NewMultiHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestMultiHandlerKeepsGoingOnError(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(
		failingHandler{slog.NewTextHandler(io.Discard, nil)},
		slog.NewTextHandler(&buf, nil),
	)
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0))
	assert.EqualError(t, err, "disk full")
	assert.Contains(t, buf.String(), "still written")
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", LevelTrace))
	logger.Log(context.Background(), LevelTrace, "Collected type", "type", "example.com/shop.Order")
	logger.Debug("plain")

	dec := json.NewDecoder(&buf)
	var rec map[string]any
	require.NoError(t, dec.Decode(&rec))
	assert.Equal(t, "TRACE", rec["level"])
	require.NoError(t, dec.Decode(&rec))
	assert.Equal(t, "DEBUG", rec["level"])
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "json", slog.LevelInfo)).Info("x", "k", 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "x", rec["msg"])

	buf.Reset()
	slog.New(NewHandler(&buf, "text", slog.LevelInfo)).Info("x")
	assert.Contains(t, buf.String(), "msg=x")

	// A buffer is never a terminal.
	buf.Reset()
	slog.New(NewHandler(&buf, "auto", slog.LevelInfo)).Info("x")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aotkit.log")
	logger, closers, err := SetupLogger("debug", path, "text")
	require.NoError(t, err)
	logger.Debug("to file")
	for _, c := range closers {
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

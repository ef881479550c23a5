package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConsoleLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ConsoleLevel(false, false, true))
	assert.Equal(t, zap.InfoLevel, ConsoleLevel(false, true, false))
	assert.Equal(t, zap.ErrorLevel, ConsoleLevel(true, false, false))
	assert.Equal(t, zap.WarnLevel, ConsoleLevel(false, false, false))
	// --debug wins if somehow combined with the others.
	assert.Equal(t, zap.DebugLevel, ConsoleLevel(true, true, true))
}

func TestNewConsoleOnlyWhenLogsDirEmpty(t *testing.T) {
	log, err := New(zap.InfoLevel, "", "20260101T000000Z")
	require.NoError(t, err)
	require.NotNil(t, log)
	log.Info("console only, no file core")
}

func TestNewWritesDebugFileRegardlessOfConsoleLevel(t *testing.T) {
	dir := t.TempDir()
	log, err := New(zap.ErrorLevel, dir, "20260101T000000Z")
	require.NoError(t, err)

	log.Debug("debug detail", zap.String("url", "https://example.test/"))
	require.NoError(t, log.Sync())

	path := filepath.Join(dir, "debug_requests_20260101T000000Z.log")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "debug detail")
	assert.Contains(t, string(content), "example.test")
}

func TestNewMatchLoggerWritesToMatchedURLsFile(t *testing.T) {
	dir := t.TempDir()
	matchLog, err := NewMatchLogger(dir, "20260101T000000Z")
	require.NoError(t, err)

	matchLog.Info("matched domain", zap.String("domain", "tracker.example"))
	require.NoError(t, matchLog.Sync())

	path := filepath.Join(dir, "matched_urls_20260101T000000Z.log")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "tracker.example")
}

func TestNewMatchLoggerOmitsDebugLevel(t *testing.T) {
	dir := t.TempDir()
	matchLog, err := NewMatchLogger(dir, "20260101T000000Z")
	require.NoError(t, err)

	matchLog.Debug("should not appear")
	matchLog.Info("should appear")
	require.NoError(t, matchLog.Sync())

	path := filepath.Join(dir, "matched_urls_20260101T000000Z.log")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "should not appear")
	assert.Contains(t, string(content), "should appear")
}

func TestFileWriterDefaultsAreSane(t *testing.T) {
	ws := fileWriter(filepath.Join(t.TempDir(), "x.log"))
	var _ zapcore.WriteSyncer = ws
	require.NotNil(t, ws)
}

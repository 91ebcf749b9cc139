package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestSetup_WritesJSONToLogFile(t *testing.T) {
	dir := t.TempDir()
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Setup(Config{Level: "info", Dir: dir, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	slog.Info("hello from test", slog.String("key", "value"))
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "quietpage.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello from test"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestSetup_LevelFiltersRecords(t *testing.T) {
	dir := t.TempDir()
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Setup(Config{Level: "warn", Dir: dir, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	slog.Info("should be dropped")
	slog.Warn("should be kept")
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "quietpage.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should be kept")
}

func TestFanoutHandler_DuplicatesRecords(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	)
	logger := slog.New(h)

	logger.Info("fanned out")

	assert.Contains(t, a.String(), "fanned out")
	assert.Contains(t, b.String(), "fanned out")
}

func TestFanoutHandler_SingleHandlerPassThrough(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	h := newFanoutHandler(inner)

	assert.Same(t, slog.Handler(inner), h)
}

func TestFanoutHandler_EnabledWhenAnyHandlerIs(t *testing.T) {
	var buf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestRotatingWriter_RotatesWhenFull(t *testing.T) {
	// Given: a writer with a 1 MB cap
	dir := t.TempDir()
	path := filepath.Join(dir, "quietpage.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	chunk := []byte(strings.Repeat("x", 600*1024))

	// When: writes exceed the cap
	_, err = w.Write(chunk)
	require.NoError(t, err)
	_, err = w.Write(chunk)
	require.NoError(t, err)

	// Then: the first chunk was rotated out
	rotatedInfo, err := os.Stat(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), rotatedInfo.Size())
	currentInfo, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), currentInfo.Size())
}

func TestRotatingWriter_KeepsWritingAfterFailedRotation(t *testing.T) {
	// Given: a full log file whose rotation target is blocked by a
	// non-empty directory. With maxFiles=1 the blocker is neither
	// removable nor renamable, so the rename of the live file must fail.
	dir := t.TempDir()
	path := filepath.Join(dir, "quietpage.log")
	w, err := NewRotatingWriter(path, 1, 1)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, os.MkdirAll(path+".1", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path+".1", "blocker"), []byte("x"), 0o644))

	chunk := []byte(strings.Repeat("x", 600*1024))
	_, err = w.Write(chunk)
	require.NoError(t, err)

	// When: the next write trips the failing rotation
	_, err = w.Write(chunk)
	require.NoError(t, err)

	// Then: writes keep landing in the current file
	_, err = w.Write([]byte("still alive\n"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "still alive")
}

func TestRotatingWriter_PrunesOldRotations(t *testing.T) {
	// Given: a cap of two rotated files
	dir := t.TempDir()
	path := filepath.Join(dir, "quietpage.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: rotation happens several times over
	chunk := []byte(strings.Repeat("x", 1024*1024))
	for i := 0; i < 4; i++ {
		_, err = w.Write(chunk)
		require.NoError(t, err)
	}

	// Then: only the newest two rotations survive
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

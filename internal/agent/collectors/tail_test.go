package collectors

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTail(t *testing.T, path string) *logTail {
	t.Helper()
	tail, err := newLogTail(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tail.Close() })
	return tail
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// drainUntil accumulates drained lines until at least want arrived. fsnotify
// delivery is asynchronous, so assertions poll.
func drainUntil(t *testing.T, tail *logTail, want int) []string {
	t.Helper()
	var got []string
	require.Eventually(t, func() bool {
		got = append(got, tail.Lines()...)
		return len(got) >= want
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestTailSkipsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendLine(t, path, "old line from before the agent\n")

	tail := newTestTail(t, path)
	appendLine(t, path, "fresh line\n")

	got := drainUntil(t, tail, 1)
	assert.Equal(t, []string{"fresh line"}, got)
}

func TestTailLateCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-yet.log")
	tail := newTestTail(t, path)

	appendLine(t, path, "first\nsecond\n")

	got := drainUntil(t, tail, 2)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestTailPartialLineHeldUntilComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	tail := newTestTail(t, path)

	appendLine(t, path, "beginning ")
	appendLine(t, path, "and end\nnext\n")

	got := drainUntil(t, tail, 2)
	assert.Equal(t, []string{"beginning and end", "next"}, got)
}

func TestTailStripsCarriageReturns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	tail := newTestTail(t, path)

	appendLine(t, path, "windows line\r\n")

	got := drainUntil(t, tail, 1)
	assert.Equal(t, []string{"windows line"}, got)
}

func TestTailRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	tail := newTestTail(t, path)

	appendLine(t, path, "before rotation\n")
	drainUntil(t, tail, 1)

	// Classic logrotate: rename away, recreate, keep writing.
	require.NoError(t, os.Rename(path, filepath.Join(dir, "app.log.1")))
	appendLine(t, path, "after rotation\n")

	got := drainUntil(t, tail, 1)
	assert.Equal(t, []string{"after rotation"}, got)
}

func TestTailTruncationRewinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	tail := newTestTail(t, path)

	appendLine(t, path, "a much longer line that moves the offset forward\n")
	drainUntil(t, tail, 1)

	// copytruncate rotation: the file shrinks in place.
	require.NoError(t, os.Truncate(path, 0))
	appendLine(t, path, "tiny\n")

	got := drainUntil(t, tail, 1)
	assert.Equal(t, []string{"tiny"}, got)
}

func TestTailIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	tail := newTestTail(t, path)

	appendLine(t, filepath.Join(dir, "other.log"), "noise\n")
	appendLine(t, path, "signal\n")

	got := drainUntil(t, tail, 1)
	assert.Equal(t, []string{"signal"}, got)
}

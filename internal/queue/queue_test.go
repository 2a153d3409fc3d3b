package queue

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T, maxBytes int64, maxRetries int) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"), maxBytes, maxRetries, nil)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func mustPush(t *testing.T, q *Queue, payload string) {
	t.Helper()
	_, err := q.Push([]byte(payload))
	require.NoError(t, err)
}

// ============================================================================
// FIFO CONTRACT
// ============================================================================

func TestPushPopOrder(t *testing.T) {
	q := openTestQueue(t, 1<<20, 3)
	mustPush(t, q, "one")
	mustPush(t, q, "two")
	mustPush(t, q, "three")

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range []string{"one", "two", "three"} {
		e, found, err := q.Pop()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, string(e.Bytes))
		assert.Zero(t, e.Retries)
	}

	_, found, err := q.Pop()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, q.ByteSize())
}

func TestPeekLeavesHead(t *testing.T) {
	q := openTestQueue(t, 1<<20, 3)
	mustPush(t, q, "head")

	for i := 0; i < 2; i++ {
		e, found, err := q.Peek()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "head", string(e.Bytes))
	}

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCommitRemovesBySequence(t *testing.T) {
	q := openTestQueue(t, 1<<20, 3)
	mustPush(t, q, "head")
	mustPush(t, q, "next")

	e, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, q.Commit(e))
	require.NoError(t, q.Commit(e), "double commit is a no-op")

	head, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "next", string(head.Bytes))
	assert.Equal(t, int64(4), q.ByteSize())
}

// ============================================================================
// BYTE CAP
// ============================================================================

func TestPushOverCapDropsOldest(t *testing.T) {
	q := openTestQueue(t, 30, 3)

	for i := 0; i < 5; i++ {
		mustPush(t, q, fmt.Sprintf("entry-%d**", i)) // 9 bytes each
	}

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n, "cap fits three 10-byte entries")
	assert.Equal(t, uint64(2), q.Dropped())
	assert.LessOrEqual(t, q.ByteSize(), int64(30))

	e, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "entry-2**", string(e.Bytes), "oldest entries were sacrificed")
}

func TestOversizedEntryIsNeverSacrificed(t *testing.T) {
	q := openTestQueue(t, 8, 3)

	dropped, err := q.Push([]byte("way-over-the-cap"))
	require.NoError(t, err)
	assert.Zero(t, dropped)

	// The next push evicts it as the oldest.
	dropped, err = q.Push([]byte("tiny"))
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	e, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tiny", string(e.Bytes))
}

// ============================================================================
// RETRY BUDGET
// ============================================================================

func TestRequeueMovesToTail(t *testing.T) {
	q := openTestQueue(t, 1<<20, 3)
	mustPush(t, q, "flaky")
	mustPush(t, q, "fresh")

	e, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "flaky", string(e.Bytes))

	requeued, err := q.Requeue(e)
	require.NoError(t, err)
	assert.True(t, requeued)

	first, found, err := q.Pop()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fresh", string(first.Bytes), "requeued entry yields the head")

	second, found, err := q.Pop()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "flaky", string(second.Bytes))
	assert.Equal(t, uint32(1), second.Retries)
}

func TestRequeueOverBudgetDiscards(t *testing.T) {
	q := openTestQueue(t, 1<<20, 2)
	mustPush(t, q, "doomed")

	for attempt := 0; attempt < 2; attempt++ {
		e, found, err := q.Peek()
		require.NoError(t, err)
		require.True(t, found)
		requeued, err := q.Requeue(e)
		require.NoError(t, err)
		require.True(t, requeued, "attempt %d is within budget", attempt)
	}

	e, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint32(2), e.Retries)

	requeued, err := q.Requeue(e)
	require.NoError(t, err)
	assert.False(t, requeued, "third retry exceeds max_retries=2")
	assert.Equal(t, uint64(1), q.Discarded())

	n, err := q.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, q.ByteSize())
}

func TestDropOverRetryAfterBudgetLowered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := Open(path, 1<<20, 5, nil)
	require.NoError(t, err)
	_, err = q.Push([]byte("survivor"))
	require.NoError(t, err)
	_, err = q.Push([]byte("stale"))
	require.NoError(t, err)

	// Walk "stale" up to three retries under the generous budget.
	for i := 0; i < 3; i++ {
		head, found, err := q.Pop()
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "survivor", string(head.Bytes))
		_, err = q.Push(head.Bytes) // keep survivor at retries 0
		require.NoError(t, err)

		stale, found, err := q.Peek()
		require.NoError(t, err)
		require.True(t, found)
		_, err = q.Requeue(stale)
		require.NoError(t, err)
	}
	require.NoError(t, q.Close())

	q, err = Open(path, 1<<20, 2, nil)
	require.NoError(t, err)
	defer q.Close()

	removed, err := q.DropOverRetry()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e, found, err := q.Peek()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "survivor", string(e.Bytes))
}

// ============================================================================
// DURABILITY
// ============================================================================

func TestReopenKeepsEntriesAndByteCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := Open(path, 1<<20, 3, nil)
	require.NoError(t, err)
	_, err = q.Push([]byte("alpha"))
	require.NoError(t, err)
	_, err = q.Push([]byte("beta"))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = Open(path, 1<<20, 3, nil)
	require.NoError(t, err)
	defer q.Close()

	assert.Equal(t, int64(9), q.ByteSize(), "byte total recounted from committed state")

	e, found, err := q.Pop()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alpha", string(e.Bytes))
}

// Package queue implements the agent-side durable envelope queue. Envelopes
// land here when the bus is unreachable or answers RETRY, and drain in FIFO
// order once it recovers. Entries survive agent crashes: every mutation is a
// committed bbolt transaction, so readers only ever observe fsynced state.
package queue

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"
)

var bucketEntries = []byte("queue")

// Entry is one queued envelope. Seq is the bbolt sequence key and orders the
// queue; Retries counts delivery attempts that ended in RETRY.
type Entry struct {
	Seq     uint64
	Retries uint32
	Bytes   []byte
}

// Queue is a bounded durable FIFO. Over the byte cap the oldest entry is
// dropped; over the retry budget an entry is permanently discarded.
type Queue struct {
	db         *bolt.DB
	log        *zap.SugaredLogger
	maxBytes   int64
	maxRetries int

	mu         sync.Mutex
	totalBytes int64
	dropped    uint64
	discarded  uint64
}

// Open opens (or creates) the queue file and recounts its byte total from
// committed state. A nil logger disables logging.
func Open(path string, maxBytes int64, maxRetries int, log *zap.SugaredLogger) (*Queue, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", path, err)
	}
	q := &Queue{db: db, log: log, maxBytes: maxBytes, maxRetries: maxRetries}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, raw []byte) error {
			e, err := decodeEntry(0, raw)
			if err != nil {
				return err
			}
			q.totalBytes += int64(len(e.Bytes))
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init queue: %w", err)
	}
	return q, nil
}

// Push appends one envelope to the tail. When the byte cap is exceeded the
// oldest entries are dropped until the queue fits again; the newest entry is
// never the one sacrificed. Returns how many entries were dropped.
func (q *Queue) Push(payload []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	droppedNow := 0
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), encodeEntry(Entry{Retries: 0, Bytes: payload})); err != nil {
			return err
		}
		q.totalBytes += int64(len(payload))

		c := b.Cursor()
		for q.totalBytes > q.maxBytes {
			sk, raw := c.First()
			if sk == nil || binary.BigEndian.Uint64(sk) == seq {
				break
			}
			e, err := decodeEntry(binary.BigEndian.Uint64(sk), raw)
			if err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			q.totalBytes -= int64(len(e.Bytes))
			droppedNow++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("queue push: %w", err)
	}
	if droppedNow > 0 {
		q.dropped += uint64(droppedNow)
		q.log.Warnw("queue over byte cap, oldest entries dropped",
			"dropped", droppedNow, "max_bytes", q.maxBytes)
	}
	return droppedNow, nil
}

// Peek returns the head entry without removing it.
func (q *Queue) Peek() (Entry, bool, error) {
	var e Entry
	found := false
	err := q.db.View(func(tx *bolt.Tx) error {
		sk, raw := tx.Bucket(bucketEntries).Cursor().First()
		if sk == nil {
			return nil
		}
		dec, err := decodeEntry(binary.BigEndian.Uint64(sk), raw)
		if err != nil {
			return err
		}
		e, found = dec, true
		return nil
	})
	return e, found, err
}

// Pop removes and returns the head entry.
func (q *Queue) Pop() (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var e Entry
	found := false
	err := q.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		sk, raw := c.First()
		if sk == nil {
			return nil
		}
		dec, err := decodeEntry(binary.BigEndian.Uint64(sk), raw)
		if err != nil {
			return err
		}
		if err := c.Delete(); err != nil {
			return err
		}
		q.totalBytes -= int64(len(dec.Bytes))
		e, found = dec, true
		return nil
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("queue pop: %w", err)
	}
	return e, found, nil
}

// Commit removes a delivered entry by sequence. Used after an OK ack, and
// after INVALID where redelivery would never succeed.
func (q *Queue) Commit(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get(seqKey(e.Seq)) == nil {
			return nil
		}
		if err := b.Delete(seqKey(e.Seq)); err != nil {
			return err
		}
		q.totalBytes -= int64(len(e.Bytes))
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue commit: %w", err)
	}
	return nil
}

// Requeue moves an entry to the tail with its retry count incremented. An
// entry past the retry budget is permanently discarded instead; the return
// reports whether the entry is still queued.
func (q *Queue) Requeue(e Entry) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if int(e.Retries)+1 > q.maxRetries {
		err := q.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketEntries)
			if b.Get(seqKey(e.Seq)) == nil {
				return nil
			}
			if err := b.Delete(seqKey(e.Seq)); err != nil {
				return err
			}
			q.totalBytes -= int64(len(e.Bytes))
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("queue discard: %w", err)
		}
		q.discarded++
		q.log.Warnw("queue entry over retry budget, discarded",
			"seq", e.Seq, "retries", e.Retries, "max_retries", q.maxRetries)
		return false, nil
	}

	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get(seqKey(e.Seq)) != nil {
			if err := b.Delete(seqKey(e.Seq)); err != nil {
				return err
			}
			q.totalBytes -= int64(len(e.Bytes))
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), encodeEntry(Entry{Retries: e.Retries + 1, Bytes: e.Bytes})); err != nil {
			return err
		}
		q.totalBytes += int64(len(e.Bytes))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("queue requeue: %w", err)
	}
	return true, nil
}

// DropOverRetry sweeps out every entry whose retry count exceeds the budget.
// Useful when the budget is lowered between restarts.
func (q *Queue) DropOverRetry() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	err := q.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for sk, raw := c.First(); sk != nil; sk, raw = c.Next() {
			e, err := decodeEntry(binary.BigEndian.Uint64(sk), raw)
			if err != nil {
				return err
			}
			if int(e.Retries) <= q.maxRetries {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			q.totalBytes -= int64(len(e.Bytes))
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("queue drop over retry: %w", err)
	}
	if removed > 0 {
		q.discarded += uint64(removed)
		q.log.Warnw("queue entries over retry budget, discarded", "removed", removed)
	}
	return removed, nil
}

// Len reports how many entries are queued.
func (q *Queue) Len() (int, error) {
	n := 0
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n, err
}

// ByteSize reports the queued payload bytes.
func (q *Queue) ByteSize() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalBytes
}

// Dropped reports the lifetime count of entries dropped over the byte cap.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Discarded reports the lifetime count of entries discarded over the retry
// budget.
func (q *Queue) Discarded() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discarded
}

// Close closes the underlying file.
func (q *Queue) Close() error {
	return q.db.Close()
}

// ============================================================================
// ENTRY ENCODING
// ============================================================================

// Fields: 1 retries, 2 payload. The sequence lives in the bbolt key.

func encodeEntry(e Entry) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Retries))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Bytes)
	return b
}

func decodeEntry(seq uint64, data []byte) (Entry, error) {
	e := Entry{Seq: seq}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return e, fmt.Errorf("queue: bad entry tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Retries = uint32(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Bytes = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return e, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// Package wal implements the durable write-ahead log the event bus appends
// accepted envelopes to. Records are keyed by idempotency key; a second
// append under the same key is silently discarded. A sequence bucket
// preserves append order for readers, and successful appends fan out to
// in-process subscribers.
package wal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	bucketRecords = []byte("wal")
	bucketSeq     = []byte("wal_seq")

	// ErrCorruptRecord reports a checksum mismatch during Scan.
	ErrCorruptRecord = errors.New("wal: record checksum mismatch")
)

// Kind tags which wire message the stored envelope bytes decode as. The two
// envelope schemas share low tag numbers, so readers cannot reliably sniff
// the format from the bytes alone.
type Kind uint8

const (
	KindLegacy    Kind = 1 // pb.Envelope
	KindUniversal Kind = 2 // pb.UniversalEnvelope
)

// Record is one accepted envelope as stored in the log.
type Record struct {
	IdempotencyKey string
	TsNs           uint64
	Kind           Kind
	Envelope       []byte
	Checksum       [32]byte
}

// WAL is a single-file bbolt log. Writes are serialized by bbolt's
// writer-exclusive transaction lock; readers never block writers.
type WAL struct {
	db  *bolt.DB
	log *zap.SugaredLogger

	mu     sync.Mutex
	subs   map[int]chan Record
	nextID int
	closed bool
}

// Open opens (or creates) the log file and its buckets. A nil logger
// disables logging.
func Open(path string, log *zap.SugaredLogger) (*WAL, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketSeq)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init wal buckets: %w", err)
	}
	return &WAL{db: db, log: log, subs: make(map[int]chan Record)}, nil
}

// Append stores one envelope under its idempotency key. It returns false
// when the key is already present; the existing record is left untouched.
// The bbolt transaction is fsynced on commit, so a true return means the
// record is durable. Subscribers are notified after commit.
func (w *WAL) Append(key string, tsNs uint64, kind Kind, envelope []byte) (bool, error) {
	if key == "" {
		return false, errors.New("wal: empty idempotency key")
	}
	rec := Record{
		IdempotencyKey: key,
		TsNs:           tsNs,
		Kind:           kind,
		Envelope:       envelope,
		Checksum:       blake2b.Sum256(envelope),
	}
	appended := false
	err := w.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		if records.Get([]byte(key)) != nil {
			return nil // duplicate, discard silently
		}
		if err := records.Put([]byte(key), encodeRecord(rec)); err != nil {
			return err
		}
		seqs := tx.Bucket(bucketSeq)
		seq, err := seqs.NextSequence()
		if err != nil {
			return err
		}
		var sk [8]byte
		binary.BigEndian.PutUint64(sk[:], seq)
		if err := seqs.Put(sk[:], []byte(key)); err != nil {
			return err
		}
		appended = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("wal append %s: %w", key, err)
	}
	if appended {
		w.notify(rec)
	}
	return appended, nil
}

// Get loads one record by idempotency key.
func (w *WAL) Get(key string) (Record, bool, error) {
	var rec Record
	found := false
	err := w.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRecords).Get([]byte(key))
		if raw == nil {
			return nil
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		rec, found = r, true
		return nil
	})
	return rec, found, err
}

// Scan walks records in append order, verifying each checksum, and hands
// them to fn. fn returning an error stops the scan.
func (w *WAL) Scan(fn func(Record) error) error {
	return w.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		c := tx.Bucket(bucketSeq).Cursor()
		for sk, key := c.First(); sk != nil; sk, key = c.Next() {
			raw := records.Get(key)
			if raw == nil {
				continue // pruned out from under the seq entry
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if blake2b.Sum256(rec.Envelope) != rec.Checksum {
				return fmt.Errorf("%w: key %s", ErrCorruptRecord, rec.IdempotencyKey)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count reports how many records the log holds.
func (w *WAL) Count() (int, error) {
	n := 0
	err := w.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

// Subscribe registers a fan-out channel fed by every successful append.
// A lagging subscriber drops records rather than stalling the writer.
// The returned cancel func unregisters and closes the channel.
func (w *WAL) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Record, buffer)

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	if w.closed {
		close(ch)
	} else {
		w.subs[id] = ch
	}
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
		w.mu.Unlock()
	}
	return ch, cancel
}

func (w *WAL) notify(rec Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		select {
		case ch <- rec:
		default:
			w.log.Warnw("wal subscriber lagging, record dropped",
				"subscriber", id, "idempotency_key", rec.IdempotencyKey)
		}
	}
}

// Prune deletes every record with TsNs older than cutoffNs and returns how
// many were removed.
func (w *WAL) Prune(cutoffNs uint64) (int, error) {
	removed := 0
	err := w.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		c := tx.Bucket(bucketSeq).Cursor()
		for sk, key := c.First(); sk != nil; sk, key = c.Next() {
			raw := records.Get(key)
			if raw == nil {
				if err := c.Delete(); err != nil {
					return err
				}
				continue
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if rec.TsNs >= cutoffNs {
				continue
			}
			if err := records.Delete(key); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("wal prune: %w", err)
	}
	return removed, nil
}

// RunPruner sweeps the log on interval, deleting records older than
// retention. It blocks until ctx is cancelled.
func (w *WAL) RunPruner(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		cutoff := uint64(time.Now().Add(-retention).UnixNano())
		n, err := w.Prune(cutoff)
		if err != nil {
			w.log.Errorw("wal prune failed", "err", err)
		} else if n > 0 {
			w.log.Infow("wal pruned", "removed", n, "retention", retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close unregisters all subscribers and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	w.closed = true
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
	w.mu.Unlock()
	return w.db.Close()
}

// ============================================================================
// RECORD ENCODING
// ============================================================================

// Records use the same varint wire format as the envelopes they carry.
// Fields: 1 idempotency_key, 2 ts_ns, 3 envelope bytes, 4 checksum, 5 kind.

func encodeRecord(r Record) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.IdempotencyKey)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, r.TsNs)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Envelope)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Checksum[:])
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Kind))
	return b
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, fmt.Errorf("wal: bad record tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.IdempotencyKey = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.TsNs = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Envelope = append([]byte(nil), v...)
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			if len(v) != len(r.Checksum) {
				return r, fmt.Errorf("wal: checksum length %d", len(v))
			}
			copy(r.Checksum[:], v)
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Kind = Kind(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return r, nil
}

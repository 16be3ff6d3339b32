package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the embedded backend.
type BadgerConfig struct {
	Dir      string
	InMemory bool
}

// Key layout:
//
//	r:<coll>:<id>                          -> envelope JSON
//	t:<coll>:<ts ms, 8 bytes BE><id>       -> empty
//	x:<coll>:<field>=<value>\x00<ts><id>   -> empty
const (
	prefixRecord = "r:"
	prefixTime   = "t:"
	prefixIndex  = "x:"
)

type envelope struct {
	TS    int64             `json:"ts"`
	Index map[string]string `json:"idx,omitempty"`
	Data  []byte            `json:"data"`
}

// BadgerBackend stores records in an embedded badger database.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens a badger database on disk or in memory.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" && !cfg.InMemory {
		dir = "data/opsmemory"
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	opts = opts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Put upserts a record, replacing stale index keys.
func (b *BadgerBackend) Put(_ context.Context, coll Collection, rec Record) error {
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	env := envelope{TS: toMillis(rec.Timestamp), Index: rec.Index, Data: rec.Data}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s record %s: %w", coll, rec.ID, err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		old, err := readEnvelope(txn, coll, rec.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err == nil {
			if err := deleteIndexKeys(txn, coll, rec.ID, old); err != nil {
				return err
			}
		}
		if err := txn.Set(recordKey(coll, rec.ID), raw); err != nil {
			return err
		}
		if err := txn.Set(timeKey(coll, env.TS, rec.ID), nil); err != nil {
			return err
		}
		for field, value := range env.Index {
			if err := txn.Set(indexKey(coll, field, value, env.TS, rec.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get loads one record.
func (b *BadgerBackend) Get(_ context.Context, coll Collection, id string) (Record, error) {
	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		env, err := readEnvelope(txn, coll, id)
		if err != nil {
			return err
		}
		rec = env.record(id)
		return nil
	})
	return rec, err
}

// Range scans the timestamp or secondary index prefix from Since.
func (b *BadgerBackend) Range(_ context.Context, coll Collection, q RangeQuery) ([]Record, error) {
	prefix := timePrefix(coll)
	if q.Field != "" {
		prefix = indexPrefix(coll, q.Field, q.Value)
	}
	since := toMillis(q.Since)
	until := int64(-1)
	if !q.Until.IsZero() {
		until = toMillis(q.Until)
	}

	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		for it.Seek(append(append([]byte{}, prefix...), encodeTS(since)...)); it.ValidForPrefix(prefix); it.Next() {
			ts, id, ok := splitTimeSuffix(it.Item().Key()[len(prefix):])
			if !ok {
				continue
			}
			if until >= 0 && ts > until {
				break
			}
			ids = append(ids, id)
		}

		out = make([]Record, 0, len(ids))
		for _, id := range ids {
			env, err := readEnvelope(txn, coll, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, env.record(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", coll, err)
	}
	return out, nil
}

// Delete removes records and their index keys.
func (b *BadgerBackend) Delete(_ context.Context, coll Collection, ids []string) (int, error) {
	removed := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			env, err := readEnvelope(txn, coll, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := deleteIndexKeys(txn, coll, id, env); err != nil {
				return err
			}
			if err := txn.Delete(recordKey(coll, id)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", coll, err)
	}
	return removed, nil
}

// Count walks the timestamp index keys of a collection.
func (b *BadgerBackend) Count(_ context.Context, coll Collection) (int, error) {
	n := 0
	prefix := timePrefix(coll)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", coll, err)
	}
	return n, nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (e envelope) record(id string) Record {
	return Record{ID: id, Timestamp: fromMillis(e.TS), Index: e.Index, Data: e.Data}
}

func readEnvelope(txn *badger.Txn, coll Collection, id string) (envelope, error) {
	var env envelope
	item, err := txn.Get(recordKey(coll, id))
	if err == badger.ErrKeyNotFound {
		return env, ErrNotFound
	}
	if err != nil {
		return env, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	})
	return env, err
}

func deleteIndexKeys(txn *badger.Txn, coll Collection, id string, env envelope) error {
	if err := txn.Delete(timeKey(coll, env.TS, id)); err != nil {
		return err
	}
	for field, value := range env.Index {
		if err := txn.Delete(indexKey(coll, field, value, env.TS, id)); err != nil {
			return err
		}
	}
	return nil
}

func recordKey(coll Collection, id string) []byte {
	return []byte(prefixRecord + string(coll) + ":" + id)
}

func timePrefix(coll Collection) []byte {
	return []byte(prefixTime + string(coll) + ":")
}

func indexPrefix(coll Collection, field, value string) []byte {
	return []byte(prefixIndex + string(coll) + ":" + field + "=" + value + "\x00")
}

func timeKey(coll Collection, ts int64, id string) []byte {
	return withTimeSuffix(timePrefix(coll), ts, id)
}

func indexKey(coll Collection, field, value string, ts int64, id string) []byte {
	return withTimeSuffix(indexPrefix(coll, field, value), ts, id)
}

func withTimeSuffix(prefix []byte, ts int64, id string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(prefix) + 8 + len(id))
	buf.Write(prefix)
	buf.Write(encodeTS(ts))
	buf.WriteString(id)
	return buf.Bytes()
}

func encodeTS(ts int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(ts))
	return out
}

func splitTimeSuffix(suffix []byte) (int64, string, bool) {
	if len(suffix) <= 8 {
		return 0, "", false
	}
	return int64(binary.BigEndian.Uint64(suffix[:8])), string(suffix[8:]), true
}

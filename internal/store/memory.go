package store

import (
	"context"
	"sync"

	"github.com/dchest/siphash"

	"github.com/kvservice/kv/internal/wire"
)

// Sharding a single table-name hash across a small power-of-two bucket
// count, the same way SnellerInc's zion symbol tables bucket ion
// symbols: per-shard locks so readers of unrelated tables never
// contend, without the bookkeeping of a lock per table name.
const (
	shardBits = 4
	numShards = 1 << shardBits
	shardMask = numShards - 1
)

// siphash key material. Fixed per process: this hash only needs to
// distribute table names across shards evenly, not resist an
// adversarial client choosing table names (tables aren't presented to
// untrusted input in a way that makes bucket skew a real concern here).
const siphashK0, siphashK1 = 0x6b765f7368617264, 0x6d656d6f72797461

func shardIndex(name string) int {
	h := siphash.Hash(siphashK0, siphashK1, []byte(name))
	return int(h & shardMask)
}

// table is a concurrent key/value map, generalizing the teacher's Hash
// type from a per-key hash field store into a whole namespace.
type table struct {
	mu   sync.RWMutex
	data map[string]wire.Value
}

func newTable() *table {
	return &table{data: make(map[string]wire.Value)}
}

func (t *table) get(key string) (wire.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok
}

func (t *table) set(key string, value wire.Value) (wire.Value, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prior, existed := t.data[key]
	t.data[key] = value
	return prior, existed
}

func (t *table) del(key string) (wire.Value, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.data[key]
	if ok {
		delete(t.data, key)
	}
	return v, ok
}

func (t *table) contains(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.data[key]
	return ok
}

// snapshot clones every entry under a single read lock so the caller
// never aliases table's internal map.
func (t *table) snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]Entry, 0, len(t.data))
	for k, v := range t.data {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return entries
}

type shard struct {
	mu     sync.RWMutex
	tables map[string]*table
}

func newShard() *shard {
	return &shard{tables: make(map[string]*table)}
}

// lookup returns the named table, creating it under the shard's write
// lock if this is the first touch. Every storage operation — including
// reads — goes through this, which is what gives tables lazy creation.
func (s *shard) lookup(name string) *table {
	s.mu.RLock()
	t, ok := s.tables[name]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t
	}
	t = newTable()
	s.tables[name] = t
	return t
}

// MemoryStore is the reference Storage implementation: a sharded
// concurrent map of tables, each a concurrent map of keys to values.
// Every operation is infallible in practice; the Storage interface
// stays fallible for backends that aren't.
type MemoryStore struct {
	shards [numShards]*shard
}

// NewMemoryStore returns an empty store ready to serve requests.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	for i := range m.shards {
		m.shards[i] = newShard()
	}
	return m
}

func (m *MemoryStore) table(name string) *table {
	return m.shards[shardIndex(name)].lookup(name)
}

func (m *MemoryStore) Get(_ context.Context, tbl, key string) (wire.Value, bool, error) {
	v, ok := m.table(tbl).get(key)
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, tbl, key string, value wire.Value) (wire.Value, bool, error) {
	prior, existed := m.table(tbl).set(key, value)
	return prior, existed, nil
}

func (m *MemoryStore) Contains(_ context.Context, tbl, key string) (bool, error) {
	return m.table(tbl).contains(key), nil
}

func (m *MemoryStore) Del(_ context.Context, tbl, key string) (wire.Value, bool, error) {
	v, ok := m.table(tbl).del(key)
	return v, ok, nil
}

func (m *MemoryStore) GetAll(_ context.Context, tbl string) ([]Entry, error) {
	return m.table(tbl).snapshot(), nil
}

func (m *MemoryStore) GetIter(_ context.Context, tbl string) (Iterator, error) {
	return &sliceIterator{entries: m.table(tbl).snapshot(), pos: -1}, nil
}

// sliceIterator owns a fully-materialized snapshot, resolving the
// open question around get_iter's lifetime in favor of a clean
// snapshot rather than a weakly-consistent live borrow.
type sliceIterator struct {
	entries []Entry
	pos     int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Entry() Entry {
	return it.entries[it.pos]
}

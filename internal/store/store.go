// Package store defines the keyed-store contract shared by every table
// in the service and a concurrent in-memory implementation of it.
package store

import (
	"context"
	"fmt"

	"github.com/kvservice/kv/internal/wire"
)

// ConvertError reports a value type-coercion failure on read.
type ConvertError struct {
	From, To string
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("store: cannot convert value from %s to %s", e.From, e.To)
}

// Op names a storage operation, used only to annotate StorageError.
type Op string

const (
	OpGet      Op = "get"
	OpSet      Op = "set"
	OpContains Op = "contains"
	OpDel      Op = "del"
	OpGetAll   Op = "get_all"
	OpGetIter  Op = "get_iter"
)

// StorageError reports a backend failure. The in-memory engine never
// produces one; the signature stays fallible so alternative backends
// (e.g. on-disk) can report real failures without changing the
// interface.
type StorageError struct {
	Op    Op
	Table string
	Key   string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s failed for table=%q key=%q: %v", e.Op, e.Table, e.Key, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// Entry is one (key, value) snapshot row, as returned by GetAll/GetIter.
type Entry struct {
	Key   string
	Value wire.Value
}

// Iterator yields a consistent, owned snapshot of a table's entries
// taken at the moment GetIter was called. Concurrent mutation of the
// table afterward never affects an iterator already in flight.
type Iterator interface {
	// Next advances the iterator and reports whether an entry is
	// available. Once it returns false the iterator is exhausted.
	Next() bool
	// Entry returns the entry most recently yielded by Next.
	Entry() Entry
}

// Storage is the keyed-store contract. Every table named by Table is
// created lazily on first touch by any operation, including reads: a
// read on a table that doesn't exist yet behaves like a read on an
// empty table, never an error.
type Storage interface {
	// Get returns the stored value for (table, key), or ok=false if
	// absent.
	Get(ctx context.Context, table, key string) (value wire.Value, ok bool, err error)
	// Set stores value for (table, key) and returns the value that was
	// there before, or ok=false if the key was new.
	Set(ctx context.Context, table, key string, value wire.Value) (prior wire.Value, ok bool, err error)
	// Contains reports whether (table, key) currently has a value.
	Contains(ctx context.Context, table, key string) (bool, error)
	// Del removes (table, key) and returns the value that was removed,
	// or ok=false if it was already absent.
	Del(ctx context.Context, table, key string) (removed wire.Value, ok bool, err error)
	// GetAll returns a snapshot of every entry in table, unordered.
	GetAll(ctx context.Context, table string) ([]Entry, error)
	// GetIter returns a snapshot iterator over table, taken at call
	// time; it owns its state independent of later mutation.
	GetIter(ctx context.Context, table string) (Iterator, error)
}

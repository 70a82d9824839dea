// Package index implements the secondary-index layer: the engine deals
// only in opaque RecordIDs, and anything that maps application keys to
// RecordIDs lives here, talking to the engine only through the shared
// ids.RecordID and clock.Timestamp types, never by importing
// internal/engine's record-store internals (engine imports index, not
// the other way around, to wire Engine.CreateIndex/Index).
package index

import (
	"errors"
	"fmt"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/ids"
)

// Key is an index key. Both implementations compare keys as raw bytes;
// callers encode multi-field or typed keys into this form themselves.
type Key []byte

// ErrKeyNotFound is returned by Remove against a key that has never been
// inserted. Get reports a missing or removed key through its bool result,
// not through this error.
var ErrKeyNotFound = errors.New("index: key not found")

// Index is the capability set engine.Engine.CreateIndex wires into the
// transaction path. Insert/Remove are called by caller code after its
// transaction commits, not automatically; Get/RangeScan are snapshot
// reads against a timestamp, the same MVCC discipline the record store
// itself uses.
type Index interface {
	Insert(key Key, id ids.RecordID, commitTS clock.Timestamp) error
	Remove(key Key, commitTS clock.Timestamp) error
	Get(key Key, asOf clock.Timestamp) (ids.RecordID, bool, error)
	RangeScan(start, end Key, asOf clock.Timestamp) ([]ids.RecordID, error)
}

// Kind selects an Index implementation for Engine.CreateIndex.
type Kind int

const (
	KindHash Kind = iota
	KindBTree
)

func (k Kind) String() string {
	switch k {
	case KindHash:
		return "hash"
	case KindBTree:
		return "btree"
	default:
		return fmt.Sprintf("index.Kind(%d)", int(k))
	}
}

// entryVersion is one (commitTS, RecordID) pair in a key's version list:
// an index entry is itself a small MVCC chain so RangeScan and Get can
// answer as of a caller-chosen timestamp rather than only "now".
type entryVersion struct {
	commitTS clock.Timestamp
	id       ids.RecordID
	deleted  bool
}

// visibleAt returns the version visible as of asOf from a newest-first
// version slice, or ok=false if none is visible (the key did not exist
// yet, or its most recent entry as of asOf was a removal).
func visibleAt(versions []entryVersion, asOf clock.Timestamp) (entryVersion, bool) {
	for _, v := range versions {
		if v.commitTS <= asOf {
			if v.deleted {
				return entryVersion{}, false
			}
			return v, true
		}
	}
	return entryVersion{}, false
}

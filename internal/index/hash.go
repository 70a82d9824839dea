package index

import (
	"sync"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/ids"
)

// HashIndex is a point-lookup-only index over Key: a plain map plus the
// same entryVersion MVCC chain BTreeIndex uses, without the ordering
// BTreeIndex pays for. RangeScan is unsupported; there is no ordering to
// exploit.
type HashIndex struct {
	mu      sync.RWMutex
	entries map[string][]entryVersion // newest-first
}

// NewHashIndex creates an empty HashIndex.
func NewHashIndex() *HashIndex {
	return &HashIndex{entries: make(map[string][]entryVersion)}
}

func (h *HashIndex) Insert(key Key, id ids.RecordID, commitTS clock.Timestamp) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := string(key)
	h.entries[k] = append([]entryVersion{{commitTS: commitTS, id: id}}, h.entries[k]...)
	return nil
}

func (h *HashIndex) Remove(key Key, commitTS clock.Timestamp) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := string(key)
	if _, ok := h.entries[k]; !ok {
		return ErrKeyNotFound
	}
	h.entries[k] = append([]entryVersion{{commitTS: commitTS, deleted: true}}, h.entries[k]...)
	return nil
}

func (h *HashIndex) Get(key Key, asOf clock.Timestamp) (ids.RecordID, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	versions, ok := h.entries[string(key)]
	if !ok {
		return 0, false, nil
	}
	v, ok := visibleAt(versions, asOf)
	if !ok {
		return 0, false, nil
	}
	return v.id, true, nil
}

// RangeScan always returns an error: HashIndex has no key ordering to
// scan over. Callers that need ordered range scans should create a
// KindBTree index instead.
func (h *HashIndex) RangeScan(start, end Key, asOf clock.Timestamp) ([]ids.RecordID, error) {
	return nil, errUnsupportedRangeScan
}

var errUnsupportedRangeScan = rangeScanUnsupportedError{}

type rangeScanUnsupportedError struct{}

func (rangeScanUnsupportedError) Error() string {
	return "index: RangeScan is not supported by HashIndex"
}

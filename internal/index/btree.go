package index

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/ids"
)

const btreeDegree = 32

// btreeItem is the google/btree.Item this index stores: a thin wrapper
// carrying the sort key plus the key's version list.
type btreeItem struct {
	key      Key
	versions []entryVersion // newest-first
}

func (it *btreeItem) Less(other btree.Item) bool {
	return bytes.Compare(it.key, other.(*btreeItem).key) < 0
}

// BTreeIndex is an ordered index over Key, backed by github.com/google/btree,
// supporting RangeScan in addition to point lookups.
type BTreeIndex struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewBTreeIndex creates an empty BTreeIndex.
func NewBTreeIndex() *BTreeIndex {
	return &BTreeIndex{tree: btree.New(btreeDegree)}
}

func (b *BTreeIndex) Insert(key Key, id ids.RecordID, commitTS clock.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	probe := &btreeItem{key: key}
	existing := b.tree.Get(probe)
	item, _ := existing.(*btreeItem)
	if item == nil {
		item = &btreeItem{key: append(Key(nil), key...)}
	}
	item.versions = append([]entryVersion{{commitTS: commitTS, id: id}}, item.versions...)
	b.tree.ReplaceOrInsert(item)
	return nil
}

func (b *BTreeIndex) Remove(key Key, commitTS clock.Timestamp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	probe := &btreeItem{key: key}
	existing := b.tree.Get(probe)
	item, _ := existing.(*btreeItem)
	if item == nil {
		return ErrKeyNotFound
	}
	item.versions = append([]entryVersion{{commitTS: commitTS, deleted: true}}, item.versions...)
	b.tree.ReplaceOrInsert(item)
	return nil
}

func (b *BTreeIndex) Get(key Key, asOf clock.Timestamp) (ids.RecordID, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	probe := &btreeItem{key: key}
	existing := b.tree.Get(probe)
	item, _ := existing.(*btreeItem)
	if item == nil {
		return 0, false, nil
	}
	v, ok := visibleAt(item.versions, asOf)
	if !ok {
		return 0, false, nil
	}
	return v.id, true, nil
}

func (b *BTreeIndex) RangeScan(start, end Key, asOf clock.Timestamp) ([]ids.RecordID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []ids.RecordID
	b.tree.AscendRange(&btreeItem{key: start}, &btreeItem{key: end}, func(i btree.Item) bool {
		item := i.(*btreeItem)
		if v, ok := visibleAt(item.versions, asOf); ok {
			out = append(out, v.id)
		}
		return true
	})
	return out, nil
}

package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maemio/maemio/internal/ids"
)

func TestBTreeIndexInsertAndGet(t *testing.T) {
	idx := NewBTreeIndex()
	require.NoError(t, idx.Insert(Key("a"), 1, 10))

	id, ok, err := idx.Get(Key("a"), 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids.RecordID(1), id)
}

func TestBTreeIndexGetAsOfIsMVCCAware(t *testing.T) {
	idx := NewBTreeIndex()
	require.NoError(t, idx.Insert(Key("a"), 1, 10))
	require.NoError(t, idx.Insert(Key("a"), 2, 20))

	id, ok, err := idx.Get(Key("a"), 15)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids.RecordID(1), id)

	id, ok, err = idx.Get(Key("a"), 25)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids.RecordID(2), id)
}

func TestBTreeIndexRemoveHidesFromLaterReads(t *testing.T) {
	idx := NewBTreeIndex()
	require.NoError(t, idx.Insert(Key("a"), 1, 10))
	require.NoError(t, idx.Remove(Key("a"), 20))

	_, ok, err := idx.Get(Key("a"), 15)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = idx.Get(Key("a"), 25)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBTreeIndexRangeScan(t *testing.T) {
	idx := NewBTreeIndex()
	require.NoError(t, idx.Insert(Key("a"), 1, 10))
	require.NoError(t, idx.Insert(Key("b"), 2, 10))
	require.NoError(t, idx.Insert(Key("c"), 3, 10))

	recordIDs, err := idx.RangeScan(Key("a"), Key("c"), 100)
	require.NoError(t, err)
	require.Equal(t, []ids.RecordID{1, 2}, recordIDs)
}

func TestHashIndexInsertAndGet(t *testing.T) {
	idx := NewHashIndex()
	require.NoError(t, idx.Insert(Key("x"), 9, 5))

	id, ok, err := idx.Get(Key("x"), 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids.RecordID(9), id)
}

func TestHashIndexRangeScanUnsupported(t *testing.T) {
	idx := NewHashIndex()
	_, err := idx.RangeScan(Key("a"), Key("z"), 0)
	require.Error(t, err)
}

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create(1, "by_email", KindBTree))

	idx, ok := m.Get(1)
	require.True(t, ok)
	require.NotNil(t, idx)

	name, ok := m.Name(1)
	require.True(t, ok)
	require.Equal(t, "by_email", name)
}

func TestManagerRejectsDuplicateID(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create(1, "a", KindHash))
	require.Error(t, m.Create(1, "b", KindHash))
}

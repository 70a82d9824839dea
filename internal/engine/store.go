package engine

import (
	"hash/maphash"
	"sync"
	"sync/atomic"
)

// shardDegree is sized so lock contention on the map itself (as opposed
// to a record's own head lock) is negligible at realistic core counts.
const shardDegree = 512

type shard struct {
	mu      sync.RWMutex
	records map[RecordID]*record
}

// Store is the record store: sharded allocation, lookup, and the
// visibility-scanning reads and chain-mutating writes that the executor's
// four phases drive. It never interprets RecordID beyond using it to pick a
// shard; the index layer (package index) owns the mapping from
// application keys to RecordIDs.
type Store struct {
	shards  [shardDegree]shard
	nextID  atomic.Uint64
	seed    maphash.Seed
	pool    sync.Pool // recycled *Version nodes, refilled by GC pruning
}

// NewStore creates an empty Store, sized for initialCapacityHint records
// per shard.
func NewStore(initialCapacityHint int) *Store {
	if initialCapacityHint < 1 {
		initialCapacityHint = 1
	}
	s := &Store{seed: maphash.MakeSeed()}
	s.pool.New = func() any { return &Version{} }
	for i := range s.shards {
		s.shards[i].records = make(map[RecordID]*record, initialCapacityHint)
	}
	return s
}

func (s *Store) shardFor(id RecordID) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	h.Write(b[:])
	return &s.shards[h.Sum64()%shardDegree]
}

// allocateVersion draws a Version node from the recycle pool (refilled by
// GC as it prunes obsolete versions; sync.Pool's per-P caches keep the
// free list contention-free across workers without hand-rolled sharding)
// and resets it for reuse as a pending version.
func (s *Store) allocateVersion(writer TxID, payload []byte, tombstone bool) *Version {
	v := s.pool.Get().(*Version)
	v.beginTS.Store(uint64(Pending))
	v.endTS.Store(uint64(Infinity))
	v.writerID.Store(uint64(writer))
	v.payload = payload
	v.tombstone = tombstone
	v.next.Store(nil)
	return v
}

func (s *Store) release(v *Version) {
	v.payload = nil
	v.next.Store(nil)
	s.pool.Put(v)
}

// createRecord allocates a new record with a pending inline version
// written by tx. RecordIDs are drawn from a monotonic allocator and never
// reused, so read-set entries referencing a RecordID remain stable even
// across aborted creates.
func (s *Store) createRecord(tx TxID, payload []byte) (RecordID, *Version) {
	id := RecordID(s.nextID.Add(1))
	rec := newRecord(id)
	v := s.allocateVersion(tx, payload, false)
	rec.lock.Lock()
	rec.installLocked(v)
	rec.lock.Unlock()

	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.records[id] = rec
	sh.mu.Unlock()
	return id, v
}

func (s *Store) lookup(id RecordID) (*record, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	rec, ok := sh.records[id]
	sh.mu.RUnlock()
	return rec, ok
}

// readVisible scans a record's chain newest-first for the version visible
// to asOf. Encountering a pending version written by a different
// transaction than self returns ErrInvisible rather than blocking; self's
// own pending version is never reached here because Tx.Read answers
// self-reads from the write set before calling this.
func (s *Store) readVisible(asOf Timestamp, id RecordID) (*Version, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, recordNotFoundError(id)
	}
	var found *Version
	var invisible bool
	rec.walk(func(v *Version) bool {
		if v.isPending() {
			invisible = true
			return false
		}
		if v.visibleTo(asOf) {
			found = v
			return false
		}
		return true
	})
	switch {
	case invisible:
		return nil, ErrInvisible
	case found == nil:
		return nil, recordNotFoundError(id)
	default:
		return found, nil
	}
}

// stageWrite inserts a pending version at the record's chain head on
// behalf of tx. It fails with ErrWriteConflict if another transaction's
// pending write already occupies the head.
func (s *Store) stageWrite(tx TxID, id RecordID, payload []byte, tombstone bool) (*Version, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, recordNotFoundError(id)
	}
	rec.lock.Lock()
	defer rec.lock.Unlock()

	if head := rec.head(); head != nil && head.isPending() && head.WriterID() != tx {
		return nil, writeConflictError(id)
	}
	v := s.allocateVersion(tx, payload, tombstone)
	rec.installLocked(v)
	return v, nil
}

// finalize stamps v with commitTS and closes out the version it
// superseded. Must be called in commit-timestamp order across a
// transaction's write set; the record's head lock enforces that within a
// single record.
func (s *Store) finalize(id RecordID, v *Version, commitTS Timestamp) {
	rec, ok := s.lookup(id)
	if !ok {
		return
	}
	rec.lock.Lock()
	defer rec.lock.Unlock()
	// stageWrite left v at the head and no other writer can advance past
	// a pending version, so finding anything else here means the chain is
	// corrupt. Not a retryable condition.
	if rec.inline.Load() != v {
		panic(invariantViolationError("finalize: staged version is no longer the chain head"))
	}
	v.finalize(commitTS, rec.overflow.Load())
	rec.latestWriteTS.Store(uint64(commitTS))
}

// abort unlinks a still-pending version from its record's chain.
func (s *Store) abort(id RecordID, v *Version) {
	rec, ok := s.lookup(id)
	if !ok {
		return
	}
	rec.lock.Lock()
	rec.unlinkLocked(v)
	rec.lock.Unlock()
	s.release(v)
}

// validateRead reports whether id's version visible as of asOf still
// carries the begin_ts the transaction observed when it read (readAt).
// The record's latestWriteTS short-circuits the common case: if the
// newest committed version is still the one the transaction read, no
// walk is needed. Otherwise the chain is re-walked at asOf, so a
// concurrent commit only invalidates the read when it changed what is
// visible at the reader's own snapshot; a writer whose begin_ts lands
// above asOf leaves the read valid. Pending versions are skipped: an
// uncommitted write changes nothing about what is visible as of asOf,
// and write-write conflicts are already caught at stage time. Lock-free,
// atomic loads only.
func (s *Store) validateRead(asOf Timestamp, id RecordID, readAt Timestamp) bool {
	rec, found := s.lookup(id)
	if !found {
		return false
	}
	if ts := Timestamp(rec.latestWriteTS.Load()); ts == readAt {
		return true
	}
	var visible *Version
	rec.walk(func(v *Version) bool {
		if v.isPending() {
			return true
		}
		if v.visibleTo(asOf) {
			visible = v
			return false
		}
		return true
	})
	return visible != nil && visible.BeginTS() == readAt
}

// PruneStats summarizes one Store.Prune sweep.
type PruneStats struct {
	RecordsVisited int
	VersionsFreed  int
}

// ShardCount reports how many shards the record map is split across, so
// callers (the GC collector) can fan out one pruning task per shard
// without needing to know the sharding scheme itself.
func (s *Store) ShardCount() int { return shardDegree }

// PruneShard removes, from every record in shard i's overflow chain, any
// version whose end_ts is at or before safeTS. A record's current
// (Infinity-ended) version always survives. When the inline slot's
// occupant is pruned, the slot is re-emptied so a future write can reuse
// it; freed nodes return to the recycle pool for allocateVersion to
// reuse. Safe to call concurrently with PruneShard calls against other
// shard indices: each shard has its own lock, and a record's own spinlock
// serializes PruneShard against any concurrent stage/finalize/abort on
// that record.
func (s *Store) PruneShard(i int, safeTS Timestamp) PruneStats {
	var stats PruneStats
	sh := &s.shards[i]
	sh.mu.RLock()
	recs := make([]*record, 0, len(sh.records))
	for _, rec := range sh.records {
		recs = append(recs, rec)
	}
	sh.mu.RUnlock()

	for _, rec := range recs {
		stats.RecordsVisited++
		stats.VersionsFreed += s.pruneRecord(rec, safeTS)
	}
	return stats
}

// Prune runs PruneShard sequentially across every shard. It exists for
// callers (and tests) that want a one-shot synchronous sweep; the GC
// collector itself fans PruneShard calls out across a bounded worker
// pool instead to exploit the same cross-shard independence this method
// just walks serially.
func (s *Store) Prune(safeTS Timestamp) PruneStats {
	var stats PruneStats
	for i := 0; i < s.ShardCount(); i++ {
		shardStats := s.PruneShard(i, safeTS)
		stats.RecordsVisited += shardStats.RecordsVisited
		stats.VersionsFreed += shardStats.VersionsFreed
	}
	return stats
}

func (s *Store) pruneRecord(rec *record, safeTS Timestamp) int {
	rec.lock.Lock()
	defer rec.lock.Unlock()

	freed := 0
	// Prune the overflow chain from the tail inward: walk to collect,
	// then relink only the surviving prefix. Overflow is already
	// newest-first, so the first prunable node and everything behind it
	// (all strictly older) are safe to drop together per the chain's
	// monotonic non-increasing begin_ts invariant.
	var kept []*Version
	for v := rec.overflow.Load(); v != nil; v = v.next.Load() {
		if v.EndTS() <= safeTS {
			break
		}
		kept = append(kept, v)
	}
	for v := rec.overflow.Load(); v != nil; {
		next := v.next.Load()
		stillKept := false
		for _, k := range kept {
			if k == v {
				stillKept = true
				break
			}
		}
		if !stillKept {
			s.release(v)
			freed++
		}
		v = next
	}
	var newHead *Version
	for i := len(kept) - 1; i >= 0; i-- {
		kept[i].next.Store(newHead)
		newHead = kept[i]
	}
	rec.overflow.Store(newHead)

	if inline := rec.inline.Load(); inline != nil && !inline.isPending() && inline.EndTS() <= safeTS {
		rec.inline.Store(nil)
		s.release(inline)
		freed++
		if promoted := rec.overflow.Load(); promoted != nil {
			rec.overflow.Store(promoted.next.Load())
			rec.inline.Store(promoted)
			rec.latestWriteTS.Store(uint64(promoted.BeginTS()))
		} else {
			rec.latestWriteTS.Store(0)
		}
	}
	return freed
}

package engine

import (
	"runtime"
	"sync/atomic"
)

// spinlock protects a record's version-list mutations. Critical sections
// under it are always a handful of pointer writes (stage, finalize, abort,
// GC prune), so a bare compare-and-swap with a short spin-then-yield
// backoff beats sync.Mutex, which parks the goroutine on first contention.
type spinlock struct {
	state atomic.Bool
}

const spinAttempts = 64

func (s *spinlock) Lock() {
	for i := 0; ; i++ {
		if s.state.CompareAndSwap(false, true) {
			return
		}
		if i < spinAttempts {
			continue
		}
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	s.state.Store(false)
}

// record is a single record's identity plus its version chain. The inline
// pointer always holds the chain's newest version; overflow holds
// everything older, linked through each Version's next field. Keeping two
// pointers instead of embedding a Version value in record avoids copying a
// struct with atomic fields, which go vet forbids once the value has been
// observed concurrently.
type record struct {
	id       RecordID
	lock     spinlock
	inline   atomic.Pointer[Version]
	overflow atomic.Pointer[Version]
	// latestWriteTS is Pending while a write is in flight at the head, or
	// the head's committed begin_ts otherwise. Store.validateRead reads it
	// so VALIDATE usually never has to walk the chain.
	latestWriteTS atomic.Uint64
}

func newRecord(id RecordID) *record {
	return &record{id: id}
}

// head returns the chain's newest version, or nil if the record has no
// versions at all. Both inline and overflow are atomics, so this is safe to
// call without the record's lock; readers and validators never block on it.
func (r *record) head() *Version {
	if v := r.inline.Load(); v != nil {
		return v
	}
	return r.overflow.Load()
}

// installLocked makes v the new chain head, demoting whatever used to
// occupy the inline slot onto the overflow chain. Callers must hold the
// record's lock.
func (r *record) installLocked(v *Version) {
	if old := r.inline.Load(); old != nil {
		old.next.Store(r.overflow.Load())
		r.overflow.Store(old)
	}
	v.next.Store(nil)
	r.inline.Store(v)
	r.latestWriteTS.Store(uint64(v.BeginTS()))
}

// unlinkLocked removes v, which must currently be the inline occupant (the
// only version an abort or a defensive rollback ever needs to remove: at
// most one PENDING version exists on a record at a time, and stage_write
// always installs it as the new head). Callers must hold the record's lock.
func (r *record) unlinkLocked(v *Version) {
	if r.inline.Load() != v {
		return
	}
	promoted := r.overflow.Load()
	r.inline.Store(nil)
	if promoted != nil {
		r.overflow.Store(promoted.next.Load())
		r.inline.Store(promoted)
		r.latestWriteTS.Store(uint64(promoted.BeginTS()))
	} else {
		r.latestWriteTS.Store(0)
	}
}

// walk calls fn for each version in the chain, newest-first, stopping early
// if fn returns false. Lock-free: safe to call from readers and validators.
func (r *record) walk(fn func(*Version) bool) {
	if v := r.inline.Load(); v != nil {
		if !fn(v) {
			return
		}
	}
	for v := r.overflow.Load(); v != nil; v = v.next.Load() {
		if !fn(v) {
			return
		}
	}
}

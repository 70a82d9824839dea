package engine

import (
	"sync/atomic"

	"github.com/maemio/maemio/internal/clock"
	"github.com/maemio/maemio/internal/ids"
)

// Timestamp is the engine's notion of a point in the commit order. It is an
// alias for clock.Timestamp so callers never have to convert between the
// two packages.
type Timestamp = clock.Timestamp

// TxID identifies a transaction for the lifetime of a single worker-life. It
// is never reused, even across aborted transactions, so read-set pointers
// remain stable identifiers for debugging and for writer-ID comparisons.
type TxID uint64

// RecordID identifies a record. The engine treats it as an opaque handle;
// any structure in the key space is the secondary index layer's concern,
// never the engine's. Aliased from package ids so internal/index can name
// the same type without importing internal/engine.
type RecordID = ids.RecordID

const (
	// Pending marks a version whose begin_ts has not yet been assigned by
	// a commit: it is still being installed by the writer named in
	// WriterID. Visibility checks treat Pending specially (see
	// Version.visibleTo).
	Pending = Timestamp(clock.PendingTS)
	// Infinity marks a version with no successor: it is the current value.
	Infinity = Timestamp(clock.InfinityTS)
)

// Version is one entry in a record's version chain. next is an atomic
// pointer, not a plain one: writers only ever set it while holding the
// owning record's head lock, but readers and validators walk the chain
// lock-free, so the link itself needs the same memory-ordering guarantee
// as beginTS/endTS.
type Version struct {
	beginTS   atomic.Uint64
	endTS     atomic.Uint64
	writerID  atomic.Uint64
	payload   []byte
	tombstone bool
	next      atomic.Pointer[Version]
}

// newPendingVersion stages a not-yet-committed version written by tx,
// carrying either a payload or a tombstone mark.
func newPendingVersion(writer TxID, payload []byte, tombstone bool) *Version {
	v := &Version{payload: payload, tombstone: tombstone}
	v.beginTS.Store(uint64(Pending))
	v.endTS.Store(uint64(Infinity))
	v.writerID.Store(uint64(writer))
	return v
}

func (v *Version) BeginTS() Timestamp { return Timestamp(v.beginTS.Load()) }
func (v *Version) EndTS() Timestamp   { return Timestamp(v.endTS.Load()) }
func (v *Version) WriterID() TxID     { return TxID(v.writerID.Load()) }
func (v *Version) IsTombstone() bool  { return v.tombstone }
func (v *Version) Payload() []byte    { return v.payload }
func (v *Version) isPending() bool    { return v.BeginTS() == Pending }

// visibleTo reports whether v is visible to a transaction with the given
// begin timestamp: v.begin_ts <= asOf < v.end_ts, and v is not still
// pending installation.
func (v *Version) visibleTo(asOf Timestamp) bool {
	begin := v.BeginTS()
	if begin == Pending {
		return false
	}
	return begin <= asOf && asOf < v.EndTS()
}

// finalize stamps this pending version with its commit timestamp and closes
// out the predecessor it superseded. Callers must hold the owning record's
// head lock and must call this in commit-timestamp order across a single
// transaction's write set.
func (v *Version) finalize(commitTS Timestamp, predecessor *Version) {
	if predecessor != nil {
		predecessor.endTS.Store(uint64(commitTS))
	}
	v.beginTS.Store(uint64(commitTS))
}

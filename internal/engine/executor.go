package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// clockSource is the narrow slice of clock.Manager the executor needs,
// kept as an interface so engine tests can drive it with a fake without
// importing the clock package's goroutine machinery.
type clockSource interface {
	Now(workerID int) Timestamp
}

// backoffSource is the narrow slice of contention.Manager the executor
// needs. Kept as an interface for the same reason as clockSource, and to
// avoid engine importing contention for anything but this method set.
type backoffSource interface {
	RecordCommit(workerID int)
	Backoff(ctx context.Context, workerID int) error
}

type txIDAllocator struct{ counter atomic.Uint64 }

func (a *txIDAllocator) claimNext() TxID {
	return TxID(a.counter.Add(1))
}

// ActiveSet tracks the begin_ts of every currently-active transaction, so
// the garbage collector can compute its safe timestamp as their minimum.
// Sharding is unnecessary here: registration/unregistration is
// one map op per transaction lifetime, nowhere near hot enough to need
// the record store's 512-way split, so a single mutex-guarded map is the
// right-sized tool.
type ActiveSet struct {
	mu     sync.Mutex
	active map[TxID]Timestamp
}

func newActiveSet() *ActiveSet {
	return &ActiveSet{active: make(map[TxID]Timestamp)}
}

func (a *ActiveSet) register(id TxID, ts Timestamp) {
	a.mu.Lock()
	a.active[id] = ts
	a.mu.Unlock()
}

func (a *ActiveSet) unregister(id TxID) {
	a.mu.Lock()
	delete(a.active, id)
	a.mu.Unlock()
}

// Snapshot returns the begin_ts of every active transaction at the time
// of the call. The slice is owned by the caller.
func (a *ActiveSet) Snapshot() []Timestamp {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Timestamp, 0, len(a.active))
	for _, ts := range a.active {
		out = append(out, ts)
	}
	return out
}

// executor drives the BEGIN -> READ -> VALIDATE -> WRITE -> COMMIT state
// machine. It holds no per-transaction state of its own; everything
// transaction-scoped lives on the *Tx passed to body.
type executor struct {
	store      *Store
	clock      clockSource
	contention backoffSource
	active     *ActiveSet
	ids        txIDAllocator
	retryCap   int
}

// run executes body against a fresh transaction, retrying on internal
// conflict errors (ErrWriteConflict, ErrInvisible, ErrValidationFailed)
// up to retryCap times, backing off between attempts via the contention
// manager. body's own errors (anything else it returns) abort the
// transaction and propagate immediately without retry.
func (ex *executor) run(ctx context.Context, workerID int, body func(*Tx) error) error {
	attempts := 0
	for {
		committed, err := ex.attempt(workerID, body)
		if committed {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		attempts++
		if attempts > ex.retryCap {
			return ErrRetryExhausted
		}
		if backoffErr := ex.contention.Backoff(ctx, workerID); backoffErr != nil {
			return backoffErr
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict) ||
		errors.Is(err, ErrInvisible) ||
		errors.Is(err, ErrValidationFailed)
}

func (ex *executor) attempt(workerID int, body func(*Tx) error) (committed bool, err error) {
	id := ex.ids.claimNext()
	beginTS := ex.clock.Now(workerID)
	tx := newTx(id, beginTS, workerID, ex.store)
	ex.active.register(id, beginTS)
	defer ex.active.unregister(id)

	bodyErr := body(tx)
	if bodyErr != nil {
		ex.abort(tx)
		return false, bodyErr
	}

	if err := ex.validate(tx); err != nil {
		ex.abort(tx)
		return false, err
	}

	commitTS := ex.clock.Now(workerID)
	ex.apply(tx, commitTS)
	tx.mu.Lock()
	tx.status = txCommitted
	tx.mu.Unlock()
	ex.contention.RecordCommit(workerID)
	return true, nil
}

// validate re-examines every record in the read set by re-evaluating
// visibility at the transaction's own begin timestamp: a read is still
// valid only if the version visible as of beginTS is the one this
// transaction observed. A concurrent commit with a higher begin_ts does
// not disturb the snapshot and leaves a read-only transaction free to
// commit; only a commit that lands inside the snapshot window (begin_ts
// at or below beginTS) invalidates the read. The read set is sorted by
// RecordID first, matching the write-set ordering rule, so validation
// and a concurrent committer's apply phase can never deadlock waiting on
// each other's locks; validation itself never takes a lock at all, since
// Store.validateRead only performs atomic loads.
func (ex *executor) validate(tx *Tx) error {
	ids := make([]RecordID, 0, len(tx.readSet))
	for id := range tx.readSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if !ex.store.validateRead(tx.beginTS, id, tx.readSet[id]) {
			return ErrValidationFailed
		}
	}
	return nil
}

// apply finalizes every staged write, in RecordID order.
func (ex *executor) apply(tx *Tx, commitTS Timestamp) {
	ids := append([]RecordID(nil), tx.order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		entry := tx.writeSet[id]
		ex.store.finalize(id, entry.version, commitTS)
	}
}

func (ex *executor) abort(tx *Tx) {
	tx.mu.Lock()
	tx.status = txAborted
	tx.mu.Unlock()
	// Unlink in reverse of install order: the most recently staged write
	// is unlinked first.
	for i := len(tx.order) - 1; i >= 0; i-- {
		id := tx.order[i]
		entry := tx.writeSet[id]
		ex.store.abort(id, entry.version)
	}
}

// Read returns the payload visible to tx's snapshot. A record this
// transaction has already staged a write or delete for is answered from
// the write set: the staged payload comes back directly, and a staged
// tombstone reads as ErrNotFound.
func (tx *Tx) Read(id RecordID) ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActive(); err != nil {
		return nil, err
	}
	if entry, ok := tx.pendingWrite(id); ok {
		if entry.version.IsTombstone() {
			return nil, recordNotFoundError(id)
		}
		return entry.version.Payload(), nil
	}

	v, err := tx.store.readVisible(tx.beginTS, id)
	if err != nil {
		return nil, err
	}
	tx.recordRead(id, v.BeginTS())
	if v.IsTombstone() {
		return nil, recordNotFoundError(id)
	}
	return v.Payload(), nil
}

// Write stages payload as id's new value. A second Write against the same
// id within the same transaction replaces the first staged payload without
// re-contacting the store; only the first staged write for an id reaches
// the store, to claim the record's head and detect conflicts with other
// transactions.
func (tx *Tx) Write(id RecordID, payload []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActive(); err != nil {
		return err
	}
	if entry, ok := tx.pendingWrite(id); ok && entry.version != nil {
		entry.version.payload = payload
		entry.version.tombstone = false
		return nil
	}
	v, err := tx.store.stageWrite(tx.id, id, payload, false)
	if err != nil {
		return err
	}
	tx.recordWrite(id, v)
	return nil
}

// Delete stages id for deletion (a tombstoned version). A subsequent Read
// of id within the same transaction returns ErrNotFound.
func (tx *Tx) Delete(id RecordID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActive(); err != nil {
		return err
	}
	if entry, ok := tx.pendingWrite(id); ok && entry.version != nil {
		entry.version.payload = nil
		entry.version.tombstone = true
		return nil
	}
	v, err := tx.store.stageWrite(tx.id, id, nil, true)
	if err != nil {
		return err
	}
	tx.recordWrite(id, v)
	return nil
}

// Create allocates a brand-new record and stages its initial value,
// returning the RecordID for the caller (typically to insert into a
// secondary index once the transaction commits). A RecordID handed out
// by Create is never reused, even if the transaction later aborts.
func (tx *Tx) Create(payload []byte) (RecordID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.requireActive(); err != nil {
		return 0, err
	}
	id, v := tx.store.createRecord(tx.id, payload)
	tx.recordWrite(id, v)
	return id, nil
}

// Package ids holds identifier types shared by internal/engine and
// internal/index. It exists purely to break the import cycle those two
// packages would otherwise form: engine imports index (for the Index
// capability interface and Kind), and index needs to talk about
// RecordID values without importing engine's record-store internals.
package ids

// RecordID identifies a record in the engine's record store. The engine
// treats it as an opaque handle; index implementations store it as the
// payload of their key -> RecordID mapping.
type RecordID uint64

// Package maemio is an in-memory transactional key-value engine providing
// serializable isolation at high throughput on multi-core hardware. It is
// modeled on the Cicada design: optimistic multi-version concurrency control
// with loosely synchronized per-worker clocks, best-effort version inlining,
// and adaptive contention management.
//
// The engine itself lives under internal/engine; internal/clock,
// internal/contention, and internal/gc are its three collaborating
// subsystems. internal/index is a pass-through secondary-index layer the
// engine depends on only through a capability interface. cmd/maemiobench is
// a small CLI harness for driving and observing the engine under load.
package maemio

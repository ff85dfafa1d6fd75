// Package core provides the foundational domain types and contracts shared by
// the kernel, the event bus, the context store and the cognitive loop. It
// defines:
//
//   - Events (immutable, tagged-union records flowing through the bus)
//   - Engines (pluggable workers controlled through lifecycle transitions)
//   - AgentLifecycle / EngineState (per-engine control flags and state machine)
//   - Emotion, Intent, Understanding and Decision (the decision pipeline vocabulary)
//   - RAREContext (the bounded session / memory / ambient state tree)
//   - PersistenceStore (the external blob storage collaborator)
//
// The package intentionally keeps implementation concerns (dispatch, storage,
// scheduling, concrete engines) out of scope, exposing small interfaces so
// alternative backends and engines can be plugged in.
package core

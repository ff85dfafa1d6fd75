// Package memory contains the in-process implementation of the
// core.PersistenceStore contract used by the context store to persist
// long-lived memory. The contract itself lives in the core package; depend on
// core.PersistenceStore in your code and select an implementation (like the
// in-memory store below, or storage/sqlite) at wiring time.
package memory

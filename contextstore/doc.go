// Package contextstore holds the bounded, mergeable RAREContext shared by the
// cognitive loop and anything else that needs to know about the user's
// session, long-lived memory and ambient situation.
//
// The store enforces the bounds declared in core (MaxHistory, MaxPatterns,
// MaxRecentEmotions) and persists only the memory sub-tree through a
// core.PersistenceStore. Persistence is fire-and-forget; Flush waits for
// pending writes.
package contextstore

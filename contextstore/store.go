package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
)

// DefaultMemoryKey is the persistence key of the memory sub-tree.
const DefaultMemoryKey = "rare_memory"

// DefaultSessionInteractionLimit caps session.interactions.
const DefaultSessionInteractionLimit = 50

// DefaultPersistTimeout bounds a single background persistence write.
const DefaultPersistTimeout = 5 * time.Second

// Options configures a Store.
type Options struct {
	// Clock supplies wall-clock time. Defaults to time.Now.
	Clock func() time.Time

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// MemoryKey is the key used with the persistence store.
	MemoryKey string

	// SessionInteractionLimit caps session.interactions (FIFO).
	SessionInteractionLimit int

	// PersistTimeout bounds each background write.
	PersistTimeout time.Duration

	// SessionID overrides the generated session id.
	SessionID string
}

// Store is the context store. It is safe for concurrent use.
type Store struct {
	persist        core.PersistenceStore
	log            core.LoggerAdapter
	now            func() time.Time
	key            string
	sessionLimit   int
	persistTimeout time.Duration

	mu  sync.RWMutex
	ctx core.RAREContext

	pending   sync.WaitGroup
	persistMu sync.Mutex
	seq       uint64
	written   uint64
}

// New creates a Store. persist may be nil, in which case nothing is persisted.
func New(persist core.PersistenceStore, optFns ...func(o *Options)) *Store {
	opts := Options{
		Clock:                   time.Now,
		Logger:                  logging.NoOpLogger{},
		MemoryKey:               DefaultMemoryKey,
		SessionInteractionLimit: DefaultSessionInteractionLimit,
		PersistTimeout:          DefaultPersistTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionID == "" {
		opts.SessionID = core.NewID()
	}
	if opts.SessionInteractionLimit <= 0 {
		opts.SessionInteractionLimit = DefaultSessionInteractionLimit
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}

	s := &Store{
		persist:        persist,
		log:            core.NewLoggerAdapter(logging.ForSession(opts.Logger, opts.SessionID)),
		now:            opts.Clock,
		key:            opts.MemoryKey,
		sessionLimit:   opts.SessionInteractionLimit,
		persistTimeout: opts.PersistTimeout,
		ctx:            core.NewRAREContext(opts.SessionID, opts.Clock()),
	}
	s.UpdateAmbientAwareness()
	return s
}

// Init refreshes the ambient snapshot and loads persisted memory. A failed or
// corrupt load leaves memory empty and is returned; the store stays usable.
func (s *Store) Init(ctx context.Context) error {
	s.UpdateAmbientAwareness()
	if s.persist == nil {
		return nil
	}

	blob, err := s.persist.Load(ctx, s.key)
	if err != nil {
		s.log.LogWarn("memory load failed", "key", s.key, "error", err)
		return fmt.Errorf("load memory: %w", err)
	}
	if len(blob) == 0 {
		return nil
	}

	var mem core.MemoryContext
	if err := json.Unmarshal(blob, &mem); err != nil {
		s.log.LogWarn("memory blob corrupt", "key", s.key, "error", err)
		return fmt.Errorf("decode memory: %w", err)
	}
	mem = normalizeMemory(mem)

	s.mu.Lock()
	s.ctx.Memory = mem
	s.mu.Unlock()
	s.log.LogInfo("memory loaded", "history", len(mem.History), "patterns", len(mem.Patterns))
	return nil
}

// normalizeMemory re-establishes collection invariants on loaded data.
func normalizeMemory(m core.MemoryContext) core.MemoryContext {
	m = m.Clone()
	m.History = keepLast(m.History, core.MaxHistory)
	m.EmotionalState.Recent = keepLast(m.EmotionalState.Recent, core.MaxRecentEmotions)
	m.Patterns = rankPatterns(m.Patterns)
	if len(m.EmotionalState.Recent) > 0 {
		avg := averageEmotion(m.EmotionalState.Recent)
		m.EmotionalState.Average = &avg
	}
	return m
}

// GetContext returns a deep copy of the current context.
func (s *Store) GetContext() core.RAREContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.Clone()
}

// UpdateContext shallow-merges each top-level key of patch independently,
// re-applies the memory bounds and schedules a background persistence write.
func (s *Store) UpdateContext(patch core.ContextPatch) {
	s.mu.Lock()
	patch.Apply(&s.ctx)
	if patch.Memory != nil {
		s.ctx.Memory.History = keepLast(s.ctx.Memory.History, core.MaxHistory)
		s.ctx.Memory.EmotionalState.Recent = keepLast(s.ctx.Memory.EmotionalState.Recent, core.MaxRecentEmotions)
		if len(s.ctx.Memory.Patterns) > core.MaxPatterns {
			s.ctx.Memory.Patterns = rankPatterns(s.ctx.Memory.Patterns)
		}
	}
	if patch.Session != nil {
		s.ctx.Session.Interactions = keepLast(s.ctx.Session.Interactions, s.sessionLimit)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.schedulePersist(snapshot)
}

// AddInteraction records i in the session and in memory, updates the
// emotional state and the interaction pattern counts, then persists memory.
func (s *Store) AddInteraction(i core.Interaction) {
	now := s.now()
	if i.ID == "" {
		i.ID = core.NewID()
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = now
	}

	s.mu.Lock()
	c := &s.ctx
	c.Session.Interactions = keepLast(append(c.Session.Interactions, i), s.sessionLimit)
	c.Memory.History = keepLast(append(c.Memory.History, i), core.MaxHistory)

	if i.Emotion != nil {
		emo := *i.Emotion
		c.Session.CurrentEmotion = &emo
		c.Memory.EmotionalState.Recent = keepLast(append(c.Memory.EmotionalState.Recent, emo), core.MaxRecentEmotions)
		avg := averageEmotion(c.Memory.EmotionalState.Recent)
		c.Memory.EmotionalState.Average = &avg
	}
	if i.Intent != nil {
		intent := *i.Intent
		c.Session.CurrentIntent = &intent
	}
	if i.Intent != nil && i.Emotion != nil {
		c.Memory.Patterns = trackPattern(c.Memory.Patterns, PatternKey(i.Intent.Type, i.Emotion.Type), now)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.schedulePersist(snapshot)
}

// Patterns returns the tracked patterns, most frequent first.
func (s *Store) Patterns() []core.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ctx.Memory.Patterns)
}

// UpdateAmbientAwareness recomputes the time-derived ambient fields and the
// ambient needs. Location and activity are left untouched.
func (s *Store) UpdateAmbientAwareness() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &s.ctx.Ambient
	a.Hour = now.Hour()
	a.DayOfWeek = now.Weekday()
	a.IsWeekend = a.DayOfWeek == time.Saturday || a.DayOfWeek == time.Sunday
	a.Needs = AmbientNeeds(a.Hour)
}

// AmbientNeeds derives the needs for an hour of the day using half-open
// buckets: [6,9) morning, [12,14) lunch, [18,20) evening, [22,6) quiet.
func AmbientNeeds(hour int) []string {
	needs := []string{}
	switch {
	case hour >= 6 && hour < 9:
		needs = append(needs, core.NeedMorningGreeting, core.NeedDailySummary)
	case hour >= 12 && hour < 14:
		needs = append(needs, core.NeedLunchReminder)
	case hour >= 18 && hour < 20:
		needs = append(needs, core.NeedEveningSummary)
	case hour >= 22 || hour < 6:
		needs = append(needs, core.NeedQuietMode)
	}
	return needs
}

// ResetSession starts a fresh session. Memory and ambient state are kept.
func (s *Store) ResetSession() string {
	id := core.NewID()
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx.Session = core.NewRAREContext(id, now).Session
	return id
}

type memorySnapshot struct {
	seq uint64
	mem core.MemoryContext
}

func (s *Store) snapshotLocked() memorySnapshot {
	s.seq++
	return memorySnapshot{seq: s.seq, mem: s.ctx.Memory.Clone()}
}

// schedulePersist writes the memory snapshot in the background. Writes
// overtaken by a newer snapshot are skipped.
func (s *Store) schedulePersist(snap memorySnapshot) {
	if s.persist == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.persistMu.Lock()
		defer s.persistMu.Unlock()
		if snap.seq <= s.written {
			return
		}

		blob, err := json.Marshal(snap.mem)
		if err != nil {
			s.log.LogError("memory encode failed", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()
		if err := s.persist.Save(ctx, s.key, blob); err != nil {
			s.log.LogWarn("memory persist failed", "key", s.key, "error", err)
			return
		}
		s.written = snap.seq
	}()
}

// Flush waits for pending persistence writes or until ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func keepLast[T any](items []T, limit int) []T {
	if len(items) <= limit {
		return items
	}
	return slices.Clone(items[len(items)-limit:])
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/rohitr8j/video-conversation/internal/store"
)

type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusEnding       Status = "ending"
	StatusEnded        Status = "ended"
)

// ActiveSession is the single live conversation for this application
// instance. It is mutated only through the Guard's transitions.
type ActiveSession struct {
	ConversationID  string    `json:"conversation_id"`
	ConversationURL string    `json:"conversation_url"`
	TherapistID     string    `json:"therapist_id"`
	TopicID         string    `json:"topic_id,omitempty"`
	PersonaRef      string    `json:"persona_ref"`
	TherapistName   string    `json:"therapist_name"`
	StartTime       time.Time `json:"start_time"`
	Status          Status    `json:"status"`
}

// Mirror is the persistence port the guard writes the active session through.
type Mirror interface {
	SaveSession(ctx context.Context, rec store.SessionRecord) error
	LoadSession(ctx context.Context) (*store.SessionRecord, error)
	ClearSession(ctx context.Context) error
}

// Guard serializes conversation-creation attempts and enforces a cool-down
// after a session ends. The remote API caps concurrent conversations per
// account, and keeps tearing one down for a while after it ends; the guard is
// the authoritative gate in front of both.
type Guard struct {
	mu sync.Mutex

	current    *ActiveSession
	creating   bool
	lastEnd    time.Time
	retryCount int

	maxRetries      int
	cooldown        time.Duration
	rehydrateWindow time.Duration
	mirror          Mirror
}

func NewGuard(cooldown, rehydrateWindow time.Duration, maxRetries int, mirror Mirror) *Guard {
	if cooldown < 0 {
		cooldown = 0
	}
	if rehydrateWindow <= 0 {
		rehydrateWindow = time.Hour
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Guard{
		maxRetries:      maxRetries,
		cooldown:        cooldown,
		rehydrateWindow: rehydrateWindow,
		mirror:          mirror,
	}
}

// Rehydrate restores a mirrored session persisted by a previous run. Records
// older than the rehydration window, or anything unreadable, are discarded.
func (g *Guard) Rehydrate(ctx context.Context) error {
	rec, err := g.mirror.LoadSession(ctx)
	if err != nil || rec == nil {
		// Unreadable mirror state means no session, never a fatal error.
		return nil
	}
	if time.Since(rec.StartTime) > g.rehydrateWindow || rec.Status == string(StatusEnded) {
		return g.mirror.ClearSession(ctx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = &ActiveSession{
		ConversationID:  rec.ConversationID,
		ConversationURL: rec.ConversationURL,
		TherapistID:     rec.TherapistID,
		TopicID:         rec.TopicID,
		PersonaRef:      rec.PersonaRef,
		TherapistName:   rec.TherapistName,
		StartTime:       rec.StartTime,
		Status:          Status(rec.Status),
	}
	return nil
}

// HasActive reports whether a non-ended session currently exists.
func (g *Guard) HasActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasActiveLocked()
}

func (g *Guard) hasActiveLocked() bool {
	return g.current != nil && g.current.Status != StatusEnded
}

// CanCreateNew is true iff no session is active, no creation is in flight,
// and the cool-down since the last session end has elapsed.
func (g *Guard) CanCreateNew() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.creating || g.hasActiveLocked() {
		return false
	}
	if g.lastEnd.IsZero() {
		return true
	}
	return time.Since(g.lastEnd) >= g.cooldown
}

// CooldownRemaining returns how long until the cool-down clears; zero when it
// already has or never applied.
func (g *Guard) CooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastEnd.IsZero() {
		return 0
	}
	remaining := g.cooldown - time.Since(g.lastEnd)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BeginCreation marks a creation attempt in flight. Callers must have checked
// CanCreateNew first; the guard does not re-check here.
func (g *Guard) BeginCreation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creating = true
	g.retryCount = 0
}

// TryBeginCreation checks admission and marks a creation attempt in flight
// under a single lock acquisition. Concurrent callers must use this instead of
// a CanCreateNew/BeginCreation pair: between those two calls a second attempt
// can slip through and both end up creating remote conversations.
func (g *Guard) TryBeginCreation() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.creating || g.hasActiveLocked() {
		return false
	}
	if !g.lastEnd.IsZero() && time.Since(g.lastEnd) < g.cooldown {
		return false
	}
	g.creating = true
	g.retryCount = 0
	return true
}

// Commit installs the established session and mirrors it for rehydration.
// The in-memory state is authoritative; a mirror write failure is returned
// for logging but does not undo the commit.
func (g *Guard) Commit(ctx context.Context, s ActiveSession) error {
	g.mu.Lock()
	g.current = &s
	g.creating = false
	g.retryCount = 0
	g.mu.Unlock()

	return g.mirror.SaveSession(ctx, store.SessionRecord{
		ConversationID:  s.ConversationID,
		ConversationURL: s.ConversationURL,
		TherapistID:     s.TherapistID,
		TopicID:         s.TopicID,
		PersonaRef:      s.PersonaRef,
		TherapistName:   s.TherapistName,
		StartTime:       s.StartTime,
		Status:          string(s.Status),
	})
}

// Release records termination. An empty conversationID force-releases; a
// mismatched id is a no-op so a stale or late termination cannot clobber a
// newer session. Reports whether the release happened.
func (g *Guard) Release(ctx context.Context, conversationID string) bool {
	g.mu.Lock()
	if conversationID != "" && (g.current == nil || g.current.ConversationID != conversationID) {
		g.mu.Unlock()
		return false
	}
	g.current = nil
	g.creating = false
	g.lastEnd = time.Now()
	g.retryCount = 0
	g.mu.Unlock()

	_ = g.mirror.ClearSession(ctx)
	return true
}

// IncrementRetry bumps the retry counter. The creation flag stays set so the
// guard keeps rejecting new attempts while the backoff wait runs. Returns the
// new count.
func (g *Guard) IncrementRetry() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retryCount++
	return g.retryCount
}

// ResetCreation clears creation state after a terminal failure or an explicit
// restart.
func (g *Guard) ResetCreation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creating = false
	g.retryCount = 0
}

// Current returns a copy of the active session, or nil.
func (g *Guard) Current() *ActiveSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	c := *g.current
	return &c
}

func (g *Guard) IsCreating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creating
}

func (g *Guard) RetryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.retryCount
}

func (g *Guard) MaxRetries() int {
	return g.maxRetries
}

package store

import (
	"context"
	"time"
)

// Profile holds the user-entered demographic and goal fields.
type Profile struct {
	FullName          string `json:"full_name"`
	Age               *int   `json:"age"`
	Gender            string `json:"gender"`
	PreferredLanguage string `json:"preferred_language"`
	TherapyGoals      string `json:"therapy_goals"`
}

// DefaultProfile returns the fresh-install profile.
func DefaultProfile() Profile {
	return Profile{PreferredLanguage: "English"}
}

// JournalEntry is a private post-session reflection. Never sent upstream.
type JournalEntry struct {
	ID    string    `json:"id"`
	Mood  int       `json:"mood"`
	Entry string    `json:"entry"`
	Date  time.Time `json:"date"`
}

// SessionRecord mirrors the in-memory active session so a restart inside the
// rehydration window can pick the session back up.
type SessionRecord struct {
	ConversationID  string    `json:"conversation_id"`
	ConversationURL string    `json:"conversation_url"`
	TherapistID     string    `json:"therapist_id"`
	TopicID         string    `json:"topic_id"`
	PersonaRef      string    `json:"persona_ref"`
	TherapistName   string    `json:"therapist_name"`
	StartTime       time.Time `json:"start_time"`
	Status          string    `json:"status"`
}

// SessionSummary records a finished session for the post-session screens.
type SessionSummary struct {
	ID              string    `json:"id"`
	TherapistID     string    `json:"therapist_id"`
	TherapistName   string    `json:"therapist_name"`
	TopicID         string    `json:"topic_id,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// Store is the persistence port for credentials, profile, session mirror and
// journal. Implementations must treat corrupt persisted state as absent.
type Store interface {
	Token(ctx context.Context) (string, error)
	// SetToken replaces the credential and drops any mirrored session: a
	// session created under the old credential cannot be managed with the new
	// one.
	SetToken(ctx context.Context, token string) error

	Profile(ctx context.Context) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) error

	SaveSession(ctx context.Context, rec SessionRecord) error
	// LoadSession returns nil with no error when nothing usable is persisted.
	LoadSession(ctx context.Context) (*SessionRecord, error)
	ClearSession(ctx context.Context) error

	AppendJournal(ctx context.Context, entry JournalEntry) error
	ListJournal(ctx context.Context, limit int) ([]JournalEntry, error)

	SaveSummary(ctx context.Context, s SessionSummary) error
	ListSummaries(ctx context.Context, limit int) ([]SessionSummary, error)

	Close() error
}

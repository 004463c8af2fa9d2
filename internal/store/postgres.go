package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenSettingKey = "tavus_api_key"

// PostgresStore persists settings, profile, journal and the session mirror in
// PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_profile (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			full_name TEXT NOT NULL DEFAULT '',
			age INT,
			gender TEXT NOT NULL DEFAULT '',
			preferred_language TEXT NOT NULL DEFAULT 'English',
			therapy_goals TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS active_session (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			conversation_id TEXT NOT NULL,
			conversation_url TEXT NOT NULL DEFAULT '',
			therapist_id TEXT NOT NULL DEFAULT '',
			topic_id TEXT NOT NULL DEFAULT '',
			persona_ref TEXT NOT NULL,
			therapist_name TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id TEXT PRIMARY KEY,
			mood INT NOT NULL,
			entry TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_date ON journal_entries (date);`,
		`CREATE TABLE IF NOT EXISTS session_summaries (
			id TEXT PRIMARY KEY,
			therapist_id TEXT NOT NULL,
			therapist_name TEXT NOT NULL,
			topic_id TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds INT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_summaries_started ON session_summaries (started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Token(ctx context.Context) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM app_settings WHERE key=$1`, tokenSettingKey,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) SetToken(ctx context.Context, token string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin token update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO app_settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		tokenSettingKey, token,
	); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM active_session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear mirrored session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit token update: %w", err)
	}
	return nil
}

func (s *PostgresStore) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT full_name, age, gender, preferred_language, therapy_goals
		 FROM user_profile WHERE id = 1`,
	).Scan(&p.FullName, &p.Age, &p.Gender, &p.PreferredLanguage, &p.TherapyGoals)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultProfile(), nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_profile (id, full_name, age, gender, preferred_language, therapy_goals)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			preferred_language = EXCLUDED.preferred_language,
			therapy_goals = EXCLUDED.therapy_goals`,
		p.FullName, p.Age, p.Gender, p.PreferredLanguage, p.TherapyGoals,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO active_session (id, conversation_id, conversation_url, therapist_id, topic_id, persona_ref, therapist_name, start_time, status)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			conversation_url = EXCLUDED.conversation_url,
			therapist_id = EXCLUDED.therapist_id,
			topic_id = EXCLUDED.topic_id,
			persona_ref = EXCLUDED.persona_ref,
			therapist_name = EXCLUDED.therapist_name,
			start_time = EXCLUDED.start_time,
			status = EXCLUDED.status`,
		rec.ConversationID, rec.ConversationURL, rec.TherapistID, rec.TopicID, rec.PersonaRef, rec.TherapistName, rec.StartTime, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("mirror session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadSession(ctx context.Context) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.pool.QueryRow(ctx,
		`SELECT conversation_id, conversation_url, therapist_id, topic_id, persona_ref, therapist_name, start_time, status
		 FROM active_session WHERE id = 1`,
	).Scan(&rec.ConversationID, &rec.ConversationURL, &rec.TherapistID, &rec.TopicID, &rec.PersonaRef, &rec.TherapistName, &rec.StartTime, &rec.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mirrored session: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ClearSession(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM active_session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear mirrored session: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendJournal(ctx context.Context, entry JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, mood, entry, date) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.Mood, entry.Entry, entry.Date,
	)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, mood, entry, date FROM journal_entries ORDER BY date DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Mood, &e.Entry, &e.Date); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum SessionSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_summaries (id, therapist_id, therapist_name, topic_id, started_at, ended_at, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sum.ID, sum.TherapistID, sum.TherapistName, sum.TopicID, sum.StartedAt, sum.EndedAt, sum.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, therapist_id, therapist_name, topic_id, started_at, ended_at, duration_seconds
		 FROM session_summaries ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	sums := make([]SessionSummary, 0, limit)
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ID, &s.TherapistID, &s.TherapistName, &s.TopicID, &s.StartedAt, &s.EndedAt, &s.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		sums = append(sums, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}

	for i, j := 0, len(sums)-1; i < j; i, j = i+1, j-1 {
		sums[i], sums[j] = sums[j], sums[i]
	}
	return sums, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

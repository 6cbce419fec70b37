package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"lumen-agent/internal/domain"
)

// Compile-time interface assertion.
var _ domain.StatsStore = (*SQLiteStatsStore)(nil)

// SQLiteStatsStore persists agent scores and skill usage in SQLite.
type SQLiteStatsStore struct {
	db *sql.DB
}

// NewSQLiteStatsStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteStatsStore(dbPath string) (*SQLiteStatsStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create stats dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	// The agent and the gateway write from different goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate stats db: %w", err)
	}
	return &SQLiteStatsStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_scores (
			agent_id      TEXT PRIMARY KEY,
			successes     INTEGER NOT NULL DEFAULT 0,
			total         INTEGER NOT NULL DEFAULT 0,
			dynamic_boost REAL    NOT NULL DEFAULT 0,
			updated_at    TEXT    NOT NULL
		);
		CREATE TABLE IF NOT EXISTS skill_usage (
			name            TEXT PRIMARY KEY,
			use_count       INTEGER NOT NULL DEFAULT 0,
			success_rate    REAL    NOT NULL DEFAULT 0.5,
			user_preference REAL    NOT NULL DEFAULT 0.5,
			last_used       TEXT    NOT NULL DEFAULT ''
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStatsStore) Close() error {
	return s.db.Close()
}

// LoadAgentScores implements domain.StatsStore.
func (s *SQLiteStatsStore) LoadAgentScores(ctx context.Context) (map[string]domain.AgentScore, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT agent_id, successes, total, dynamic_boost FROM agent_scores")
	if err != nil {
		return nil, storeErr("LoadAgentScores", err)
	}
	defer rows.Close()

	out := make(map[string]domain.AgentScore)
	for rows.Next() {
		var (
			id    string
			score domain.AgentScore
		)
		if err := rows.Scan(&id, &score.Successes, &score.Total, &score.DynamicBoost); err != nil {
			return nil, storeErr("LoadAgentScores", err)
		}
		out[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("LoadAgentScores", err)
	}
	return out, nil
}

// SaveAgentScore implements domain.StatsStore.
func (s *SQLiteStatsStore) SaveAgentScore(ctx context.Context, agentID string, score domain.AgentScore) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_scores (agent_id, successes, total, dynamic_boost, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			successes = excluded.successes,
			total = excluded.total,
			dynamic_boost = excluded.dynamic_boost,
			updated_at = excluded.updated_at`,
		agentID, score.Successes, score.Total, score.DynamicBoost, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storeErr("SaveAgentScore", err)
	}
	return nil
}

// LoadSkillUsage implements domain.StatsStore.
func (s *SQLiteStatsStore) LoadSkillUsage(ctx context.Context) (map[string]domain.SkillUsage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, use_count, success_rate, user_preference, last_used FROM skill_usage")
	if err != nil {
		return nil, storeErr("LoadSkillUsage", err)
	}
	defer rows.Close()

	out := make(map[string]domain.SkillUsage)
	for rows.Next() {
		var (
			name     string
			lastUsed string
			u        domain.SkillUsage
		)
		if err := rows.Scan(&name, &u.UseCount, &u.AverageSuccessRate, &u.UserPreference, &lastUsed); err != nil {
			return nil, storeErr("LoadSkillUsage", err)
		}
		u.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed)
		out[name] = u
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("LoadSkillUsage", err)
	}
	return out, nil
}

// SaveSkillUsage implements domain.StatsStore.
func (s *SQLiteStatsStore) SaveSkillUsage(ctx context.Context, name string, u domain.SkillUsage) error {
	var lastUsed string
	if !u.LastUsed.IsZero() {
		lastUsed = u.LastUsed.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_usage (name, use_count, success_rate, user_preference, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			use_count = excluded.use_count,
			success_rate = excluded.success_rate,
			user_preference = excluded.user_preference,
			last_used = excluded.last_used`,
		name, u.UseCount, u.AverageSuccessRate, u.UserPreference, lastUsed,
	)
	if err != nil {
		return storeErr("SaveSkillUsage", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewDomainError("SQLiteStatsStore."+op, domain.ErrStatsStore, err.Error())
}

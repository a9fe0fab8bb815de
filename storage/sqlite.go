// Package storage persists turns, their event streams and the documents
// context items point at.
//
// Information Hiding:
// - SQLite connection management hidden behind Store
// - Schema and row encoding encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhfg/refly-sub011/model"
)

// ErrNotFound is returned when a turn, document or resource does not exist.
var ErrNotFound = errors.New("not found")

// Turn is the stored summary of one turn.
type Turn struct {
	ID         string          `json:"id"`
	Query      string          `json:"query"`
	Skill      string          `json:"skill,omitempty"`
	Status     model.EndStatus `json:"status,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Store is the SQLite turn store.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type Store struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return initStore(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return initStore(db)
}

func initStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// newStore wraps an existing handle without touching the schema.
func newStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			skill TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			finished_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS events (
			turn_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			event TEXT NOT NULL,
			span_id TEXT NOT NULL,
			skill_name TEXT NOT NULL,
			span_kind TEXT NOT NULL,
			parent_span_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			structured_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (turn_id, seq),
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS token_usage (
			turn_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			model_name TEXT NOT NULL,
			model_provider TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			PRIMARY KEY (turn_id, tier, model_name),
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateTurn registers a turn before its events are written.
func (s *Store) CreateTurn(ctx context.Context, turnID, query string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO turns (turn_id, query, created_at) VALUES (?, ?, ?)",
		turnID, query, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

// AppendEvent stores the event at position seq of the turn stream.
func (s *Store) AppendEvent(ctx context.Context, seq int, ev model.SkillEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(turn_id, seq, event, span_id, skill_name, span_kind, parent_span_id, content, structured_key, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TurnID,
		seq,
		string(ev.Event),
		ev.SpanID,
		ev.SkillMeta.Name,
		string(ev.SkillMeta.Kind),
		ev.SkillMeta.ParentSpanID,
		ev.Content,
		ev.StructuredDataKey,
		string(ev.Status),
		ev.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// FinishTurn records the outcome of a turn.
func (s *Store) FinishTurn(ctx context.Context, turnID, skill string, status model.EndStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE turns SET skill = ?, status = ?, error = ?, finished_at = ? WHERE turn_id = ?",
		skill, string(status), errMsg, time.Now().UnixMilli(), turnID)
	if err != nil {
		return fmt.Errorf("failed to finish turn: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
	}
	return nil
}

// GetTurn loads a turn summary.
func (s *Store) GetTurn(ctx context.Context, turnID string) (Turn, error) {
	var (
		t        Turn
		status   string
		created  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT turn_id, query, skill, status, error, created_at, finished_at FROM turns WHERE turn_id = ?",
		turnID).Scan(&t.ID, &t.Query, &t.Skill, &status, &t.Error, &created, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Turn{}, fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
	}
	if err != nil {
		return Turn{}, fmt.Errorf("failed to load turn: %w", err)
	}
	t.Status = model.EndStatus(status)
	t.CreatedAt = time.UnixMilli(created)
	if finished.Valid {
		at := time.UnixMilli(finished.Int64)
		t.FinishedAt = &at
	}
	return t, nil
}

// LoadEvents returns the stored stream of a turn in emission order.
func (s *Store) LoadEvents(ctx context.Context, turnID string) ([]model.SkillEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event, span_id, skill_name, span_kind, parent_span_id, content, structured_key, status, error
		FROM events WHERE turn_id = ? ORDER BY seq ASC`,
		turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	stream := []model.SkillEvent{}
	for rows.Next() {
		var (
			ev                  model.SkillEvent
			event, kind, status string
		)
		if err := rows.Scan(&event, &ev.SpanID, &ev.SkillMeta.Name, &kind, &ev.SkillMeta.ParentSpanID,
			&ev.Content, &ev.StructuredDataKey, &status, &ev.Error); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.TurnID = turnID
		ev.Event = model.EventType(event)
		ev.SkillMeta.Kind = model.SpanKind(kind)
		ev.Status = model.EndStatus(status)
		stream = append(stream, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return stream, nil
}

// SaveUsage replaces the aggregated token usage of a turn.
func (s *Store) SaveUsage(ctx context.Context, turnID string, usage []model.TokenUsageItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM token_usage WHERE turn_id = ?", turnID); err != nil {
		return fmt.Errorf("failed to clear usage: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO token_usage (turn_id, tier, model_name, model_provider, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range usage {
		if _, err := stmt.ExecContext(ctx, turnID, item.Tier, item.ModelName, item.ModelProvider,
			item.InputTokens, item.OutputTokens); err != nil {
			return fmt.Errorf("failed to insert usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadUsage returns the stored usage of a turn, sorted by tier and model.
func (s *Store) LoadUsage(ctx context.Context, turnID string) ([]model.TokenUsageItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, model_name, model_provider, input_tokens, output_tokens
		FROM token_usage WHERE turn_id = ? ORDER BY tier ASC, model_name ASC`,
		turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	usage := []model.TokenUsageItem{}
	for rows.Next() {
		var item model.TokenUsageItem
		if err := rows.Scan(&item.Tier, &item.ModelName, &item.ModelProvider, &item.InputTokens, &item.OutputTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage = append(usage, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage: %w", err)
	}
	return usage, nil
}

// PutDocument inserts or replaces a document.
func (s *Store) PutDocument(ctx context.Context, doc model.Document) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO documents (id, title, content, updated_at) VALUES (?, ?, ?, ?)",
		doc.ID, doc.Title, doc.Content, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// GetDocument loads a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (model.Document, error) {
	var doc model.Document
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content FROM documents WHERE id = ?", id).
		Scan(&doc.ID, &doc.Title, &doc.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// PutResource inserts or replaces a resource.
func (s *Store) PutResource(ctx context.Context, res model.Resource) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO resources (id, title, content, url, updated_at) VALUES (?, ?, ?, ?, ?)",
		res.ID, res.Title, res.Content, res.URL, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store resource: %w", err)
	}
	return nil
}

// GetResource loads a resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (model.Resource, error) {
	var res model.Resource
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, url FROM resources WHERE id = ?", id).
		Scan(&res.ID, &res.Title, &res.Content, &res.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Resource{}, fmt.Errorf("failed to load resource: %w", err)
	}
	return res, nil
}

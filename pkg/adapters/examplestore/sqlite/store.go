// Package sqlite stores previously answered question/query pairs in a SQLite
// file and turns them into a similarity index on demand.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/datagenie-engine/pkg/embedding"
	"github.com/ekaya-inc/datagenie-engine/pkg/index"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens or creates a SQLite database at path. ":memory:" opens a
// private in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:      db,
		logger:  logger.Named("example-store"),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS examples (
		id          TEXT PRIMARY KEY,
		question    TEXT NOT NULL,
		query       TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_examples_question ON examples(question);
	CREATE INDEX IF NOT EXISTS idx_examples_created ON examples(created_at);
	`)
	return err
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a question/query pair. Re-adding a known question replaces its
// query and keeps the original id.
func (s *Store) Add(ctx context.Context, question, query string) (models.ContextExample, error) {
	question = strings.TrimSpace(question)
	query = strings.TrimSpace(query)
	if question == "" || query == "" {
		return models.ContextExample{}, fmt.Errorf("question and query are required")
	}

	id := s.newID()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO examples (id, question, query, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(question) DO UPDATE SET query = excluded.query`,
		id, question, query, now)
	if err != nil {
		return models.ContextExample{}, fmt.Errorf("insert example: %w", err)
	}

	var ex models.ContextExample
	err = s.db.QueryRowContext(ctx, `SELECT id, question, query FROM examples WHERE question = ?`, question).
		Scan(&ex.ID, &ex.Question, &ex.Query)
	if err != nil {
		return models.ContextExample{}, fmt.Errorf("read example: %w", err)
	}
	return ex, nil
}

// AddAll stores many examples in one transaction.
func (s *Store) AddAll(ctx context.Context, examples []models.ContextExample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, ex := range examples {
		id := ex.ID
		if id == "" {
			id = s.newID()
		}
		if strings.TrimSpace(ex.Question) == "" || strings.TrimSpace(ex.Query) == "" {
			return fmt.Errorf("example %s: question and query are required", id)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO examples (id, question, query, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(question) DO UPDATE SET query = excluded.query`,
			id, strings.TrimSpace(ex.Question), strings.TrimSpace(ex.Query), now); err != nil {
			return fmt.Errorf("insert example %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// List returns stored examples ordered by creation time (limit <= 0 means all).
func (s *Store) List(ctx context.Context, limit int) ([]models.ContextExample, error) {
	q := `SELECT id, question, query FROM examples ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	var out []models.ContextExample
	for rows.Next() {
		var ex models.ContextExample
		if err := rows.Scan(&ex.ID, &ex.Question, &ex.Query); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Questions returns up to limit stored questions, for suggesting what to ask.
func (s *Store) Questions(ctx context.Context, limit int) ([]string, error) {
	examples, err := s.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(examples))
	for i, ex := range examples {
		out[i] = ex.Question
	}
	return out, nil
}

// Count returns the number of stored examples.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM examples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count examples: %w", err)
	}
	return n, nil
}

// Delete removes an example by id. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM examples WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete example: %w", err)
	}
	return nil
}

// BuildIndex embeds every stored question and returns an immutable index.
// Vectors are computed on each call and never written back.
func (s *Store) BuildIndex(ctx context.Context, e embedding.Embedder) (*index.MemoryIndex, error) {
	examples, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	idx, err := index.Build(ctx, e, examples)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Built example index",
		zap.Int("examples", idx.Len()),
		zap.Int("dims", idx.Dims()),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

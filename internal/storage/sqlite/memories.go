package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dyike/CortexDesk/models"
)

const (
	MaxMemories       = 20
	MaxMemoryNameLen  = 100
	MaxMemoryContents = 50 * 1024
)

var (
	ErrMemoryLimit    = errors.New("memory limit reached")
	ErrMemoryTooLarge = errors.New("memory content too large")
	ErrMemoryNotFound = errors.New("memory not found")
	ErrInvalidMemory  = errors.New("invalid memory")
)

func (s *Store) ListMemories(ctx context.Context) ([]models.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, content, active, updated_at
FROM memories
ORDER BY name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []models.Memory
	for rows.Next() {
		var m models.Memory
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Content, &m.Active, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memories rows: %w", err)
	}
	return out, nil
}

// SaveMemory creates the memory or replaces the one with the same name.
// It reports whether a new memory was created.
func (s *Store) SaveMemory(ctx context.Context, mem models.Memory) (bool, error) {
	mem.Name = strings.TrimSpace(mem.Name)
	switch {
	case mem.Name == "":
		return false, fmt.Errorf("%w: name is required", ErrInvalidMemory)
	case utf8.RuneCountInString(mem.Name) > MaxMemoryNameLen:
		return false, fmt.Errorf("%w: name longer than %d characters", ErrInvalidMemory, MaxMemoryNameLen)
	case strings.TrimSpace(mem.Content) == "":
		return false, fmt.Errorf("%w: content is required", ErrInvalidMemory)
	case len(mem.Content) > MaxMemoryContents:
		return false, fmt.Errorf("%w: %d bytes, limit %d", ErrMemoryTooLarge, len(mem.Content), MaxMemoryContents)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin save memory: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM memories WHERE name = ?`, mem.Name).Scan(&existing)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("lookup memory: %w", err)
	}

	if created {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count); err != nil {
			return false, fmt.Errorf("count memories: %w", err)
		}
		if count >= MaxMemories {
			return false, fmt.Errorf("%w: %d memories stored", ErrMemoryLimit, count)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO memories (name, description, content, active, updated_at)
VALUES (?, ?, ?, 1, ?)
`, mem.Name, mem.Description, mem.Content, s.now())
	} else {
		_, err = tx.ExecContext(ctx, `
UPDATE memories
SET description = ?, content = ?, active = 1, updated_at = ?
WHERE id = ?
`, mem.Description, mem.Content, s.now(), existing)
	}
	if err != nil {
		return false, fmt.Errorf("save memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit memory: %w", err)
	}
	return created, nil
}

func (s *Store) DeleteMemory(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("delete memory %q: %w", name, ErrMemoryNotFound)
	}
	return nil
}

// SetMemoryActive toggles whether a memory is injected into the agent prompt.
// Inactive memories stay listed and count toward MaxMemories.
func (s *Store) SetMemoryActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET active = ?, updated_at = ? WHERE name = ?`,
		active, s.now(), strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("update memory %q: %w", name, ErrMemoryNotFound)
	}
	return nil
}

// ActiveMemories returns the memories injected into the agent prompt.
func (s *Store) ActiveMemories(ctx context.Context) ([]models.Memory, error) {
	all, err := s.ListMemories(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, m := range all {
		if m.Active {
			active = append(active, m)
		}
	}
	return active, nil
}

package postgres

import (
	"context"
	"log/slog"

	"github.com/phrazzld/agentkit/internal/platform/logger"
	"github.com/phrazzld/agentkit/internal/store"
)

// Backend implements store.Backend on the agentkit_entries table.
type Backend struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewBackend creates a Backend. db may be a pool or a transaction.
func NewBackend(db store.DBTX, logger *slog.Logger) *Backend {
	return &Backend{
		db:     db,
		logger: logger.With("component", "postgres_backend"),
	}
}

// Read implements store.Backend.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	name, err := store.CleanKey(key)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = b.db.QueryRowContext(ctx,
		`SELECT value FROM agentkit_entries WHERE key = $1`, name).Scan(&value)
	if err != nil {
		return nil, MapError(err)
	}
	return value, nil
}

// Write implements store.Backend. A single upsert statement replaces the
// value atomically.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	name, err := store.CleanKey(key)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO agentkit_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, name, data)
	if err != nil {
		logger.FromContextOr(ctx, b.logger).Error("failed to write entry",
			"key", name,
			"error", err)
		return MapError(err)
	}
	return nil
}

// Exists implements store.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	name, err := store.CleanKey(key)
	if err != nil {
		return false, err
	}

	var exists bool
	err = b.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM agentkit_entries WHERE key = $1)`, name).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	name, err := store.CleanKey(key)
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, `DELETE FROM agentkit_entries WHERE key = $1`, name); err != nil {
		return MapError(err)
	}
	return nil
}

var _ store.Backend = (*Backend)(nil)

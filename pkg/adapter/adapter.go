// Package adapter defines the execution surface: drivers that run compiled
// SQL against a warehouse. Concrete implementations live in pkg/adapters/
// subdirectories and register themselves by name. The model and compile
// packages never import this; execution is strictly a collaborator.
package adapter

import (
	"context"
	"database/sql"
	"fmt"
)

// Config holds connection settings for an adapter. Fields not relevant to
// a given backend are ignored by it.
type Config struct {
	Type     string            `koanf:"type"`
	Path     string            `koanf:"path"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	Username string            `koanf:"username"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
}

// Adapter is a database driver bound to one connection.
type Adapter interface {
	// Connect establishes the connection.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// DialectName names the dialect models must compile with to run on
	// this adapter.
	DialectName() string
}

// Rows wraps sql.Rows with a convenience reader.
type Rows struct {
	*sql.Rows
}

// ReadAll drains the result set into column names and row values. Byte
// slices are converted to strings so results survive the cursor.
func (r *Rows) ReadAll() ([]string, [][]any, error) {
	defer func() { _ = r.Close() }()

	cols, err := r.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]any
	for r.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := r.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return cols, out, nil
}

// Package history records conversion results in a storage backend.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zot/lensconv/internal/config"
)

// Record is one stored conversion result.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	RunID       string    `json:"runId" yaml:"run_id"`
	File        string    `json:"file" yaml:"file"`
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Success     bool      `json:"success" yaml:"success"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	OutputDir   string    `json:"outputDir,omitempty" yaml:"output_dir,omitempty"`
	ConvertedAt time.Time `json:"convertedAt" yaml:"converted_at"`
}

// Query selects records for List. Zero values match everything.
type Query struct {
	RunID string
	Limit int
}

// Backend defines the interface for history backends.
// Implementations are safe for concurrent use.
type Backend interface {
	// Store persists a record, assigning ID and ConvertedAt when unset.
	Store(r *Record) error

	// List returns matching records, newest first.
	List(q Query) ([]*Record, error)

	// Clear removes all records.
	Clear() error

	// Close closes the backend.
	Close() error
}

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// prepare fills in the generated fields of r.
func prepare(r *Record) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ConvertedAt.IsZero() {
		r.ConvertedAt = time.Now()
	}
	r.ConvertedAt = r.ConvertedAt.UTC()
}

// Open creates the backend named by cfg. It returns nil for type "none".
func Open(cfg config.HistoryConfig) (Backend, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryHistory(), nil
	case "sqlite":
		return NewSQLiteHistory(cfg.Path)
	case "postgresql":
		if cfg.URL == "" {
			return nil, fmt.Errorf("history type postgresql requires a url")
		}
		return NewPostgresHistory(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown history type %q", cfg.Type)
	}
}

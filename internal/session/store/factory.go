// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"fmt"
	"io"

	"github.com/webpdtool/webpdtool/internal/session"
)

// Repository is a session repository that owns resources.
type Repository interface {
	session.Repository
	io.Closer
}

// Open returns the repository for the configured backend: "memory" or
// "sqlite". path is the database file for the sqlite backend.
func Open(backend, path string) (Repository, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSqliteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Package store is the path-addressed document store that owns persisted
// orders, ready signals, owners and sessions.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Update for a path that holds no value.
var ErrNotFound = errors.New("store: path not found")

// Change operations.
const (
	OpSet    = "set"
	OpUpdate = "update"
	OpRemove = "remove"
)

// Change describes one write seen by a subscriber.
type Change struct {
	Path string    `json:"path"`
	Op   string    `json:"op"`
	At   time.Time `json:"at"`
}

// Store is the Order Store contract. Values are JSON documents. Writes are
// last-writer-wins; there is no transactional isolation between callers.
//
// Transport failures are reported as *models.StoreUnavailableError.
type Store interface {
	Get(ctx context.Context, path string, dest any) error
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, partial map[string]any) error
	Remove(ctx context.Context, path string) error
	// Take reads and removes the value in one step, so of two concurrent
	// callers only one sees it. Returns ErrNotFound when the path is empty.
	Take(ctx context.Context, path string, dest any) error
	// List returns the raw JSON documents stored directly under prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// Subscribe streams changes to paths under prefix until cancel is called
	// or ctx ends.
	Subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error)
}

// Join builds a store path from segments.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// Base returns the last path segment.
func Base(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func matches(prefix, path string) bool {
	return prefix == "" || strings.HasPrefix(path, prefix)
}

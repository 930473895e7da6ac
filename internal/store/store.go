// Package store abstracts persistence for the control-plane-owned Device,
// Gateway, and Application records (spec.md §3) behind one interface, the
// way the teacher's fabric package fronts an in-memory and a Redis-backed
// implementation with the same contract so callers never know which one
// they're talking to.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound names a missing kind/name record. Get and Update do not
// return it: Get reports absence as false, nil, and Update starts from the
// zero value.
var ErrNotFound = errors.New("store: record not found")

// Store persists JSON-serializable records under a namespaced
// kind/name key. Every call is expected to honor ctx's deadline — callers
// wrap each invocation in a 5-second timeout per spec.md §5.
type Store interface {
	// Put writes value, replacing any existing record.
	Put(ctx context.Context, kind, name string, value interface{}) error

	// Get loads the record into out. Returns false, nil if absent.
	Get(ctx context.Context, kind, name string, out interface{}) (bool, error)

	// List returns the names of every record under kind.
	List(ctx context.Context, kind string) ([]string, error)

	// Delete removes the record. It is not an error if it didn't exist.
	Delete(ctx context.Context, kind, name string) error

	// Update performs a locked read-modify-write: it loads the current
	// value into out (zero value if absent), calls mutate to apply
	// changes in place, then writes out back. Concurrent Updates on the
	// same key are serialized.
	Update(ctx context.Context, kind, name string, out interface{}, mutate func() error) error
}

func encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: marshal: %w", err)
	}
	return data, nil
}

func decode(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store: unmarshal: %w", err)
	}
	return nil
}

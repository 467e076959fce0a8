// Package channels holds the ordered, de-duplicated list of chat rooms the agent
// joins, together with the name validator and the durable backends the list is
// mirrored to (a JSON file or a SQL table).
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

var (
	// ErrStorageUnavailable is returned by Load when the backend cannot be read.
	ErrStorageUnavailable = errors.New("channel storage unavailable")
	// ErrStorageWrite is returned by Persist when the backend cannot be written.
	ErrStorageWrite = errors.New("channel storage write failed")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// IsValid reports whether name is usable as a channel identifier.
// Callers lower-case names before validating them.
func IsValid(name string) bool {
	return name != "" && namePattern.MatchString(name)
}

// Normalize turns a platform display name into a channel identifier candidate.
// It only lower-cases; padding survives and fails IsValid.
func Normalize(display string) string {
	return strings.ToLower(display)
}

// Backend is durable storage for the channel list. Save overwrites the stored
// list wholesale.
type Backend interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, names []string) error
}

// Store is an insertion-ordered set of channel identifiers mirrored to a Backend.
type Store struct {
	backend Backend

	mu    sync.RWMutex
	names []string
	index map[string]struct{}
}

// NewStore returns an empty store backed by b.
func NewStore(b Backend) *Store {
	return &Store{backend: b, index: make(map[string]struct{})}
}

// Load replaces the in-memory list with the backend contents. On failure the
// store is left empty and an error wrapping ErrStorageUnavailable is returned;
// callers log it and continue so discovery can bootstrap a fresh list.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = nil
	s.index = make(map[string]struct{})

	stored, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	dropped := 0
	for _, n := range stored {
		n = Normalize(n)
		if !IsValid(n) {
			dropped++
			continue
		}
		if _, ok := s.index[n]; ok {
			dropped++
			continue
		}
		s.index[n] = struct{}{}
		s.names = append(s.names, n)
	}
	if dropped > 0 {
		slog.Warn("dropped invalid or duplicate stored channels", slog.Int("dropped", dropped), slog.String("component", "channels"))
	}
	return s.snapshot(), nil
}

// Contains reports whether id is in the list.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Append adds id at the end of the list. It returns false, leaving the list
// unchanged, when id is already present or is not a valid identifier.
func (s *Store) Append(id string) bool {
	if !IsValid(id) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.names = append(s.names, id)
	return true
}

// List returns a copy of the list in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Len returns the number of channels.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Persist writes the full list to the backend. Failures wrap ErrStorageWrite;
// the in-memory list stays authoritative for the running process.
func (s *Store) Persist(ctx context.Context) error {
	names := s.List()
	if err := s.backend.Save(ctx, names); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return nil
}

func (s *Store) snapshot() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

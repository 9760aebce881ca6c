// Package memory implements grace.Store as an in-process map, the fast
// conformance-suite target this core's test files run against directly
// (mirroring the teacher's pkg/metadata/store/memory role).
package memory

import (
	"context"
	"sync"

	"github.com/coregate/coregate/internal/grace"
)

type record struct {
	epochs  grace.Epochs
	members map[string]grace.Flags
	version grace.Version
}

// Store is an in-memory grace.Store. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[string]*record
}

// New creates an empty in-memory grace.Store.
func New() *Store {
	return &Store{objects: make(map[string]*record)}
}

func (s *Store) CreateIfAbsent(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; ok {
		return false, nil
	}
	s.objects[name] = &record{
		epochs:  grace.Epochs{CurrentEpoch: 1},
		members: make(map[string]grace.Flags),
		version: 1,
	}
	return true, nil
}

func (s *Store) Read(_ context.Context, name string) (grace.Epochs, grace.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.objects[name]
	if !ok {
		return grace.Epochs{}, 0, grace.ErrNotFound
	}
	return r.epochs, r.version, nil
}

func (s *Store) ReadPlusOmap(_ context.Context, name string) (grace.Epochs, map[string]grace.Flags, grace.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.objects[name]
	if !ok {
		return grace.Epochs{}, nil, 0, grace.ErrNotFound
	}
	members := make(map[string]grace.Flags, len(r.members))
	for k, v := range r.members {
		members[k] = v
	}
	return r.epochs, members, r.version, nil
}

func (s *Store) Write(_ context.Context, name string, epochs grace.Epochs, expected grace.Version) (grace.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.objects[name]
	if !ok {
		return 0, grace.ErrNotFound
	}
	if r.version != expected {
		return 0, grace.ErrConflict
	}
	r.epochs = epochs
	r.version++
	return r.version, nil
}

func (s *Store) UpdateOmap(_ context.Context, name string, upserts map[string]grace.Flags, deletes []string, expected grace.Version) (grace.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.objects[name]
	if !ok {
		return 0, grace.ErrNotFound
	}
	if r.version != expected {
		return 0, grace.ErrConflict
	}
	for k, v := range upserts {
		r.members[k] = v
	}
	for _, k := range deletes {
		delete(r.members, k)
	}
	r.version++
	return r.version, nil
}

func (s *Store) Notify(_ context.Context, _ string) error {
	return nil
}

// Package memstore is an in-memory fake of store.Store for tests: no
// production coordination-store client is grounded anywhere in the
// retrieval pack (see SPEC_FULL.md's DOMAIN STACK section), so unit
// tests exercise the core against this fake instead of a real
// ZooKeeper/etcd client.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"fleetload/internal/store"
)

type node struct {
	payload []byte
	mode    store.CreateMode
}

// Store is a single-process, mutex-guarded implementation of
// store.Store. Watches are delivered by fan-out channels rather than
// a real session/watch protocol, which is enough to exercise the
// membership and broker-data watchers in tests.
type Store struct {
	mu       sync.Mutex
	nodes    map[string]node
	children map[string]map[string]struct{} // parent path -> child names

	childWatchers map[string][]chan []string
	dataWatchers  map[string][]chan []byte
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nodes:         make(map[string]node),
		children:      make(map[string]map[string]struct{}),
		childWatchers: make(map[string][]chan []string),
		dataWatchers:  make(map[string][]chan []byte),
	}
}

func parentOf(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func nameOf(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	return path[idx+1:]
}

func (s *Store) ExistsOrCreate(_ context.Context, path string, payload []byte, mode store.CreateMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[path]; exists {
		return nil
	}
	s.createLocked(path, payload, mode)
	return nil
}

// createLocked installs path (and registers it as a child of its
// parent), notifying any children watchers on the parent. Callers must
// hold s.mu.
func (s *Store) createLocked(path string, payload []byte, mode store.CreateMode) {
	s.nodes[path] = node{payload: payload, mode: mode}
	parent := parentOf(path)
	siblings, ok := s.children[parent]
	if !ok {
		siblings = make(map[string]struct{})
		s.children[parent] = siblings
	}
	siblings[nameOf(path)] = struct{}{}
	s.notifyChildrenLocked(parent)
}

func (s *Store) GetJSON(_ context.Context, path string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[path]
	if !ok {
		return store.ErrNoNode
	}
	return json.Unmarshal(n.payload, out)
}

func (s *Store) SetJSON(_ context.Context, path string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[path]; ok {
		n.payload = payload
		s.nodes[path] = n
	} else {
		s.createLocked(path, payload, store.Persistent)
	}
	s.notifyDataLocked(path)
	return nil
}

func (s *Store) ChildrenWithWatch(ctx context.Context, path string) ([]string, <-chan []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan []string, 1)
	s.childWatchers[path] = append(s.childWatchers[path], ch)
	go func() {
		<-ctx.Done()
		s.removeChildWatcher(path, ch)
	}()
	return s.childrenLocked(path), ch, nil
}

func (s *Store) DataWithWatch(ctx context.Context, path string) ([]byte, <-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[path]
	if !ok {
		return nil, nil, store.ErrNoNode
	}
	ch := make(chan []byte, 1)
	s.dataWatchers[path] = append(s.dataWatchers[path], ch)
	go func() {
		<-ctx.Done()
		s.removeDataWatcher(path, ch)
	}()
	return n.payload, ch, nil
}

func (s *Store) childrenLocked(path string) []string {
	siblings := s.children[path]
	out := make([]string, 0, len(siblings))
	for name := range siblings {
		out = append(out, name)
	}
	return out
}

func (s *Store) notifyChildrenLocked(path string) {
	snapshot := s.childrenLocked(path)
	for _, ch := range s.childWatchers[path] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *Store) notifyDataLocked(path string) {
	n := s.nodes[path]
	for _, ch := range s.dataWatchers[path] {
		select {
		case ch <- n.payload:
		default:
		}
	}
}

func (s *Store) removeChildWatcher(path string, target chan []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers := s.childWatchers[path]
	for i, ch := range watchers {
		if ch == target {
			s.childWatchers[path] = append(watchers[:i], watchers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Store) removeDataWatcher(path string, target chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers := s.dataWatchers[path]
	for i, ch := range watchers {
		if ch == target {
			s.dataWatchers[path] = append(watchers[:i], watchers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Remove deletes path, notifying children watchers on its parent. Used
// by tests to simulate session expiry (an ephemeral znode vanishing).
func (s *Store) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, path)
	parent := parentOf(path)
	if siblings, ok := s.children[parent]; ok {
		delete(siblings, nameOf(path))
		s.notifyChildrenLocked(parent)
	}
}

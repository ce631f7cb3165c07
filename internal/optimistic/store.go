// Package optimistic applies local changes before the server confirms them
// and converges the local view to server truth, reverting on failure.
package optimistic

import (
	"sync"
)

// EventType names what happened to an entity in the local view.
type EventType string

const (
	EventPut      EventType = "put"
	EventRemoved  EventType = "removed"
	EventReplaced EventType = "replaced"

	EventApplied   EventType = "applied"
	EventConfirmed EventType = "confirmed"
	EventReverted  EventType = "reverted"
	// EventDropped means a resolution found the entity gone and wrote nothing.
	EventDropped EventType = "dropped"
)

// Event is published to observers after every change to the view.
// Present is false when the entity is absent after the change.
type Event[K comparable, V any] struct {
	Type    EventType
	Key     K
	Value   V
	Present bool
}

// Observer receives events. Observers may read the store but must not write to it.
type Observer[K comparable, V any] func(Event[K, V])

// Store is the locally visible set of entities, kept in display order.
type Store[K comparable, V any] struct {
	keyOf func(V) K
	clone func(V) V

	pubMu sync.Mutex
	mu    sync.RWMutex
	items map[K]V
	order []K
	gen   map[K]uint64
	clock uint64

	obsMu     sync.Mutex
	observers map[int]Observer[K, V]
	nextObs   int
}

// NewStore creates an empty store. clone may be nil for value types without
// shared references.
func NewStore[K comparable, V any](keyOf func(V) K, clone func(V) V) *Store[K, V] {
	if clone == nil {
		clone = func(v V) V { return v }
	}
	return &Store[K, V]{
		keyOf:     keyOf,
		clone:     clone,
		items:     make(map[K]V),
		gen:       make(map[K]uint64),
		observers: make(map[int]Observer[K, V]),
	}
}

func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return v, false
	}
	return s.clone(v), true
}

// List returns the entities in display order.
func (s *Store[K, V]) List() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]V, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.clone(s.items[k]))
	}
	return out
}

func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Put inserts or replaces v. New entities go to the end.
func (s *Store[K, V]) Put(v V) {
	s.put(s.keyOf(v), v, false, EventPut)
}

// PutFront inserts or replaces v. New entities go to the front.
func (s *Store[K, V]) PutFront(v V) {
	s.put(s.keyOf(v), v, true, EventPut)
}

// Remove deletes key from the view.
func (s *Store[K, V]) Remove(key K) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	v, ok := s.removeLocked(key)
	s.mu.Unlock()
	if ok {
		s.publish(Event[K, V]{Type: EventRemoved, Key: key, Value: v})
	}
	return ok
}

// Replace swaps the whole view for vals, e.g. after a reload from the server.
func (s *Store[K, V]) Replace(vals []V) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	s.clock++
	for k := range s.items {
		s.gen[k] = s.clock
	}
	s.items = make(map[K]V, len(vals))
	s.order = s.order[:0]
	for _, v := range vals {
		k := s.keyOf(v)
		if _, dup := s.items[k]; !dup {
			s.order = append(s.order, k)
		}
		s.items[k] = s.clone(v)
		s.gen[k] = s.clock
	}
	s.mu.Unlock()

	var zero V
	s.publish(Event[K, V]{Type: EventReplaced, Value: zero})
}

// Subscribe registers an observer and returns its cancel func.
func (s *Store[K, V]) Subscribe(fn Observer[K, V]) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store[K, V]) put(key K, v V, front bool, typ EventType) uint64 {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	g := s.putLocked(key, v, front)
	s.mu.Unlock()

	s.publish(Event[K, V]{Type: typ, Key: key, Value: s.clone(v), Present: true})
	return g
}

// lookup returns a private copy of the entity and its generation.
func (s *Store[K, V]) lookup(key K) (V, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return v, s.gen[key], false
	}
	return s.clone(v), s.gen[key], true
}

// putIfPresent writes v only if key still exists.
func (s *Store[K, V]) putIfPresent(key K, v V, typ EventType) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if _, ok := s.items[key]; !ok {
		s.mu.Unlock()
		return false
	}
	s.putLocked(key, v, false)
	s.mu.Unlock()

	s.publish(Event[K, V]{Type: typ, Key: key, Value: s.clone(v), Present: true})
	return true
}

// restoreIfUntouched re-inserts v at its old position only if nothing wrote
// key since generation g.
func (s *Store[K, V]) restoreIfUntouched(key K, v V, index int, g uint64, typ EventType) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if _, ok := s.items[key]; ok || s.gen[key] != g {
		s.mu.Unlock()
		return false
	}
	s.clock++
	s.items[key] = s.clone(v)
	s.gen[key] = s.clock
	if index < 0 || index > len(s.order) {
		index = len(s.order)
	}
	s.order = append(s.order, key)
	copy(s.order[index+1:], s.order[index:])
	s.order[index] = key
	s.mu.Unlock()

	s.publish(Event[K, V]{Type: typ, Key: key, Value: s.clone(v), Present: true})
	return true
}

// removeTracked removes key and returns its former position and the new generation.
func (s *Store[K, V]) removeTracked(key K, typ EventType) (int, uint64, bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	index := s.indexLocked(key)
	v, ok := s.removeLocked(key)
	g := s.gen[key]
	s.mu.Unlock()

	if ok {
		s.publish(Event[K, V]{Type: typ, Key: key, Value: v})
	}
	return index, g, ok
}

func (s *Store[K, V]) putLocked(key K, v V, front bool) uint64 {
	s.clock++
	if _, exists := s.items[key]; !exists {
		if front {
			s.order = append([]K{key}, s.order...)
		} else {
			s.order = append(s.order, key)
		}
	}
	s.items[key] = s.clone(v)
	s.gen[key] = s.clock
	return s.clock
}

func (s *Store[K, V]) removeLocked(key K) (V, bool) {
	v, ok := s.items[key]
	if !ok {
		return v, false
	}
	s.clock++
	delete(s.items, key)
	s.gen[key] = s.clock
	if i := s.indexLocked(key); i >= 0 {
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
	return v, true
}

func (s *Store[K, V]) indexLocked(key K) int {
	for i, k := range s.order {
		if k == key {
			return i
		}
	}
	return -1
}

func (s *Store[K, V]) publish(ev Event[K, V]) {
	s.obsMu.Lock()
	fns := make([]Observer[K, V], 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store[K, V]) dropped(key K) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publish(Event[K, V]{Type: EventDropped, Key: key})
}

package optimistic

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"tasklist/internal/apierr"
)

// MutateFunc derives the optimistic value from the current one. It receives
// a private copy and may modify it.
type MutateFunc[V any] func(current V) V

// CommitFunc sends the applied value to the server and returns the
// server-confirmed value.
type CommitFunc[V any] func(ctx context.Context, applied V) (V, error)

// RemoveFunc asks the server to delete the entity.
type RemoveFunc[V any] func(ctx context.Context, previous V) error

// Coordinator runs optimistic mutations against a Store with at most one
// in-flight commit per entity. Later mutations of the same entity wait for
// the earlier one to resolve, then start from its outcome.
type Coordinator[K comparable, V any] struct {
	store  *Store[K, V]
	logger logrus.FieldLogger

	mu    sync.Mutex
	slots map[K]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewCoordinator[K comparable, V any](store *Store[K, V], logger logrus.FieldLogger) *Coordinator[K, V] {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator[K, V]{
		store:  store,
		logger: logger.WithField("component", "optimistic"),
		slots:  make(map[K]*slot),
	}
}

func (c *Coordinator[K, V]) Store() *Store[K, V] {
	return c.store
}

// Pending reports how many mutations of key are in flight or queued.
func (c *Coordinator[K, V]) Pending(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[key]; ok {
		return s.refs
	}
	return 0
}

// Apply publishes mutate's result immediately, commits it, then either
// replaces it with the confirmed value or restores the previous snapshot.
// If the entity disappeared from the view meanwhile, nothing is written back.
func (c *Coordinator[K, V]) Apply(ctx context.Context, key K, mutate MutateFunc[V], commit CommitFunc[V]) (V, error) {
	var zero V

	release, err := c.acquire(ctx, key)
	if err != nil {
		return zero, apierr.FromError(err)
	}
	defer release()

	previous, _, ok := c.store.lookup(key)
	if !ok {
		return zero, apierr.New(apierr.KindNotFound, fmt.Sprintf("%v is not in the local view", key))
	}

	applied := mutate(c.store.clone(previous))
	c.store.put(key, applied, false, EventApplied)

	logger := c.logger.WithField("key", key)
	confirmed, err := commit(ctx, c.store.clone(applied))
	if err != nil {
		ce := apierr.As(err)
		if c.store.putIfPresent(key, previous, EventReverted) {
			logger.WithField("kind", ce.Kind).Debug("mutation reverted")
		} else {
			logger.Debug("entity gone before revert, skipping")
			c.store.dropped(key)
		}
		return zero, ce
	}

	if !c.store.putIfPresent(key, confirmed, EventConfirmed) {
		logger.Debug("entity gone before confirmation, skipping")
		c.store.dropped(key)
	}
	return c.store.clone(confirmed), nil
}

// Remove deletes the entity from the view immediately and asks the server to
// delete it. On failure the entity is restored at its old position unless
// something else has written the key since.
func (c *Coordinator[K, V]) Remove(ctx context.Context, key K, remove RemoveFunc[V]) error {
	release, err := c.acquire(ctx, key)
	if err != nil {
		return apierr.FromError(err)
	}
	defer release()

	previous, _, ok := c.store.lookup(key)
	if !ok {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("%v is not in the local view", key))
	}

	index, g, _ := c.store.removeTracked(key, EventApplied)
	if err := remove(ctx, c.store.clone(previous)); err != nil {
		ce := apierr.As(err)
		if !c.store.restoreIfUntouched(key, previous, index, g, EventReverted) {
			c.store.dropped(key)
		}
		return ce
	}

	c.store.pubMu.Lock()
	c.store.publish(Event[K, V]{Type: EventConfirmed, Key: key})
	c.store.pubMu.Unlock()
	return nil
}

func (c *Coordinator[K, V]) acquire(ctx context.Context, key K) (func(), error) {
	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		c.slots[key] = s
	}
	s.refs++
	c.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		c.unref(key, s)
		return nil, err
	}
	return func() {
		s.sem.Release(1)
		c.unref(key, s)
	}, nil
}

func (c *Coordinator[K, V]) unref(key K, s *slot) {
	c.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(c.slots, key)
	}
	c.mu.Unlock()
}

package optimistic

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasklist/internal/apierr"
)

type item struct {
	ID    int
	Name  string
	Done  bool
	Stamp int
}

func newTestCoordinator(t *testing.T, items ...item) (*Coordinator[int, item], *eventLog) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := NewStore[int, item](func(it item) int { return it.ID }, nil)
	store.Replace(items)
	log := &eventLog{}
	store.Subscribe(log.record)
	return NewCoordinator(store, logger), log
}

type eventLog struct {
	mu     sync.Mutex
	events []Event[int, item]
}

func (l *eventLog) record(ev Event[int, item]) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) last() Event[int, item] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func rename(name string) MutateFunc[item] {
	return func(it item) item {
		it.Name = name
		return it
	}
}

func TestApply_SuccessUsesServerValue(t *testing.T) {
	coord, log := newTestCoordinator(t, item{ID: 1, Name: "old", Stamp: 1})

	var sawApplied item
	got, err := coord.Apply(context.Background(), 1, rename("new"), func(ctx context.Context, applied item) (item, error) {
		sawApplied, _ = coord.Store().Get(1)
		applied.Stamp = 2
		return applied, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "new", sawApplied.Name, "optimistic value visible before commit resolves")
	assert.Equal(t, 1, sawApplied.Stamp)
	assert.Equal(t, item{ID: 1, Name: "new", Stamp: 2}, got)

	current, ok := coord.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, item{ID: 1, Name: "new", Stamp: 2}, current, "server timestamp wins over optimistic value")
	assert.Equal(t, []EventType{EventApplied, EventConfirmed}, log.types())
}

func TestApply_FailureRestoresExactSnapshot(t *testing.T) {
	original := item{ID: 1, Name: "old", Done: false, Stamp: 7}
	coord, log := newTestCoordinator(t, original)

	_, err := coord.Apply(context.Background(), 1,
		func(it item) item {
			it.Name = "new"
			it.Done = true
			it.Stamp = 99
			return it
		},
		func(ctx context.Context, applied item) (item, error) {
			return item{}, apierr.FromResponse(500, nil)
		})
	require.Error(t, err)
	assert.Equal(t, apierr.KindServerError, apierr.KindOf(err))

	current, ok := coord.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, original, current)
	assert.Equal(t, []EventType{EventApplied, EventReverted}, log.types())
	assert.Equal(t, original, log.last().Value)
}

func TestApply_UnclassifiedErrorIsClassified(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1})

	_, err := coord.Apply(context.Background(), 1, rename("x"), func(context.Context, item) (item, error) {
		return item{}, errors.New("boom")
	})
	var ce *apierr.ClassifiedError
	assert.ErrorAs(t, err, &ce)
}

func TestApply_MissingEntity(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	_, err := coord.Apply(context.Background(), 42, rename("x"), func(context.Context, item) (item, error) {
		t.Fatal("commit must not run")
		return item{}, nil
	})
	assert.True(t, apierr.IsKind(err, apierr.KindNotFound))
}

func TestApply_DeletedDuringCommitIsNotResurrected(t *testing.T) {
	coord, log := newTestCoordinator(t, item{ID: 1, Name: "old"})

	_, err := coord.Apply(context.Background(), 1, rename("new"), func(ctx context.Context, applied item) (item, error) {
		coord.Store().Remove(1)
		return item{}, apierr.FromResponse(503, nil)
	})
	require.Error(t, err)

	_, ok := coord.Store().Get(1)
	assert.False(t, ok, "revert must not resurrect a deleted entity")
	assert.Equal(t, []EventType{EventApplied, EventRemoved, EventDropped}, log.types())
}

func TestApply_DeletedBeforeConfirmationStaysDeleted(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1, Name: "old"})

	got, err := coord.Apply(context.Background(), 1, rename("new"), func(ctx context.Context, applied item) (item, error) {
		coord.Store().Remove(1)
		return applied, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, 0, coord.Store().Len())
}

func TestApply_QueuesSecondMutationOnSameEntity(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1, Done: false, Stamp: 0})
	toggle := func(it item) item {
		it.Done = !it.Done
		return it
	}

	var (
		serverMu sync.Mutex
		server   = item{ID: 1}
	)
	commit := func(ctx context.Context, applied item) (item, error) {
		serverMu.Lock()
		defer serverMu.Unlock()
		server.Done = applied.Done
		server.Stamp++
		return server, nil
	}

	firstInFlight := make(chan struct{})
	releaseFirst := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		_, err := coord.Apply(context.Background(), 1, toggle, func(ctx context.Context, applied item) (item, error) {
			close(firstInFlight)
			<-releaseFirst
			return commit(ctx, applied)
		})
		firstDone <- err
	}()
	<-firstInFlight

	secondDone := make(chan error, 1)
	go func() {
		_, err := coord.Apply(context.Background(), 1, toggle, commit)
		secondDone <- err
	}()

	require.Eventually(t, func() bool { return coord.Pending(1) == 2 }, time.Second, time.Millisecond)
	select {
	case <-secondDone:
		t.Fatal("second mutation must wait for the first")
	default:
	}

	close(releaseFirst)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	final, ok := coord.Store().Get(1)
	require.True(t, ok)
	assert.False(t, final.Done, "second toggle applies to the first's confirmed state")
	assert.Equal(t, 2, final.Stamp)
	assert.Equal(t, 0, coord.Pending(1))
}

func TestApply_DifferentEntitiesRunConcurrently(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1}, item{ID: 2})

	bothInFlight := make(chan struct{})
	var wg sync.WaitGroup
	var arrived sync.WaitGroup
	arrived.Add(2)
	go func() {
		arrived.Wait()
		close(bothInFlight)
	}()

	for _, id := range []int{1, 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Apply(context.Background(), id, rename("x"), func(ctx context.Context, applied item) (item, error) {
				arrived.Done()
				<-bothInFlight
				return applied, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestApply_CanceledWhileQueued(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1})

	inFlight := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = coord.Apply(context.Background(), 1, rename("a"), func(ctx context.Context, applied item) (item, error) {
			close(inFlight)
			<-release
			return applied, nil
		})
	}()
	<-inFlight

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coord.Apply(ctx, 1, rename("b"), func(context.Context, item) (item, error) {
		t.Fatal("commit must not run")
		return item{}, nil
	})
	assert.True(t, apierr.IsKind(err, apierr.KindTimeout))
	close(release)
}

func TestRemove_Success(t *testing.T) {
	coord, log := newTestCoordinator(t, item{ID: 1}, item{ID: 2})

	err := coord.Remove(context.Background(), 1, func(ctx context.Context, previous item) error {
		_, ok := coord.Store().Get(1)
		assert.False(t, ok, "removed before the server answers")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: 2}}, coord.Store().List())
	assert.Equal(t, []EventType{EventApplied, EventConfirmed}, log.types())
}

func TestRemove_FailureRestoresPosition(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1}, item{ID: 2, Name: "middle"}, item{ID: 3})

	err := coord.Remove(context.Background(), 2, func(context.Context, item) error {
		return apierr.FromResponse(403, nil)
	})
	assert.True(t, apierr.IsKind(err, apierr.KindAuthorization))
	assert.Equal(t, []item{{ID: 1}, {ID: 2, Name: "middle"}, {ID: 3}}, coord.Store().List())
}

func TestRemove_FailureAfterReloadDoesNotResurrect(t *testing.T) {
	coord, _ := newTestCoordinator(t, item{ID: 1}, item{ID: 2})

	err := coord.Remove(context.Background(), 2, func(context.Context, item) error {
		coord.Store().Replace([]item{{ID: 1}})
		return apierr.FromResponse(500, nil)
	})
	require.Error(t, err)
	assert.Equal(t, []item{{ID: 1}}, coord.Store().List())
}

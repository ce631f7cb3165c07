package optimistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type boxed struct {
	ID   string
	Tags []string
}

func cloneBoxed(b boxed) boxed {
	b.Tags = append([]string(nil), b.Tags...)
	return b
}

func TestStore_OrderAndReplace(t *testing.T) {
	s := NewStore[string, boxed](func(b boxed) string { return b.ID }, cloneBoxed)

	s.Put(boxed{ID: "b"})
	s.PutFront(boxed{ID: "a"})
	s.Put(boxed{ID: "c"})
	s.Put(boxed{ID: "a", Tags: []string{"updated"}})

	ids := func() []string {
		var out []string
		for _, b := range s.List() {
			out = append(out, b.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids())

	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, ids())

	s.Replace([]boxed{{ID: "z"}, {ID: "y"}, {ID: "z"}})
	assert.Equal(t, []string{"z", "y"}, ids())
	assert.Equal(t, 2, s.Len())
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := NewStore[string, boxed](func(b boxed) string { return b.ID }, cloneBoxed)
	s.Put(boxed{ID: "a", Tags: []string{"one"}})

	got, ok := s.Get("a")
	assert.True(t, ok)
	got.Tags[0] = "mutated"

	again, _ := s.Get("a")
	assert.Equal(t, "one", again.Tags[0])
}

func TestStore_SubscribeAndCancel(t *testing.T) {
	s := NewStore[string, boxed](func(b boxed) string { return b.ID }, nil)

	var seen []EventType
	cancel := s.Subscribe(func(ev Event[string, boxed]) {
		seen = append(seen, ev.Type)
		// observers may read
		_ = s.List()
	})
	s.Put(boxed{ID: "a"})
	s.Remove("a")
	s.Replace(nil)
	cancel()
	s.Put(boxed{ID: "b"})

	assert.Equal(t, []EventType{EventPut, EventRemoved, EventReplaced}, seen)
}

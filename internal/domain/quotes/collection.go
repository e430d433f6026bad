package quotes

import (
	"sync"
	"sync/atomic"

	"github.com/okian/pinnacle/internal/domain/model"
)

// Collection owns every quote for the process lifetime. Membership is
// guarded by one RWMutex; each quote has its own mutex serialising its
// revisions and an atomic pointer for lock-free reads of its latest state.
type Collection struct {
	mu    sync.RWMutex
	slots map[string]*slot
	order []string
}

type slot struct {
	mu    sync.Mutex
	quote atomic.Pointer[model.Quote]
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{slots: make(map[string]*slot)}
}

// add commits a new quote. It reports false if the id is taken.
func (c *Collection) add(q model.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.slots[q.ID]; exists {
		return false
	}
	s := &slot{}
	s.quote.Store(&q)
	c.slots[q.ID] = s
	c.order = append(c.order, q.ID)
	return true
}

func (c *Collection) lookup(id string) (*slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[id]
	return s, ok
}

// Get returns a copy of the latest state of quote id.
func (c *Collection) Get(id string) (model.Quote, bool) {
	s, ok := c.lookup(id)
	if !ok {
		return model.Quote{}, false
	}
	return s.quote.Load().Clone(), true
}

// Snapshot returns copies of all quotes in creation order.
func (c *Collection) Snapshot() []model.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Quote, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.slots[id].quote.Load().Clone())
	}
	return out
}

// Len returns the number of quotes.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

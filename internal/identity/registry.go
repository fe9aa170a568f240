package identity

import (
	"sync"

	"github.com/user/vernacular/internal/types"
)

// Registry holds the current identity and its listeners. Listeners run
// outside the registry lock, so they may subscribe, unsubscribe or read
// Current. Every change carries a sequence number and a listener never
// sees an older change after a newer one, so its last observed identity
// always matches Current once publishing settles.
type Registry struct {
	mu        sync.Mutex
	current   *types.Identity
	seq       uint64
	listeners map[uint64]*subscriber
	order     []uint64
	nextID    uint64
}

type subscriber struct {
	fn Listener

	mu   sync.Mutex
	seen uint64
}

// deliver calls fn unless a newer change already reached it.
func (s *subscriber) deliver(seq uint64, id *types.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.seen {
		return
	}
	s.seen = seq
	s.fn(id)
}

func NewRegistry() *Registry {
	return &Registry{listeners: make(map[uint64]*subscriber)}
}

// Subscribe adds fn and immediately calls it with the current identity.
func (r *Registry) Subscribe(fn Listener) func() {
	sub := &subscriber{fn: fn}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners[id] = sub
	r.order = append(r.order, id)
	current, seq := r.current, r.seq
	r.mu.Unlock()

	sub.deliver(seq, current)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Publish sets the current identity and notifies listeners in subscription
// order. Listeners removed during delivery are skipped.
func (r *Registry) Publish(id *types.Identity) {
	r.mu.Lock()
	r.current = id
	r.seq++
	seq := r.seq
	ids := make([]uint64, len(r.order))
	copy(ids, r.order)
	r.mu.Unlock()

	for _, lid := range ids {
		r.mu.Lock()
		sub, ok := r.listeners[lid]
		r.mu.Unlock()
		if ok {
			sub.deliver(seq, id)
		}
	}
}

func (r *Registry) Current() *types.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

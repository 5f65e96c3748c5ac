// Package registry caches live room state in memory so the broadcast
// path never waits on the store. The store remains the durable owner;
// an entry here is dropped when its room has been idle past the grace
// period and rebuilt from the store on the next access.
package registry

import (
	"sync"
	"time"

	"github.com/pairpad/pairpad/internal/logging"
	"github.com/pairpad/pairpad/internal/store"
)

// Loader is the slice of the store the registry hydrates from.
type Loader interface {
	Load(id string) (*store.Room, error)
}

// ConnCounter reports the number of live connections in a room. Set
// after construction because the hub is built on top of the registry.
type ConnCounter interface {
	ConnCount(roomID string) int
}

type Registry struct {
	loader Loader
	grace  time.Duration

	mu      sync.RWMutex
	rooms   map[string]*entry
	counter ConnCounter
}

// entry state is guarded by its own mutex so rooms never share a lock.
type entry struct {
	mu    sync.Mutex
	room  store.Room
	evict *time.Timer
}

func New(loader Loader, grace time.Duration) *Registry {
	return &Registry{
		loader: loader,
		grace:  grace,
		rooms:  make(map[string]*entry),
	}
}

// SetConnCounter wires in the connection manager's live counts.
func (r *Registry) SetConnCounter(c ConnCounter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter = c
}

// Get returns the current room state, hydrating from the store on a
// cache miss. Returns store.ErrNotFound for unknown rooms.
func (r *Registry) Get(roomID string) (store.Room, error) {
	e, err := r.getEntry(roomID)
	if err != nil {
		return store.Room{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelEvict()
	return e.room, nil
}

// ApplyEdit replaces the cached code with the new value (last write
// wins), bumps UpdatedAt, and returns the timestamp that ordered the
// edit. Code content is opaque and never validated.
func (r *Registry) ApplyEdit(roomID, code string) (time.Time, error) {
	e, err := r.getEntry(roomID)
	if err != nil {
		return time.Time{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelEvict()

	now := time.Now().UTC()
	e.room.Code = code
	e.room.UpdatedAt = now
	return now, nil
}

// ScheduleEvict arms the grace-period timer for a room the connection
// manager reports as empty. A rejoin inside the window cancels it; when
// the timer fires the live count is re-checked before the cache entry
// is dropped. The store record is untouched either way.
func (r *Registry) ScheduleEvict(roomID string) {
	r.mu.RLock()
	e, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelEvict()
	e.evict = time.AfterFunc(r.grace, func() {
		r.evictIfIdle(roomID)
	})
}

func (r *Registry) evictIfIdle(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counter != nil && r.counter.ConnCount(roomID) > 0 {
		return
	}
	if _, ok := r.rooms[roomID]; ok {
		delete(r.rooms, roomID)
		logging.Debug().Str("room", roomID).Msg("evicted idle room from registry")
	}
}

// Drop removes a room from the cache immediately (room deletion path).
func (r *Registry) Drop(roomID string) {
	r.mu.Lock()
	e, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.cancelEvict()
		e.mu.Unlock()
	}
}

// Len returns the number of cached rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) getEntry(roomID string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	room, err := r.loader.Load(roomID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if e, ok = r.rooms[roomID]; ok {
		return e, nil
	}
	e = &entry{room: *room}
	r.rooms[roomID] = e
	return e, nil
}

// cancelEvict must be called with the entry lock held.
func (e *entry) cancelEvict() {
	if e.evict != nil {
		e.evict.Stop()
		e.evict = nil
	}
}

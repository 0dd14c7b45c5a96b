// Package postlock serializes operations on a single scheduled post.
//
// An edit or delete command can arrive while the scheduler is publishing the
// same post. The repository's unposted-only filters alone cannot order the
// two: a delete that lands between due-selection and the posted-flag flip
// would report success while the post still goes out. Holding the post's
// mutex across publish-and-mark on one side and across each mutation on the
// other makes the outcome unambiguous: whichever path runs second sees the
// other's result.
package postlock

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Registry hands out one mutex per post id. Entries exist only while held or
// waited on.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// Do runs fn while holding the mutex for the given post id.
func (r *Registry) Do(id primitive.ObjectID, fn func() error) error {
	key := id.Hex()
	e := r.acquire(key)
	defer r.release(key)

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

func (r *Registry) acquire(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.locks[key]
	if !ok {
		e = &entry{}
		r.locks[key] = e
	}
	e.refs++
	return e
}

func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(r.locks, key)
	}
}

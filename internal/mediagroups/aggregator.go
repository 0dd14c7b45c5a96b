// Package mediagroups serializes the assembly of media-group bursts.
//
// Telegram delivers each item of an album as a separate message sharing a
// MediaGroupID, and the bot handles updates concurrently. Whether a fragment
// is the first of its burst is decided against storage (the unposted post
// carrying the group id), not an in-memory cache, so the answer survives a
// restart mid-burst. The per-key lock makes check-then-create-or-append
// atomic: exactly one creator per group id, no lost appends.
package mediagroups

import (
	"context"
	"errors"
	"sync"
	"tmps-bot/internal/database"
	"tmps-bot/internal/database/models"
)

// MaxGroupSize limits the number of attachments per post. Telegram rejects
// media groups larger than 10, so the cap is enforced here at ingestion
// instead of leaving an unsendable post in the schedule.
const MaxGroupSize = 10

// ErrGroupNotFound is returned when a continuation fragment arrives and no
// unposted post carries its media group id.
var ErrGroupNotFound = errors.New("no pending post for media group")

// ErrGroupFull is returned by Attach when the post already holds MaxGroupSize items.
var ErrGroupFull = errors.New("media group already holds the maximum number of items")

type groupLock struct {
	mu   sync.Mutex
	refs int
}

// Aggregator correlates fragments of one media-group burst into a single post.
type Aggregator struct {
	posts database.PostRepository

	mu    sync.Mutex
	locks map[string]*groupLock
}

// New creates an aggregator backed by the given post repository.
func New(posts database.PostRepository) *Aggregator {
	return &Aggregator{
		posts: posts,
		locks: make(map[string]*groupLock),
	}
}

// WithGroup runs fn while holding the mutex for the given group id. fn
// receives whether the key currently has no unposted post, i.e. whether the
// caller is handling the first fragment of the burst. The existence check and
// everything fn does happen under the same lock.
func (a *Aggregator) WithGroup(ctx context.Context, groupID string, fn func(first bool) error) error {
	l := a.acquire(groupID)
	defer a.release(groupID)

	l.mu.Lock()
	defer l.mu.Unlock()

	exists, err := a.posts.ExistsPendingByMediaGroupID(ctx, groupID)
	if err != nil {
		return err
	}
	return fn(!exists)
}

// FindPending returns the unposted post aggregating the given group id,
// mapping the repository's not-found to ErrGroupNotFound.
func (a *Aggregator) FindPending(ctx context.Context, groupID string) (*models.Post, error) {
	post, err := a.posts.FindPendingByMediaGroupID(ctx, groupID)
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return post, nil
}

// Attach appends m to the post's media sequence, assigning it the next
// ordinal. The post document owns its media, so no back-reference is needed.
func Attach(post *models.Post, m models.Media) error {
	if len(post.Media) >= MaxGroupSize {
		return ErrGroupFull
	}
	m.Index = len(post.Media)
	post.Media = append(post.Media, m)
	return nil
}

func (a *Aggregator) acquire(groupID string) *groupLock {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[groupID]
	if !ok {
		l = &groupLock{}
		a.locks[groupID] = l
	}
	l.refs++
	return l
}

// release drops one reference and deletes the lock entry once nobody holds
// it, so the map does not grow with every burst ever seen.
func (a *Aggregator) release(groupID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[groupID]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(a.locks, groupID)
	}
}

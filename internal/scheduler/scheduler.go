// Package scheduler periodically sweeps the pending queue and publishes posts
// whose delivery time has passed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"
	"tmps-bot/internal/database"
	"tmps-bot/internal/database/models"
	"tmps-bot/internal/postlock"

	"github.com/benbjohnson/clock"
	"github.com/getsentry/sentry-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// minLookback keeps a sweep from missing posts that came due while the
// process was briefly down or a tick was skipped.
const minLookback = time.Minute

// Sender publishes a single post to the given channel.
type Sender interface {
	Send(ctx context.Context, chatID int64, post *models.Post) error
}

// Scheduler runs the periodic due-post sweep. Sweeps never overlap: a tick
// arriving while the previous sweep is still running is dropped.
type Scheduler struct {
	posts    database.PostRepository
	users    database.UserRepository
	sender   Sender
	locks    *postlock.Registry
	period   time.Duration
	lookback time.Duration
	clock    clock.Clock
	sweeping atomic.Bool
}

// New creates a Scheduler sweeping every period. The lookback window is the
// period itself, but never shorter than one minute. locks must be the same
// registry the command handlers mutate posts under.
func New(posts database.PostRepository, users database.UserRepository, sender Sender, locks *postlock.Registry, period time.Duration, clk clock.Clock) *Scheduler {
	lookback := period
	if lookback < minLookback {
		lookback = minLookback
	}
	return &Scheduler{
		posts:    posts,
		users:    users,
		sender:   sender,
		locks:    locks,
		period:   period,
		lookback: lookback,
		clock:    clk,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[Scheduler] Starting, sweeping every %s (lookback %s)", s.period, s.lookback)
	ticker := s.clock.Ticker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] Stopping")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep publishes every pending post due within the lookback window ending
// now. Failures of one post are reported and do not block the rest.
func (s *Scheduler) Sweep(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		log.Println("[Scheduler] Previous sweep still running, skipping tick")
		return
	}
	defer s.sweeping.Store(false)

	now := s.clock.Now().UTC()
	due, err := s.posts.FindDue(ctx, now.Add(-s.lookback), now)
	if err != nil {
		log.Printf("[Scheduler] Failed to query due posts: %v", err)
		sentry.CaptureException(fmt.Errorf("scheduler: query due posts: %w", err))
		return
	}
	if len(due) == 0 {
		return
	}

	log.Printf("[Scheduler] %d post(s) due", len(due))
	for i := range due {
		if err := s.dispatchOne(ctx, due[i].ID); err != nil {
			log.Printf("[Scheduler Post:%s] Dispatch failed: %v", due[i].ID.Hex(), err)
			sentry.CaptureException(err)
		}
	}
}

// dispatchOne publishes a single due post. The whole reload-send-mark
// sequence holds the post's lock, so an edit or delete command either runs
// before the reload or sees the post already marked.
func (s *Scheduler) dispatchOne(ctx context.Context, id primitive.ObjectID) error {
	return s.locks.Do(id, func() error {
		post, err := s.posts.FindPendingByID(ctx, id)
		if errors.Is(err, database.ErrPostNotFound) {
			// Deleted or published since FindDue selected it.
			log.Printf("[Scheduler Post:%s] No longer pending, skipping", id.Hex())
			return nil
		}
		if err != nil {
			return fmt.Errorf("scheduler: reload post %s: %w", id.Hex(), err)
		}

		user, err := s.users.GetByTelegramID(ctx, post.UserID)
		if err != nil {
			return fmt.Errorf("scheduler: resolve owner of post %s: %w", post.ID.Hex(), err)
		}
		if !user.HasChannel() {
			return fmt.Errorf("scheduler: post %s owner %d has no channel configured", post.ID.Hex(), post.UserID)
		}

		if err := s.sender.Send(ctx, user.ChannelID, post); err != nil {
			return fmt.Errorf("scheduler: send post %s: %w", post.ID.Hex(), err)
		}

		// Marking after sending means a crash in between republishes the post.
		marked, err := s.posts.MarkPosted(ctx, post.ID)
		if err != nil {
			return fmt.Errorf("scheduler: mark post %s as published: %w", post.ID.Hex(), err)
		}
		if !marked {
			log.Printf("[Scheduler Post:%s] Already marked as published", post.ID.Hex())
		}
		return nil
	})
}

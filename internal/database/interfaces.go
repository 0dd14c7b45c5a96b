package database

import (
	"context"
	"time"
	"tmps-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// GetByTelegramID returns the user with the given Telegram user id,
	// or ErrUserNotFound.
	GetByTelegramID(ctx context.Context, telegramUserID int64) (*models.User, error)
	// Exists reports whether a user with the given Telegram user id is registered.
	Exists(ctx context.Context, telegramUserID int64) (bool, error)
	// Create inserts a new user record.
	Create(ctx context.Context, user *models.User) error
	// SetChannelID updates the user's destination channel.
	SetChannelID(ctx context.Context, telegramUserID, channelID int64) error
	// SetTimezone updates the user's IANA time zone identifier.
	SetTimezone(ctx context.Context, telegramUserID int64, zone string) error
	// RecordActivity updates the user's last-seen timestamp and last action.
	RecordActivity(ctx context.Context, telegramUserID int64, username, action string) error
}

// PostRepository defines the interface for scheduled post storage.
//
// Every mutating operation except MarkPosted is guarded on is_posted=false.
// Callers additionally serialize edit/delete against an in-flight dispatch of
// the same post through postlock.Registry; under that lock the filter makes a
// mutation of an already-sent post resolve to ErrPostNotFound instead of
// silently succeeding.
type PostRepository interface {
	// Create inserts a new post with its embedded media.
	Create(ctx context.Context, post *models.Post) error
	// AppendMedia pushes one media item onto an unposted post.
	AppendMedia(ctx context.Context, id primitive.ObjectID, m models.Media) error
	// UpdateText replaces the text of an unposted post.
	UpdateText(ctx context.Context, id primitive.ObjectID, text string) error
	// UpdateSchedule replaces both text and delivery instant of an unposted post.
	UpdateSchedule(ctx context.Context, id primitive.ObjectID, text string, postAt time.Time) error
	// UpdateDate replaces the delivery instant of an unposted post.
	UpdateDate(ctx context.Context, id primitive.ObjectID, postAt time.Time) error
	// Delete removes an unposted post and, with it, its embedded media.
	Delete(ctx context.Context, id primitive.ObjectID) error
	// FindPendingByID returns the unposted post with the given id, or
	// ErrPostNotFound.
	FindPendingByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	// FindPendingByMediaGroupID returns the unposted post aggregating the
	// given media group, or ErrPostNotFound.
	FindPendingByMediaGroupID(ctx context.Context, mediaGroupID string) (*models.Post, error)
	// ExistsPendingByMediaGroupID reports whether an unposted post carries
	// the given media group id.
	ExistsPendingByMediaGroupID(ctx context.Context, mediaGroupID string) (bool, error)
	// FindPendingByMessageID returns the unposted post created from the given
	// Telegram message, restricted to the given owner, or ErrPostNotFound.
	FindPendingByMessageID(ctx context.Context, telegramUserID int64, messageID int) (*models.Post, error)
	// CountPending returns the number of unposted posts owned by the user.
	CountPending(ctx context.Context, telegramUserID int64) (int64, error)
	// FindDue returns unposted posts with a delivery instant in (from, to].
	FindDue(ctx context.Context, from, to time.Time) ([]models.Post, error)
	// MarkPosted flips is_posted on the given post. It reports whether the
	// flag actually flipped; false means the post was already posted or gone.
	MarkPosted(ctx context.Context, id primitive.ObjectID) (bool, error)
}

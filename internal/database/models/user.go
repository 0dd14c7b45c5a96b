package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a registered Telegram user who schedules posts.
// ChannelID and TimeZone stay at their zero values until the user
// configures them; a post cannot be scheduled before both are set.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	TelegramUserID int64              `bson:"telegram_user_id"`
	Username       string             `bson:"username,omitempty"`
	ChannelID      int64              `bson:"channel_id,omitempty"`
	TimeZone       string             `bson:"time_zone,omitempty"`
	FirstSeen      time.Time          `bson:"first_seen"`
	LastSeen       time.Time          `bson:"last_seen"`
	LastAction     string             `bson:"last_action,omitempty"`
}

// HasChannel reports whether the destination channel is configured.
func (u *User) HasChannel() bool {
	return u.ChannelID != 0
}

// HasTimezone reports whether the time zone is configured.
func (u *User) HasTimezone() bool {
	return u.TimeZone != ""
}

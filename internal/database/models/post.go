package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Media is one attachment of a post. FileID is the Telegram file id the
// outbound sender re-attaches; the original asset is never re-uploaded.
// Index is the ordinal position within the owning post.
type Media struct {
	Type   string `bson:"type"`
	FileID string `bson:"file_id,omitempty"`
	Index  int    `bson:"index"`
}

// Post is one scheduled content item. Media is embedded in the post
// document, so attachments share the post's lifetime and keep insertion
// order. MediaGroupID is set only for posts assembled from a media-group
// burst and is what continuation fragments are matched against while the
// post is still unposted.
type Post struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       int64              `bson:"user_id"`
	MediaGroupID string             `bson:"media_group_id,omitempty"`
	Text         string             `bson:"text,omitempty"`
	Media        []Media            `bson:"media"`
	MessageID    int                `bson:"message_id"`
	PostAt       time.Time          `bson:"post_at"`
	Posted       bool               `bson:"is_posted"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (p *Post) HasText() bool {
	return p.Text != ""
}

func (p *Post) HasMedia() bool {
	return len(p.Media) > 0
}

func (p *Post) HasMediaGroup() bool {
	return p.MediaGroupID != ""
}

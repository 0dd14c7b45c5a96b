// Package media classifies message attachments into a closed kind set.
package media

import "github.com/mymmrac/telego"

// Kind is the attachment kind of a message. The set is closed; anything the
// bot cannot repost resolves to KindNone.
type Kind string

const (
	KindImage     Kind = "IMAGE"
	KindVideo     Kind = "VIDEO"
	KindAudio     Kind = "AUDIO"
	KindDocument  Kind = "DOCUMENT"
	KindAnimation Kind = "ANIMATION"
	KindNone      Kind = "NONE"
)

// Classify returns the attachment kind of msg and the Telegram file id needed
// to re-send it. When a message could nominally match several kinds the
// precedence is fixed: video > photo > audio > voice (as audio) > document >
// animation. A message without any supported attachment yields KindNone and
// an empty file id; Classify never fails.
func Classify(msg telego.Message) (Kind, string) {
	switch {
	case msg.Video != nil:
		return KindVideo, msg.Video.FileID
	case len(msg.Photo) > 0:
		// Telegram sends several sizes of the same photo; the last is the original.
		return KindImage, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Audio != nil:
		return KindAudio, msg.Audio.FileID
	case msg.Voice != nil:
		return KindAudio, msg.Voice.FileID
	case msg.Document != nil:
		return KindDocument, msg.Document.FileID
	case msg.Animation != nil:
		return KindAnimation, msg.Animation.FileID
	default:
		return KindNone, ""
	}
}

// HasAttachment reports whether msg carries any supported attachment.
func HasAttachment(msg telego.Message) bool {
	kind, _ := Classify(msg)
	return kind != KindNone
}

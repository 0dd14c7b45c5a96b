package handlers

import (
	"strings"
	"tmps-bot/internal/media"

	"github.com/mymmrac/telego"
)

// IsCommandMessage reports whether a message should be routed to a command
// handler rather than treated as schedulable content. A command is plain
// text starting with "/" and carrying no attachment or location. Text with
// an attachment is a caption, and "/delete" typed under a photo must not
// delete anything.
func IsCommandMessage(message telego.Message) bool {
	if media.HasAttachment(message) {
		return false
	}
	if message.Location != nil {
		return false
	}
	return strings.HasPrefix(message.Text, "/")
}

// CommandToken extracts the bare command name from message text, stripping
// the leading slash and any "@botname" suffix.
func CommandToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	token := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(token, "@"); at >= 0 {
		token = token[:at]
	}
	return token
}

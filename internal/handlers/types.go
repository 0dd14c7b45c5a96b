package handlers

import (
	"context"
	"log"
	"strings"
	"tmps-bot/internal/database"
	"tmps-bot/internal/mediagroups"
	"tmps-bot/internal/postlock"
	"tmps-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// Action types for user activity recording
const (
	ActionCommandStart          = "command_start"
	ActionCommandSetChannelID   = "command_set_channel_id"
	ActionCommandSetTimezone    = "command_set_timezone"
	ActionCommandDelete         = "command_delete"
	ActionCommandEditText       = "command_edit_text"
	ActionCommandEditDate       = "command_edit_date"
	ActionCommandRemainingPosts = "command_remaining_posts"
	ActionCommandHelp           = "command_help"
	ActionSchedulePost          = "schedule_post"
	ActionEditPost              = "edit_post"
)

// CommandFunc is the signature of a bot command handler.
type CommandFunc func(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error

// Command maps a command string to its description and handler function.
// Description holds a localization key, resolved when the command list is
// rendered (/help, SetMyCommands).
type Command struct {
	Command     string
	Description string
	Handler     CommandFunc
}

// MessageHandler processes incoming Telegram messages: commands on one side,
// schedulable content on the other.
type MessageHandler struct {
	users  database.UserRepository
	posts  database.PostRepository
	groups *mediagroups.Aggregator

	// postLocks serializes edit/delete mutations with the scheduler's
	// dispatch of the same post.
	postLocks *postlock.Registry

	// channelChecker verifies the bot can actually post to the user's channel.
	channelChecker ChannelAccessChecker

	commands []Command
}

// NewMessageHandler creates a MessageHandler and registers the command table.
// postLocks must be the same registry the scheduler dispatches under.
func NewMessageHandler(
	users database.UserRepository,
	posts database.PostRepository,
	groups *mediagroups.Aggregator,
	postLocks *postlock.Registry,
	channelChecker ChannelAccessChecker,
) *MessageHandler {
	if users == nil || posts == nil || groups == nil || postLocks == nil || channelChecker == nil {
		log.Fatal("MessageHandler: missing required dependency")
	}
	h := &MessageHandler{
		users:          users,
		posts:          posts,
		groups:         groups,
		postLocks:      postLocks,
		channelChecker: channelChecker,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "set_channelId", Description: "CmdSetChannelIDDesc", Handler: h.HandleSetChannelID},
		{Command: "set_timezone", Description: "CmdSetTimezoneDesc", Handler: h.HandleSetTimezone},
		{Command: "delete", Description: "CmdDeleteDesc", Handler: h.HandleDelete},
		{Command: "edit_text", Description: "CmdEditTextDesc", Handler: h.HandleEditText},
		{Command: "edit_date", Description: "CmdEditDateDesc", Handler: h.HandleEditDate},
		{Command: "remaining_posts", Description: "CmdRemainingPostsDesc", Handler: h.HandleRemainingPosts},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
	}
	return h
}

// Commands returns the registered command table.
func (h *MessageHandler) Commands() []Command {
	return h.commands
}

// GetCommandHandler retrieves the handler for a command string, matching
// case-insensitively so /set_channelid and /set_channelId both work. It
// returns nil for unknown commands.
func (h *MessageHandler) GetCommandHandler(command string) CommandFunc {
	for _, cmd := range h.commands {
		if strings.EqualFold(cmd.Command, command) {
			return cmd.Handler
		}
	}
	return nil
}

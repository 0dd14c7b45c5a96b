package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"tmps-bot/internal/database"
	"tmps-bot/internal/database/models"
	"tmps-bot/internal/locales"
	"tmps-bot/internal/timestamp"
	"tmps-bot/internal/timeutil"
	"tmps-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// ensureUser registers the sender on first contact.
func (h *MessageHandler) ensureUser(ctx context.Context, from *telego.User) error {
	exists, err := h.users.Exists(ctx, from.ID)
	if err != nil {
		return fmt.Errorf("check user %d: %w", from.ID, err)
	}
	if exists {
		return nil
	}
	user := &models.User{
		TelegramUserID: from.ID,
		Username:       from.Username,
	}
	if err := h.users.Create(ctx, user); err != nil {
		return fmt.Errorf("register user %d: %w", from.ID, err)
	}
	log.Printf("[Cmd:start User:%d] Registered new user", from.ID)
	return nil
}

// HandleStart registers the sender and replies with the setup walkthrough.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	if err := h.ensureUser(ctx, message.From); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.recordActivity(ctx, message.From, ActionCommandStart)

	name := message.From.Username
	if name == "" {
		name = message.From.FirstName
	}
	localizer := h.getLocalizer(message.From)
	text := locales.GetMessage(localizer, "MsgStart", map[string]interface{}{"Username": name})
	return h.sendMessage(ctx, bot, message.Chat.ID, text)
}

// HandleSetChannelID stores the destination channel for the sender.
func (h *MessageHandler) HandleSetChannelID(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	args := strings.Fields(message.Text)
	if len(args) < 2 {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgEnterChannelID", nil))
	}
	channelID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		text := locales.GetMessage(localizer, "MsgInvalidChannelID", map[string]interface{}{"Arg": args[1]})
		return h.sendReply(ctx, bot, message, text)
	}

	if err := h.ensureUser(ctx, message.From); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if err := h.users.SetChannelID(ctx, message.From.ID, channelID); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("set channel for user %d: %w", message.From.ID, err))
	}
	h.recordActivity(ctx, message.From, ActionCommandSetChannelID)

	text := locales.GetMessage(localizer, "MsgChannelIDSet", nil)
	if admin, err := h.channelChecker.IsBotAdmin(ctx, channelID); err == nil && !admin {
		text += "\n" + locales.GetMessage(localizer, "MsgBotNotInChannel", nil)
	}
	return h.sendReply(ctx, bot, message, text)
}

// HandleSetTimezone resolves a UTC offset to an IANA zone and stores it.
func (h *MessageHandler) HandleSetTimezone(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	args := strings.Fields(message.Text)
	if len(args) < 2 {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgEnterTimezone", nil))
	}
	offset, err := strconv.Atoi(args[1])
	if err != nil {
		text := locales.GetMessage(localizer, "MsgInvalidTimezone", map[string]interface{}{"Arg": args[1]})
		return h.sendReply(ctx, bot, message, text)
	}

	loc, err := timeutil.ZoneForOffset(offset, time.Now())
	if err != nil {
		if errors.Is(err, timeutil.ErrZoneNotFound) {
			text := locales.GetMessage(localizer, "MsgZoneNotFound", map[string]interface{}{"Arg": args[1]})
			return h.sendReply(ctx, bot, message, text)
		}
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	if err := h.ensureUser(ctx, message.From); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if err := h.users.SetTimezone(ctx, message.From.ID, loc.String()); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("set timezone for user %d: %w", message.From.ID, err))
	}
	h.recordActivity(ctx, message.From, ActionCommandSetTimezone)

	return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgTimezoneSet", nil))
}

// HandleDelete removes the pending post created from the replied-to message.
// Only the post's owner can remove it.
func (h *MessageHandler) HandleDelete(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	if message.ReplyToMessage == nil {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgReplyToDelete", nil))
	}

	post, err := h.posts.FindPendingByMessageID(ctx, message.From.ID, message.ReplyToMessage.MessageID)
	if errors.Is(err, database.ErrPostNotFound) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	// Under the post lock a dispatch in flight finishes first, and the
	// unposted-only filter then rejects the delete.
	err = h.postLocks.Do(post.ID, func() error {
		return h.posts.Delete(ctx, post.ID)
	})
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
		}
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.recordActivity(ctx, message.From, ActionCommandDelete)

	return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostDeleted", nil))
}

// HandleEditText replaces the text of the pending post created from the
// replied-to message. The delivery time stays untouched.
func (h *MessageHandler) HandleEditText(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	if message.ReplyToMessage == nil {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgReplyToEditText", nil))
	}

	// Drop the whole command token, which may carry an @botname suffix.
	newText := ""
	if parts := strings.SplitN(message.Text, " ", 2); len(parts) == 2 {
		newText = strings.TrimSpace(parts[1])
	}

	post, err := h.posts.FindPendingByMessageID(ctx, message.From.ID, message.ReplyToMessage.MessageID)
	if errors.Is(err, database.ErrPostNotFound) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	err = h.postLocks.Do(post.ID, func() error {
		return h.posts.UpdateText(ctx, post.ID, newText)
	})
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
		}
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.recordActivity(ctx, message.From, ActionCommandEditText)

	return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostEdited", nil))
}

// HandleEditDate reschedules the pending post created from the replied-to
// message to the timestamp given in the command text.
func (h *MessageHandler) HandleEditDate(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	if message.ReplyToMessage == nil {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgReplyToEditDate", nil))
	}

	user, err := h.users.GetByTelegramID(ctx, message.From.ID)
	if errors.Is(err, database.ErrUserNotFound) || (err == nil && !user.HasTimezone()) {
		return h.replyRegistrationIncomplete(ctx, bot, message, &RegistrationIncompleteError{MissingTimezone: true})
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	loc, err := userLocation(user)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	postAt, _, err := timestamp.Extract(message.Text, loc)
	if errors.Is(err, timestamp.ErrMalformedTimestamp) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgWrongDateFormat", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if errors.Is(ensureFuture(postAt), ErrPastDeliveryTime) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPastDate", nil))
	}

	post, err := h.posts.FindPendingByMessageID(ctx, message.From.ID, message.ReplyToMessage.MessageID)
	if errors.Is(err, database.ErrPostNotFound) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	err = h.postLocks.Do(post.ID, func() error {
		return h.posts.UpdateDate(ctx, post.ID, postAt)
	})
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
		}
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.recordActivity(ctx, message.From, ActionCommandEditDate)

	return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostDateEdited", nil))
}

// HandleRemainingPosts reports how many posts the sender still has queued.
func (h *MessageHandler) HandleRemainingPosts(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	count, err := h.posts.CountPending(ctx, message.From.ID)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.recordActivity(ctx, message.From, ActionCommandRemainingPosts)

	text := locales.GetMessage(localizer, "MsgRemainingPosts", map[string]interface{}{"Count": count})
	return h.sendReply(ctx, bot, message, text)
}

// HandleHelp sends the usage walkthrough followed by the command list.
func (h *MessageHandler) HandleHelp(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	var sb strings.Builder
	sb.WriteString(locales.GetMessage(localizer, "MsgHelp", nil))
	sb.WriteString("\n")
	for _, cmd := range h.commands {
		desc := locales.GetMessage(localizer, cmd.Description, nil)
		sb.WriteString(fmt.Sprintf("\n/%s - %s", cmd.Command, desc))
	}
	h.recordActivity(ctx, message.From, ActionCommandHelp)

	return h.sendMessage(ctx, bot, message.Chat.ID, sb.String())
}

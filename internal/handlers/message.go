package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"tmps-bot/internal/database"
	"tmps-bot/internal/database/models"
	"tmps-bot/internal/locales"
	"tmps-bot/internal/media"
	"tmps-bot/internal/mediagroups"
	"tmps-bot/internal/timestamp"
	"tmps-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// HandleContent processes a non-command message: a new message becomes a
// scheduled post (or a fragment of one), an edited message reschedules the
// post it originally created.
func (h *MessageHandler) HandleContent(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, isEdit bool) error {
	user, err := h.requireRegistered(ctx, message.From.ID)
	var regErr *RegistrationIncompleteError
	if errors.As(err, &regErr) {
		return h.replyRegistrationIncomplete(ctx, bot, message, regErr)
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	admin, err := h.channelChecker.IsBotAdmin(ctx, user.ChannelID)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("check channel %d access: %w", user.ChannelID, err))
	}
	if !admin {
		localizer := h.getLocalizer(message.From)
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgBotNotInChannel", nil))
	}

	loc, err := userLocation(user)
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	if isEdit {
		return h.updatePost(ctx, bot, message, loc)
	}
	return h.createPost(ctx, bot, message, loc)
}

// messageText returns the schedulable text of a message, whichever of body
// text or media caption is present.
func messageText(message telego.Message) string {
	if message.Text != "" {
		return message.Text
	}
	return message.Caption
}

func (h *MessageHandler) createPost(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, loc *time.Location) error {
	if message.MediaGroupID != "" {
		return h.createGroupFragment(ctx, bot, message, loc)
	}

	localizer := h.getLocalizer(message.From)

	postAt, rest, err := timestamp.Extract(messageText(message), loc)
	if errors.Is(err, timestamp.ErrMalformedTimestamp) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgWrongDateFormat", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if errors.Is(ensureFuture(postAt), ErrPastDeliveryTime) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPastDate", nil))
	}

	post := &models.Post{
		UserID:    message.From.ID,
		Text:      strings.TrimSpace(rest),
		MessageID: message.MessageID,
		PostAt:    postAt,
	}
	if kind, fileID := media.Classify(message); kind != media.KindNone {
		post.Media = []models.Media{{Type: string(kind), FileID: fileID, Index: 0}}
	}

	if err := h.posts.Create(ctx, post); err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("schedule post for user %d: %w", message.From.ID, err))
	}
	h.recordActivity(ctx, message.From, ActionSchedulePost)
	log.Printf("[Content User:%d] Scheduled post %s for %s", message.From.ID, post.ID.Hex(), postAt.Format(time.RFC3339))

	return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostScheduled", nil))
}

// createGroupFragment folds one album message into the post aggregating its
// media group. The first fragment of a burst creates the post from its
// caption, every later one appends its attachment.
func (h *MessageHandler) createGroupFragment(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, loc *time.Location) error {
	localizer := h.getLocalizer(message.From)
	kind, fileID := media.Classify(message)

	return h.groups.WithGroup(ctx, message.MediaGroupID, func(first bool) error {
		if first {
			postAt, rest, err := timestamp.Extract(messageText(message), loc)
			if errors.Is(err, timestamp.ErrMalformedTimestamp) {
				// Only the captioned fragment gets an error reply, the
				// caption-less rest of a rejected burst is dropped silently.
				if messageText(message) != "" {
					return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgWrongDateFormat", nil))
				}
				return nil
			}
			if err != nil {
				return h.sendError(ctx, bot, message.Chat.ID, err)
			}
			if errors.Is(ensureFuture(postAt), ErrPastDeliveryTime) {
				return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPastDate", nil))
			}

			post := &models.Post{
				UserID:       message.From.ID,
				MediaGroupID: message.MediaGroupID,
				Text:         strings.TrimSpace(rest),
				MessageID:    message.MessageID,
				PostAt:       postAt,
			}
			if kind != media.KindNone {
				post.Media = []models.Media{{Type: string(kind), FileID: fileID, Index: 0}}
			}
			if err := h.posts.Create(ctx, post); err != nil {
				return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("schedule group post for user %d: %w", message.From.ID, err))
			}
			h.recordActivity(ctx, message.From, ActionSchedulePost)
			log.Printf("[Content User:%d] Scheduled media group %s as post %s", message.From.ID, message.MediaGroupID, post.ID.Hex())

			return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostScheduled", nil))
		}

		if kind == media.KindNone {
			return nil
		}

		post, err := h.groups.FindPending(ctx, message.MediaGroupID)
		if errors.Is(err, mediagroups.ErrGroupNotFound) {
			// The burst was rejected at its first fragment.
			log.Printf("[Content User:%d] Dropping fragment of unscheduled media group %s", message.From.ID, message.MediaGroupID)
			return nil
		}
		if err != nil {
			return h.sendError(ctx, bot, message.Chat.ID, err)
		}

		m := models.Media{Type: string(kind), FileID: fileID}
		if err := mediagroups.Attach(post, m); err != nil {
			if errors.Is(err, mediagroups.ErrGroupFull) {
				return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgGroupTooLarge", nil))
			}
			return h.sendError(ctx, bot, message.Chat.ID, err)
		}
		if err := h.posts.AppendMedia(ctx, post.ID, post.Media[len(post.Media)-1]); err != nil {
			return h.sendError(ctx, bot, message.Chat.ID, fmt.Errorf("append media to post %s: %w", post.ID.Hex(), err))
		}
		return nil
	})
}

// updatePost reschedules the pending post created from the now-edited
// message, replacing both its text and delivery instant.
func (h *MessageHandler) updatePost(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, loc *time.Location) error {
	localizer := h.getLocalizer(message.From)

	post, err := h.posts.FindPendingByMessageID(ctx, message.From.ID, message.MessageID)
	if errors.Is(err, database.ErrPostNotFound) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}

	postAt, rest, err := timestamp.Extract(messageText(message), loc)
	if errors.Is(err, timestamp.ErrMalformedTimestamp) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgWrongDateFormat", nil))
	}
	if err != nil {
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	if errors.Is(ensureFuture(postAt), ErrPastDeliveryTime) {
		return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPastDate", nil))
	}

	err = h.postLocks.Do(post.ID, func() error {
		return h.posts.UpdateSchedule(ctx, post.ID, strings.TrimSpace(rest), postAt)
	})
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostNotFound", nil))
		}
		return h.sendError(ctx, bot, message.Chat.ID, err)
	}
	h.recordActivity(ctx, message.From, ActionEditPost)

	return h.sendReply(ctx, bot, message, locales.GetMessage(localizer, "MsgPostEdited", nil))
}

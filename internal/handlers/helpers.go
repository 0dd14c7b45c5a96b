package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"tmps-bot/internal/database"
	"tmps-bot/internal/database/models"
	"tmps-bot/internal/locales"
	"tmps-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// ErrPastDeliveryTime is returned when a parsed delivery instant is not in
// the future.
var ErrPastDeliveryTime = errors.New("delivery time is in the past")

// RegistrationIncompleteError reports which prerequisites the user still has
// to configure before scheduling posts.
type RegistrationIncompleteError struct {
	MissingChannel  bool
	MissingTimezone bool
}

func (e *RegistrationIncompleteError) Error() string {
	switch {
	case e.MissingChannel && e.MissingTimezone:
		return "user has no channel and no timezone configured"
	case e.MissingChannel:
		return "user has no channel configured"
	default:
		return "user has no timezone configured"
	}
}

// sendMessage sends plain text to a chat, logging a send failure instead of
// propagating it.
func (h *MessageHandler) sendMessage(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		log.Printf("Error sending message to chat %d: %v", chatID, err)
	}
	return nil
}

// sendReply sends text as a reply to the given message.
func (h *MessageHandler) sendReply(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, text string) error {
	params := tu.Message(tu.ID(message.Chat.ID), text)
	params.ReplyParameters = &telego.ReplyParameters{MessageID: message.MessageID}
	_, err := bot.SendMessage(ctx, params)
	if err != nil {
		log.Printf("Error sending reply to chat %d: %v", message.Chat.ID, err)
	}
	return nil
}

// sendError tells the user something went wrong and returns the original
// error for the outer loop to report.
func (h *MessageHandler) sendError(ctx context.Context, bot telegoapi.BotAPI, chatID int64, originalErr error) error {
	log.Printf("Error for user in chat %d: %v", chatID, originalErr)

	localizer := locales.NewLocalizer(locales.DefaultLanguage)
	errMsg := locales.GetMessage(localizer, "MsgErrorGeneral", nil)
	_, sendErr := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), errMsg))
	if sendErr != nil {
		log.Printf("Error sending generic error message to chat %d: %v", chatID, sendErr)
	}
	return originalErr
}

// getLocalizer picks a localizer from the sender's language code.
func (h *MessageHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode)
	}
	return locales.NewLocalizer(locales.DefaultLanguage)
}

// recordActivity updates the user's last-seen info, logging failures.
func (h *MessageHandler) recordActivity(ctx context.Context, user *telego.User, action string) {
	if user == nil {
		return
	}
	if err := h.users.RecordActivity(ctx, user.ID, user.Username, action); err != nil {
		log.Printf("Error recording activity %q for user %d: %v", action, user.ID, err)
	}
}

// requireRegistered loads the scheduling prerequisites for a Telegram user.
// It returns a RegistrationIncompleteError naming the missing pieces; an
// unknown user is missing both.
func (h *MessageHandler) requireRegistered(ctx context.Context, telegramUserID int64) (*models.User, error) {
	user, err := h.users.GetByTelegramID(ctx, telegramUserID)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, &RegistrationIncompleteError{MissingChannel: true, MissingTimezone: true}
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", telegramUserID, err)
	}
	if !user.HasChannel() || !user.HasTimezone() {
		return nil, &RegistrationIncompleteError{
			MissingChannel:  !user.HasChannel(),
			MissingTimezone: !user.HasTimezone(),
		}
	}
	return user, nil
}

// replyRegistrationIncomplete tells the user which setup steps are missing.
func (h *MessageHandler) replyRegistrationIncomplete(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, regErr *RegistrationIncompleteError) error {
	localizer := h.getLocalizer(message.From)
	text := locales.GetMessage(localizer, "MsgRegistrationIncomplete", nil)
	if regErr.MissingChannel {
		text += "\n" + locales.GetMessage(localizer, "MsgMissingChannelID", nil)
	}
	if regErr.MissingTimezone {
		text += "\n" + locales.GetMessage(localizer, "MsgMissingTimezone", nil)
	}
	return h.sendReply(ctx, bot, message, text)
}

// ensureFuture rejects delivery instants at or before the current instant.
func ensureFuture(postAt time.Time) error {
	if !postAt.After(time.Now()) {
		return ErrPastDeliveryTime
	}
	return nil
}

// userLocation loads the user's stored IANA zone.
func userLocation(user *models.User) (*time.Location, error) {
	loc, err := time.LoadLocation(user.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q of user %d: %w", user.TimeZone, user.TelegramUserID, err)
	}
	return loc, nil
}

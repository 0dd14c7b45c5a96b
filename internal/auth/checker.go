package auth

import (
	"context"
	"fmt"
	"log"
	"tmps-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// ChannelChecker verifies that the bot itself is an administrator of a user's
// destination channel, which it needs to be before posts can be delivered
// there.
type ChannelChecker struct {
	bot   telegoapi.BotAPI
	botID int64
}

// NewChannelChecker creates a ChannelChecker, resolving the bot's own id once.
func NewChannelChecker(ctx context.Context, bot telegoapi.BotAPI) (*ChannelChecker, error) {
	if bot == nil {
		return nil, fmt.Errorf("telego bot instance cannot be nil")
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot identity: %w", err)
	}
	return &ChannelChecker{
		bot:   bot,
		botID: me.ID,
	}, nil
}

// IsBotAdmin reports whether the bot is among the administrators of the given
// channel. API failures (bot not a member, channel unknown, network errors)
// all read as "not an admin": the user gets the same instruction either way.
func (c *ChannelChecker) IsBotAdmin(ctx context.Context, channelID int64) (bool, error) {
	admins, err := c.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{
		ChatID: telego.ChatID{ID: channelID},
	})
	if err != nil {
		log.Printf("[ChannelCheck Channel:%d] Error listing administrators: %v. Assuming bot is not admin.", channelID, err)
		return false, nil
	}

	for _, member := range admins {
		if member.MemberUser().ID == c.botID {
			return true, nil
		}
	}
	return false, nil
}

package handlers

import "context"

// ChannelAccessChecker reports whether the bot can publish to a channel.
type ChannelAccessChecker interface {
	IsBotAdmin(ctx context.Context, channelID int64) (bool, error)
}

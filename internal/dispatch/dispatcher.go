// Package dispatch renders a due post into the right outbound shape and sends it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"tmps-bot/internal/database/models"
	"tmps-bot/internal/media"
	"tmps-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// ErrInvalidMediaGroupSize is returned when a media-group post holds fewer
// than 2 or more than 10 items.
var ErrInvalidMediaGroupSize = errors.New("media group must include 2-10 items")

// Dispatcher selects the outbound rendering for a post: plain text, a single
// media message with the text as caption, or a 2-10 item media group with the
// text as caption of the first item. It holds no state.
type Dispatcher struct {
	bot telegoapi.BotAPI
}

// New creates a Dispatcher sending through the given bot.
func New(bot telegoapi.BotAPI) *Dispatcher {
	return &Dispatcher{bot: bot}
}

// Send renders post and delivers it to chatID.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, post *models.Post) error {
	switch {
	case !post.HasText() && !post.HasMedia():
		// Assembly never produces this; nothing to send.
		log.Printf("[Dispatch Post:%s] Empty post, nothing to send", post.ID.Hex())
		return nil
	case post.HasMediaGroup():
		return d.sendMediaGroup(ctx, chatID, post)
	case post.HasMedia():
		return d.sendSingleMedia(ctx, chatID, post.Media[0], post.Text)
	default:
		_, err := d.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), post.Text))
		return err
	}
}

func (d *Dispatcher) sendSingleMedia(ctx context.Context, chatID int64, m models.Media, caption string) error {
	file := telego.InputFile{FileID: m.FileID}
	var err error
	switch media.Kind(m.Type) {
	case media.KindImage:
		_, err = d.bot.SendPhoto(ctx, &telego.SendPhotoParams{ChatID: tu.ID(chatID), Photo: file, Caption: caption})
	case media.KindVideo:
		_, err = d.bot.SendVideo(ctx, &telego.SendVideoParams{ChatID: tu.ID(chatID), Video: file, Caption: caption})
	case media.KindAudio:
		_, err = d.bot.SendAudio(ctx, &telego.SendAudioParams{ChatID: tu.ID(chatID), Audio: file, Caption: caption})
	case media.KindDocument:
		_, err = d.bot.SendDocument(ctx, &telego.SendDocumentParams{ChatID: tu.ID(chatID), Document: file, Caption: caption})
	case media.KindAnimation:
		_, err = d.bot.SendAnimation(ctx, &telego.SendAnimationParams{ChatID: tu.ID(chatID), Animation: file, Caption: caption})
	case media.KindNone:
		// Nothing attached, nothing to send.
	}
	return err
}

func (d *Dispatcher) sendMediaGroup(ctx context.Context, chatID int64, post *models.Post) error {
	if len(post.Media) < 2 || len(post.Media) > 10 {
		return fmt.Errorf("%w: post %s has %d", ErrInvalidMediaGroupSize, post.ID.Hex(), len(post.Media))
	}

	ordered := make([]models.Media, len(post.Media))
	copy(ordered, post.Media)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	inputs := make([]telego.InputMedia, 0, len(ordered))
	for i, m := range ordered {
		// Telegram only shows a caption placed on the first group item.
		caption := ""
		if i == 0 {
			caption = post.Text
		}
		input := inputMediaFor(m, caption)
		if input == nil {
			log.Printf("[Dispatch Post:%s] Unsupported media type %q in group, skipping item %d", post.ID.Hex(), m.Type, i)
			continue
		}
		inputs = append(inputs, input)
	}

	_, err := d.bot.SendMediaGroup(ctx, tu.MediaGroup(tu.ID(chatID), inputs...))
	return err
}

func inputMediaFor(m models.Media, caption string) telego.InputMedia {
	file := telego.InputFile{FileID: m.FileID}
	switch media.Kind(m.Type) {
	case media.KindImage:
		in := tu.MediaPhoto(file)
		in.Caption = caption
		return in
	case media.KindVideo:
		in := tu.MediaVideo(file)
		in.Caption = caption
		return in
	case media.KindAudio:
		in := tu.MediaAudio(file)
		in.Caption = caption
		return in
	case media.KindDocument:
		in := tu.MediaDocument(file)
		in.Caption = caption
		return in
	case media.KindAnimation:
		in := tu.MediaAnimation(file)
		in.Caption = caption
		return in
	default:
		return nil
	}
}

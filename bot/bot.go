// Package bot wires the telego update stream to the message handlers: it
// classifies each update, fans processing out to goroutines, and shields the
// loop from handler panics and failures.
package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"tmps-bot/internal/handlers"
	"tmps-bot/internal/locales"
	"tmps-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// Bot runs the update processing loop on top of the telego long-polling
// channel.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	handler     *handlers.MessageHandler
	debug       bool
	ratelimiter ratelimit.Limiter
}

// Deps holds the dependencies required by the Bot.
type Deps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Handler     *handlers.MessageHandler
	Debug       bool
}

// New creates a Bot instance from its dependencies.
func New(deps Deps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		handler:     deps.Handler,
		debug:       deps.Debug,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// SetupCommands publishes the command menu to Telegram.
func (b *Bot) SetupCommands(ctx context.Context) error {
	localizer := locales.NewLocalizer(locales.DefaultLanguage)
	commands := b.handler.Commands()
	botCommands := make([]telego.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		botCommands = append(botCommands, telego.BotCommand{
			// Telegram only accepts lowercase command names in the menu.
			Command:     strings.ToLower(cmd.Command),
			Description: locales.GetMessage(localizer, cmd.Description, nil),
		})
	}
	if err := b.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: botCommands}); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}

// handleCommandUpdate dispatches a command message to its handler, answering
// unknown commands with a localized notice.
func (b *Bot) handleCommandUpdate(ctx context.Context, message telego.Message) {
	command := handlers.CommandToken(message.Text)
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", command, message.From.ID)

	handlerFunc := b.handler.GetCommandHandler(command)
	if handlerFunc == nil {
		log.Printf("%s No handler found", logPrefix)
		localizer := locales.NewLocalizer(languageOf(message.From))
		text := locales.GetMessage(localizer, "MsgUnknownCommand", map[string]interface{}{"Command": command})
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), text)); err != nil {
			log.Printf("%s Failed to send unknown command message: %v", logPrefix, err)
		}
		return
	}

	if b.debug {
		log.Printf("%s Executing handler", logPrefix)
	}
	if err := handlerFunc(ctx, b.bot, message); err != nil {
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
	}
}

// handleContentUpdate routes schedulable content, new or edited.
func (b *Bot) handleContentUpdate(ctx context.Context, message telego.Message, isEdit bool) {
	logPrefix := fmt.Sprintf("[Content User:%d Msg:%d]", message.From.ID, message.MessageID)
	if err := b.handler.HandleContent(ctx, b.bot, message, isEdit); err != nil {
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s content handler error: %w", logPrefix, err))
	}
}

// processUpdate classifies and handles a single update.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var message *telego.Message
	isEdit := false
	switch {
	case update.Message != nil:
		message = update.Message
	case update.EditedMessage != nil:
		message = update.EditedMessage
		isEdit = true
	default:
		if b.debug {
			log.Printf("Ignoring unhandled update type (ID: %d)", update.UpdateID)
		}
		return
	}

	if message.From == nil {
		log.Printf("Ignoring message %d from chat %d without sender", message.MessageID, message.Chat.ID)
		return
	}

	if handlers.IsCommandMessage(*message) {
		if isEdit {
			// Editing an old command message must not re-run the command.
			if b.debug {
				log.Printf("Ignoring edited command message %d", message.MessageID)
			}
			return
		}
		b.handleCommandUpdate(processingCtx, *message)
		return
	}
	b.handleContentUpdate(processingCtx, *message, isEdit)
}

// Start begins the update processing loop and blocks until ctx is done or
// the updates channel closes. Each update is processed in its own goroutine.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			wg.Wait()
			log.Println("All update processing finished.")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}

func languageOf(user *telego.User) string {
	if user != nil && user.LanguageCode != "" {
		return user.LanguageCode
	}
	return locales.DefaultLanguage
}

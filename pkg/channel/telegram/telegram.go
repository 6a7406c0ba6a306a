// Package telegram bridges Telegram chats into the assistant over long
// polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"aria/pkg/bus"
	"aria/pkg/config"
)

const channelName = "telegram"
const sourcePrefix = channelName + ":"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// Adapter turns Telegram text messages into utterance events and delivers
// the assistant's responses back to the originating chat.
type Adapter struct {
	cfg       config.TelegramConfig
	bus       *bus.Bus
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu     sync.Mutex
	typing map[int64]context.CancelFunc
}

// NewAdapter validates the Telegram configuration and constructs an adapter.
func NewAdapter(cfg config.TelegramConfig, b *bus.Bus, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		bus:       b,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
		typing:    make(map[int64]context.CancelFunc),
	}, nil
}

// Name returns the channel identifier used in event sources and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts long polling. Inbound text becomes speech.result events whose
// source encodes the chat, so responses find their way back; a response
// watcher delivers skill.response events addressed to this channel.
func (a *Adapter) Run(ctx context.Context) error {
	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	events, cancelWatch := a.bus.Watch(ctx, 64)
	defer cancelWatch()
	go a.forwardResponses(ctx, bot, events)

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}
			a.handleUpdate(ctx, bot, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, bot *telego.Bot, update telego.Update) {
	message := update.Message
	if message == nil {
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		// Only text updates carry utterances.
		return
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	chatID := message.Chat.ID
	a.log.Info("Received message", "chat_id", chatID, "sender_id", senderID, "content", previewText(content))

	a.startTypingIndicator(ctx, bot, chatID)

	if err := a.bus.Publish(bus.NewEvent(bus.EventSpeechResult, map[string]any{
		"text": content,
	}).WithSource(sourceFor(chatID))); err != nil {
		a.stopTypingIndicator(chatID)
		a.log.Error("Failed to publish utterance", "error", err)
	}
}

// forwardResponses sends skill.response events addressed to a Telegram chat
// back through the bot.
func (a *Adapter) forwardResponses(ctx context.Context, bot *telego.Bot, events <-chan bus.Event) {
	for event := range events {
		if event.Type != bus.EventSkillResponse {
			continue
		}

		chatID, ok := chatIDFromSource(event.Source)
		if !ok {
			continue
		}

		a.stopTypingIndicator(chatID)

		text, _ := event.Data["text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		a.log.Info("Sending message", "chat_id", chatID, "content", previewText(text))
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			a.log.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
		}
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sourceFor maps one Telegram chat to one event source.
func sourceFor(chatID int64) string {
	return sourcePrefix + strconv.FormatInt(chatID, 10)
}

// chatIDFromSource recovers the chat behind an event source produced by
// sourceFor.
func chatIDFromSource(source string) (int64, bool) {
	raw, found := strings.CutPrefix(source, sourcePrefix)
	if !found {
		return 0, false
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}

	return chatID, true
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it
// periodically until the chat's response arrives or the context ends.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) {
	typingCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if previous, ok := a.typing[chatID]; ok {
		previous()
	}
	a.typing[chatID] = cancel
	a.mu.Unlock()

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()
}

// stopTypingIndicator cancels the chat's typing refresh loop, if any.
func (a *Adapter) stopTypingIndicator(chatID int64) {
	a.mu.Lock()
	cancel, ok := a.typing[chatID]
	if ok {
		delete(a.typing, chatID)
	}
	a.mu.Unlock()

	if ok {
		cancel()
	}
}

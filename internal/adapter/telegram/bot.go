package telegram

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwygoda/tokbot/internal/domain"
	"github.com/cwygoda/tokbot/internal/worker"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 60 // seconds

// Service is what the bot needs from the request pipeline.
type Service interface {
	Handle(ctx context.Context, req domain.Request) (domain.Report, error)
	UserStats(ctx context.Context, telegramID int64) (*domain.UserStats, error)
}

// Bot receives updates by long polling and handles each on its own goroutine.
type Bot struct {
	api        API
	updates    UpdateSource
	svc        Service
	logger     *slog.Logger
	dispatcher *worker.Dispatcher[tgbotapi.Update]
}

// NewBot creates a Bot.
func NewBot(api API, updates UpdateSource, svc Service, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{api: api, updates: updates, svc: svc, logger: logger}
	b.dispatcher = worker.New[tgbotapi.Update](b.HandleUpdate, logger)
	return b
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// requests to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	ch := b.updates.GetUpdatesChan(u)

	stop := context.AfterFunc(ctx, b.updates.StopReceivingUpdates)
	defer stop()

	b.logger.Info("bot polling for updates")
	b.dispatcher.Run(ctx, ch)
	return nil
}

// HandleUpdate processes one update.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleText(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg, welcomeText)
	case "stats":
		b.replyStats(ctx, msg)
	default:
		b.reply(msg, helpText)
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := domain.ExtractSourceURL(msg.Text); err != nil {
		b.reply(msg, rejectText)
		return
	}

	notice, err := b.reply(msg, processingText)
	if err != nil {
		b.logger.Warn("processing notice failed", "chat_id", msg.Chat.ID, "error", err)
	}

	rep, err := b.svc.Handle(ctx, domain.Request{
		User:      userFrom(msg),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	})

	switch {
	case errors.Is(err, domain.ErrNoSourceURL):
		b.finishNotice(msg.Chat.ID, notice, rejectText)
	case err != nil:
		b.logger.Error("handle message failed", "chat_id", msg.Chat.ID, "error", err)
		b.finishNotice(msg.Chat.ID, notice, errorText)
	case rep.Outcome.Success:
		b.finishNotice(msg.Chat.ID, notice, "")
	case rep.IsDeliveryError():
		b.finishNotice(msg.Chat.ID, notice, errorText)
	default:
		b.finishNotice(msg.Chat.ID, notice, failedText)
	}
}

func (b *Bot) replyStats(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		b.reply(msg, noStatsText)
		return
	}
	stats, err := b.svc.UserStats(ctx, msg.From.ID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		b.reply(msg, noStatsText)
	case err != nil:
		b.logger.Error("user stats failed", "user_id", msg.From.ID, "error", err)
		b.reply(msg, statsErrorText)
	case stats.TotalRequests == 0:
		b.reply(msg, noStatsText)
	default:
		b.reply(msg, statsText(stats))
	}
}

// reply sends text as a reply and returns the sent message ID.
func (b *Bot) reply(msg *tgbotapi.Message, text string) (int, error) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	sent, err := b.api.Send(out)
	if err != nil {
		b.logger.Warn("reply failed", "chat_id", msg.Chat.ID, "error", err)
		return 0, err
	}
	return sent.MessageID, nil
}

// finishNotice deletes the processing notice when text is empty and edits
// it to text otherwise. Without a notice, text is sent as a new message.
func (b *Bot) finishNotice(chatID int64, noticeID int, text string) {
	var c tgbotapi.Chattable
	switch {
	case noticeID == 0 && text == "":
		return
	case noticeID == 0:
		c = tgbotapi.NewMessage(chatID, text)
	case text == "":
		c = tgbotapi.NewDeleteMessage(chatID, noticeID)
	default:
		c = tgbotapi.NewEditMessageText(chatID, noticeID, text)
	}
	if _, err := b.api.Request(c); err != nil {
		b.logger.Warn("update processing notice failed", "chat_id", chatID, "error", err)
	}
}

func userFrom(msg *tgbotapi.Message) domain.User {
	if msg.From == nil {
		return domain.User{TelegramID: msg.Chat.ID}
	}
	return domain.User{
		TelegramID: msg.From.ID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
		LastName:   msg.From.LastName,
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"poll-quiz-service/internal/app"
	"poll-quiz-service/internal/domain"
)

const (
	welcomeText = "👋 Welcome to the Quiz Bot!\n\n" +
		"To start a quiz, you'll need to:\n" +
		"1. Create your quiz and export it as JSON\n" +
		"2. Send the JSON file back to me\n\n" +
		"Once you send the file, I'll guide you through the quiz using polls!"
	helpText = "I turn a JSON quiz file into Telegram quiz polls and send you a PDF report when you are done.\n\n" +
		"/start - how to begin\n/status - your progress\n/cancel - drop the current quiz"
	notJSONText   = "Please send a JSON file."
	tooLargeText  = "This file is too large. Please send a quiz under %d KB."
	unknownText   = "Unknown command. Try /help."
	webAppButton  = "🌐 Create Quiz"
	downloadLimit = 30 * time.Second
)

var errTooLarge = errors.New("file too large")

// Options tunes the update loop.
type Options struct {
	PollTimeout  int
	MaxFileBytes int64
	WebAppURL    string
}

// Bot routes Telegram updates into the quiz service.
type Bot struct {
	api     *tgbotapi.BotAPI
	service *app.QuizService
	http    *http.Client
	opts    Options
	log     zerolog.Logger
}

func NewBot(api *tgbotapi.BotAPI, service *app.QuizService, opts Options, log zerolog.Logger) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 1 << 20
	}
	return &Bot{
		api:     api,
		service: service,
		http:    &http.Client{Timeout: downloadLimit},
		opts:    opts,
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

// Run consumes updates until ctx is done and waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info().Str("account", b.api.Self.UserName).Msg("authorised")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout
	u.AllowedUpdates = []string{"message", "poll_answer"}
	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handle(ctx, update)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case update.PollAnswer != nil:
		b.service.HandleAnswer(ctx, answerEvent(update.PollAnswer))
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Document != nil:
		b.handleDocument(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		reply := tgbotapi.NewMessage(chatID, welcomeText)
		if b.opts.WebAppURL != "" {
			reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(webAppButton, b.opts.WebAppURL)),
			)
		}
		if _, err := b.api.Send(reply); err != nil {
			b.log.Warn().Err(err).Int64("session_key", chatID).Msg("send welcome")
		}
	case "help":
		b.service.Notify(ctx, chatID, helpText)
	case "cancel":
		cancelled, err := b.service.CancelQuiz(ctx, chatID)
		switch {
		case err != nil:
			b.log.Error().Err(err).Int64("session_key", chatID).Msg("cancel quiz")
			b.service.Notify(ctx, chatID, app.MsgStartFailed)
		case cancelled:
			b.service.Notify(ctx, chatID, app.MsgCancelled)
		default:
			b.service.Notify(ctx, chatID, app.MsgNothingToStop)
		}
	case "status":
		sess, err := b.service.Progress(ctx, chatID)
		if err != nil {
			b.service.Notify(ctx, chatID, app.MsgNothingToStop)
			return
		}
		b.service.Notify(ctx, chatID, progressText(sess))
	default:
		b.service.Notify(ctx, chatID, unknownText)
	}
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	doc := msg.Document
	if !isQuizFile(doc.FileName) {
		b.service.Notify(ctx, chatID, notJSONText)
		return
	}
	if int64(doc.FileSize) > b.opts.MaxFileBytes {
		b.service.Notify(ctx, chatID, fmt.Sprintf(tooLargeText, b.opts.MaxFileBytes/1024))
		return
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		b.log.Error().Err(err).Int64("session_key", chatID).Msg("resolve file url")
		b.service.Notify(ctx, chatID, fmt.Sprintf(app.MsgReadFailed, err.Error()))
		return
	}
	data, err := download(ctx, b.http, url, b.opts.MaxFileBytes)
	if errors.Is(err, errTooLarge) {
		b.service.Notify(ctx, chatID, fmt.Sprintf(tooLargeText, b.opts.MaxFileBytes/1024))
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("session_key", chatID).Msg("download quiz file")
		b.service.Notify(ctx, chatID, fmt.Sprintf(app.MsgReadFailed, err.Error()))
		return
	}

	// Failures are reported to the chat by the service.
	_, _ = b.service.SubmitDocument(ctx, chatID, data)
}

func answerEvent(pa *tgbotapi.PollAnswer) domain.AnswerEvent {
	return domain.AnswerEvent{
		PollID:    pa.PollID,
		UserID:    pa.User.ID,
		OptionIDs: pa.OptionIDs,
	}
}

func isQuizFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}

func progressText(sess domain.Session) string {
	return fmt.Sprintf(app.MsgProgress, sess.Quiz.Title, sess.Answered(), sess.Total, sess.Score)
}

// download fetches url, refusing bodies larger than limit bytes.
func download(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

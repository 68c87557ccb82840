package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"poll-quiz-service/internal/domain"
)

// Sender is the part of *tgbotapi.BotAPI the messenger needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Messenger sends quiz polls, texts and documents through the Bot API.
type Messenger struct {
	api Sender
}

func NewMessenger(api Sender) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) SendPoll(ctx context.Context, chatID int64, poll domain.PollRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := m.api.Send(pollConfig(chatID, poll))
	if err != nil {
		return "", fmt.Errorf("send poll: %w", err)
	}
	if msg.Poll == nil || msg.Poll.ID == "" {
		return "", errors.New("send poll: response carries no poll id")
	}
	return msg.Poll.ID, nil
}

func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (m *Messenger) SendDocument(ctx context.Context, chatID int64, doc domain.Document, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
	cfg.Caption = caption
	_, err := m.api.Send(cfg)
	return err
}

func pollConfig(chatID int64, poll domain.PollRequest) tgbotapi.SendPollConfig {
	cfg := tgbotapi.NewPoll(chatID, poll.Question, poll.Options...)
	cfg.IsAnonymous = poll.Anonymous
	if poll.Quiz {
		cfg.Type = "quiz"
		cfg.CorrectOptionID = int64(poll.CorrectOption)
	}
	return cfg
}

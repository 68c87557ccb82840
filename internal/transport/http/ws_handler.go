package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"poll-quiz-service/internal/app"
	"poll-quiz-service/internal/domain"
)

// ErrRecipientOffline is returned when a message targets a user with no open socket.
var ErrRecipientOffline = errors.New("recipient offline")

const sendBuffer = 64

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	PollID    string `json:"pollId"`
	OptionIDs []int  `json:"optionIds"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type pollPayload struct {
	PollID    string   `json:"pollId"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Type      string   `json:"type"`
	Anonymous bool     `json:"anonymous"`
}

type textPayload struct {
	Text string `json:"text"`
}

type reportPayload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Caption     string `json:"caption"`
	Data        []byte `json:"data"`
}

// wsWriter is the write half of a socket.
type wsWriter interface {
	WriteJSON(v any) error
	Close() error
}

type client struct {
	send      chan outboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newClient() *client {
	return &client{send: make(chan outboundMessage, sendBuffer), done: make(chan struct{})}
}

// close marks the client gone; senders stop queueing once done is closed.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writeLoop drains send into conn until the client closes. A failed write
// closes both the client and conn, which also ends the read loop.
func (c *client) writeLoop(conn wsWriter, log zerolog.Logger) {
	for {
		select {
		case msg := <-c.send:
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Msg("ws write error")
				c.close()
				_ = conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Hub tracks one socket per user and implements app.Messenger on top of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]*client)}
}

func (h *Hub) SendPoll(ctx context.Context, chatID int64, poll domain.PollRequest) (string, error) {
	id := uuid.NewString()
	err := h.deliver(ctx, chatID, outboundMessage{Type: "poll", Payload: pollPayload{
		PollID:    id,
		Question:  poll.Question,
		Options:   poll.Options,
		Type:      "quiz",
		Anonymous: poll.Anonymous,
	}})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (h *Hub) SendText(ctx context.Context, chatID int64, text string) error {
	return h.deliver(ctx, chatID, outboundMessage{Type: "message", Payload: textPayload{Text: text}})
}

func (h *Hub) SendDocument(ctx context.Context, chatID int64, doc domain.Document, caption string) error {
	return h.deliver(ctx, chatID, outboundMessage{Type: "report", Payload: reportPayload{
		Name:        doc.Name,
		ContentType: doc.ContentType,
		Caption:     caption,
		Data:        doc.Data,
	}})
}

func (h *Hub) deliver(ctx context.Context, chatID int64, msg outboundMessage) error {
	h.mu.RLock()
	c, ok := h.clients[chatID]
	h.mu.RUnlock()
	if !ok {
		return ErrRecipientOffline
	}
	select {
	case <-c.done:
		return ErrRecipientOffline
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrRecipientOffline
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attach registers c for user, replacing an older socket of the same user.
func (h *Hub) attach(user int64, c *client) {
	h.mu.Lock()
	h.clients[user] = c
	h.mu.Unlock()
}

func (h *Hub) detach(user int64, c *client) {
	h.mu.Lock()
	if h.clients[user] == c {
		delete(h.clients, user)
	}
	h.mu.Unlock()
}

type WSHandler struct {
	service  *app.QuizService
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWSHandler serves quizzes over websockets. hub must be the Messenger the
// service was built with.
func NewWSHandler(service *app.QuizService, hub *Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := newClient()
	h.hub.attach(user, c)
	log := h.log.With().Int64("session_key", user).Logger()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn, log)
	}()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "quiz":
			// Errors reach the user as messages from the service.
			_, _ = h.service.SubmitDocument(ctx, user, inbound.Payload)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.PollID == "" {
				h.service.Notify(ctx, user, "invalid answer payload")
				continue
			}
			h.service.HandleAnswer(ctx, domain.AnswerEvent{
				PollID:    payload.PollID,
				UserID:    user,
				OptionIDs: payload.OptionIDs,
			})
		default:
			h.service.Notify(ctx, user, "unsupported message type")
		}
	}

	h.hub.detach(user, c)
	c.close()
	<-writerDone
}

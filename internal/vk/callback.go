package vk

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/intake-bot/internal/bot"
	"github.com/rs/zerolog"
)

// ReplySender — исходящий канал для ответов; в проде это *Client,
// в тестах — заглушка.
type ReplySender interface {
	Send(ctx context.Context, peerID int64, reply bot.Reply) error
}

// CallbackHandler принимает события VK Callback API: подтверждение сервера
// и входящие сообщения. Событие подтверждается сразу ("ok"), сама обработка
// идёт в отдельной горутине — VK повторяет событие, если ответ задержался.
type CallbackHandler struct {
	router       *bot.Router
	sender       ReplySender
	confirmation string
	secret       string
	log          zerolog.Logger
}

func NewCallbackHandler(router *bot.Router, sender ReplySender, confirmation, secret string, log zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		router:       router,
		sender:       sender,
		confirmation: confirmation,
		secret:       secret,
		log:          log,
	}
}

type callbackEvent struct {
	Type   string          `json:"type"`
	Secret string          `json:"secret"`
	Object json.RawMessage `json:"object"`
}

type messageNewObject struct {
	Message struct {
		FromID  int64  `json:"from_id"`
		PeerID  int64  `json:"peer_id"`
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"message"`
}

// Handle — gin-обработчик POST /vk/callback.
func (h *CallbackHandler) Handle(c *gin.Context) {
	var ev callbackEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.String(http.StatusBadRequest, "bad request")
		return
	}
	if h.secret != "" && ev.Secret != h.secret {
		h.log.Warn().Str("type", ev.Type).Msg("vk: callback with wrong secret")
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	switch ev.Type {
	case "confirmation":
		c.String(http.StatusOK, h.confirmation)
	case "message_new":
		var obj messageNewObject
		if err := json.Unmarshal(ev.Object, &obj); err != nil {
			h.log.Error().Err(err).Msg("vk: unmarshal message_new")
			c.String(http.StatusOK, "ok")
			return
		}
		in := parseInbound(obj)
		go h.process(in, obj.Message.PeerID)
		c.String(http.StatusOK, "ok")
	default:
		c.String(http.StatusOK, "ok")
	}
}

// parseInbound превращает событие VK во входящее сообщение ядра:
// payload кнопки даёт структурную команду, иначе текст сверяется с
// подписями известных кнопок, иначе остаётся свободным текстом.
func parseInbound(obj messageNewObject) bot.Inbound {
	in := bot.Inbound{
		UserID: obj.Message.FromID,
		Text:   obj.Message.Text,
	}
	if obj.Message.Payload != "" {
		var p buttonPayload
		if err := json.Unmarshal([]byte(obj.Message.Payload), &p); err == nil && p.Command != "" {
			in.Command = bot.Command(p.Command)
			in.TicketID = p.TicketID
			return in
		}
	}
	if cmd, ok := bot.ParseCommand(obj.Message.Text); ok {
		in.Command = cmd
	}
	return in
}

func (h *CallbackHandler) process(in bot.Inbound, peerID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply := h.router.Handle(ctx, in)
	if reply.Text == "" {
		return
	}
	if err := h.sender.Send(ctx, peerID, reply); err != nil {
		h.log.Error().Err(err).Int64("peer", peerID).Msg("vk: send reply failed")
	}
}

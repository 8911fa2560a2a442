package vk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/intake-bot/internal/bot"
	"github.com/rs/zerolog"
)

func newMessage(fromID int64, text, payload string) messageNewObject {
	var obj messageNewObject
	obj.Message.FromID = fromID
	obj.Message.PeerID = fromID
	obj.Message.Text = text
	obj.Message.Payload = payload
	return obj
}

func TestParseInboundPayloadCommand(t *testing.T) {
	t.Parallel()
	payload := `{"command":"ticket_view","ticket_id":"123_456"}`

	in := parseInbound(newMessage(42, "1", payload))
	if in.Command != bot.CmdTicketView {
		t.Fatalf("command = %q, want ticket_view", in.Command)
	}
	if in.TicketID != "123_456" {
		t.Fatalf("ticket id = %q", in.TicketID)
	}
	if in.UserID != 42 {
		t.Fatalf("user id = %d", in.UserID)
	}
}

func TestParseInboundLabelText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want bot.Command
	}{
		{"Заполнить заявку", bot.CmdFormStart},
		{"мои заявки", bot.CmdTicketsList},
		{"/start", bot.CmdStart},
	}
	for _, tt := range tests {
		in := parseInbound(newMessage(1, tt.text, ""))
		if in.Command != tt.want {
			t.Errorf("parseInbound(%q).Command = %q, want %q", tt.text, in.Command, tt.want)
		}
	}
}

func TestParseInboundFreeText(t *testing.T) {
	t.Parallel()
	in := parseInbound(newMessage(1, "Иван Петров", ""))
	if in.Command != "" {
		t.Fatalf("command = %q, want free text", in.Command)
	}
	if in.Text != "Иван Петров" {
		t.Fatalf("text = %q", in.Text)
	}
}

func TestParseInboundBrokenPayloadFallsBackToText(t *testing.T) {
	t.Parallel()
	in := parseInbound(newMessage(1, "Отмена", "{not json"))
	if in.Command != bot.CmdCancel {
		t.Fatalf("command = %q, want fallback to label parsing", in.Command)
	}
}

func TestRenderKeyboard(t *testing.T) {
	t.Parallel()
	raw, err := renderKeyboard([][]bot.Button{
		{
			{Label: "1", Color: bot.ColorSecondary}, // без payload: ответ придёт текстом
			{Label: "Отмена", Command: bot.CmdCancel, Color: bot.ColorNegative},
		},
		{
			{Label: "Удалить заявку", Command: bot.CmdTicketDelete, TicketID: "123_456", Color: bot.ColorNegative},
		},
	})
	if err != nil {
		t.Fatalf("renderKeyboard: %v", err)
	}

	var markup keyboardMarkup
	if err := json.Unmarshal([]byte(raw), &markup); err != nil {
		t.Fatalf("rendered keyboard is not valid JSON: %v", err)
	}
	if len(markup.Buttons) != 2 || len(markup.Buttons[0]) != 2 || len(markup.Buttons[1]) != 1 {
		t.Fatalf("markup shape = %v", markup.Buttons)
	}

	numeric := markup.Buttons[0][0]
	if numeric.Action.Payload != "" {
		t.Fatalf("numeric button must not carry a payload, got %q", numeric.Action.Payload)
	}
	if numeric.Action.Type != "text" || numeric.Action.Label != "1" {
		t.Fatalf("numeric button = %+v", numeric)
	}

	cancel := markup.Buttons[0][1]
	var p buttonPayload
	if err := json.Unmarshal([]byte(cancel.Action.Payload), &p); err != nil {
		t.Fatalf("cancel payload: %v", err)
	}
	if p.Command != string(bot.CmdCancel) || p.TicketID != "" {
		t.Fatalf("cancel payload = %+v", p)
	}

	del := markup.Buttons[1][0]
	if err := json.Unmarshal([]byte(del.Action.Payload), &p); err != nil {
		t.Fatalf("delete payload: %v", err)
	}
	if p.Command != string(bot.CmdTicketDelete) || p.TicketID != "123_456" {
		t.Fatalf("delete payload = %+v", p)
	}
	if del.Color != string(bot.ColorNegative) {
		t.Fatalf("color = %q", del.Color)
	}
}

func TestRenderKeyboardSkipsEmptyRows(t *testing.T) {
	t.Parallel()
	raw, err := renderKeyboard([][]bot.Button{
		{},
		{{Label: "Начать", Command: bot.CmdStart}},
	})
	if err != nil {
		t.Fatalf("renderKeyboard: %v", err)
	}
	var markup keyboardMarkup
	if err := json.Unmarshal([]byte(raw), &markup); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(markup.Buttons) != 1 {
		t.Fatalf("rows = %d, want empty row dropped", len(markup.Buttons))
	}
}

func callbackRequest(t *testing.T, h *CallbackHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/vk/callback", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Handle(c)
	return w
}

func TestCallbackConfirmation(t *testing.T) {
	t.Parallel()
	h := NewCallbackHandler(nil, nil, "conf123", "s3cret", zerolog.Nop())

	w := callbackRequest(t, h, `{"type":"confirmation","secret":"s3cret"}`)
	if w.Code != http.StatusOK || w.Body.String() != "conf123" {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestCallbackWrongSecret(t *testing.T) {
	t.Parallel()
	h := NewCallbackHandler(nil, nil, "conf123", "s3cret", zerolog.Nop())

	w := callbackRequest(t, h, `{"type":"confirmation","secret":"wrong"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestCallbackNoSecretConfigured(t *testing.T) {
	t.Parallel()
	h := NewCallbackHandler(nil, nil, "conf123", "", zerolog.Nop())

	w := callbackRequest(t, h, `{"type":"confirmation"}`)
	if w.Code != http.StatusOK || w.Body.String() != "conf123" {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestCallbackUnknownEventAcked(t *testing.T) {
	t.Parallel()
	h := NewCallbackHandler(nil, nil, "conf123", "s3cret", zerolog.Nop())

	w := callbackRequest(t, h, `{"type":"message_typing_state","secret":"s3cret"}`)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestCallbackMalformedBody(t *testing.T) {
	t.Parallel()
	h := NewCallbackHandler(nil, nil, "conf123", "s3cret", zerolog.Nop())

	w := callbackRequest(t, h, `{broken`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/intake-bot/internal/bot"
	"github.com/rs/zerolog"
)

// Client — исходящий канал к VK Bots API (messages.send).
type Client struct {
	baseURL    string
	token      string
	version    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL, token, version string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		version: version,
		log:     log,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type apiResponse struct {
	Error *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_msg"`
	} `json:"error"`
}

// Send доставляет ответ бота пользователю вместе с клавиатурой.
func (c *Client) Send(ctx context.Context, peerID int64, reply bot.Reply) error {
	params := url.Values{}
	params.Set("peer_id", strconv.FormatInt(peerID, 10))
	params.Set("message", reply.Text)
	// random_id защищает от дублирования сообщения при ретраях VK
	params.Set("random_id", strconv.FormatInt(rand.Int63(), 10))
	if len(reply.Keyboard) > 0 {
		kb, err := renderKeyboard(reply.Keyboard)
		if err != nil {
			return fmt.Errorf("render keyboard: %w", err)
		}
		params.Set("keyboard", kb)
	}
	return c.call(ctx, "messages.send", params)
}

// SendText — сообщение без клавиатуры (уведомления администраторам).
func (c *Client) SendText(ctx context.Context, peerID int64, text string) error {
	params := url.Values{}
	params.Set("peer_id", strconv.FormatInt(peerID, 10))
	params.Set("message", text)
	params.Set("random_id", strconv.FormatInt(rand.Int63(), 10))
	return c.call(ctx, "messages.send", params)
}

func (c *Client) call(ctx context.Context, method string, params url.Values) error {
	params.Set("access_token", c.token)
	params.Set("v", c.version)

	endpoint := c.baseURL + "/method/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("vk %s: new request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vk %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vk %s: status %d", method, resp.StatusCode)
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("vk %s: decode response: %w", method, err)
	}
	if body.Error != nil {
		return fmt.Errorf("vk %s: api error %d: %s", method, body.Error.Code, body.Error.Message)
	}
	return nil
}

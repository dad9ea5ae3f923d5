// Package telegram implements a small Telegram Bot API client and the
// announcer and distributor of the olymp queue bot on top of it.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hselingforschool/olymp-queue-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	Token string

	// BaseURL defaults to https://api.telegram.org.
	BaseURL string

	// Timeout must exceed PollingTimeout plus network latency.
	Timeout time.Duration

	// PollingTimeout is the getUpdates long polling timeout.
	PollingTimeout time.Duration

	// ParseMode is applied to every outgoing message unless overridden.
	ParseMode string

	Logger *slog.Logger
	Debug  bool
}

// DefaultClientConfig returns defaults for the token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:          token,
		BaseURL:        "https://api.telegram.org",
		Timeout:        60 * time.Second,
		PollingTimeout: 30 * time.Second,
		ParseMode:      "Markdown",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM API TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Update represents a Telegram update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message represents a Telegram message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// User represents a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// MessageEntity represents a message entity (command, mention, etc.).
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// CallbackQuery represents a press on an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// InlineKeyboardMarkup represents an inline keyboard.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents a button in an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Button creates a callback button.
func Button(text, data string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: data}
}

// Keyboard builds a keyboard from rows of buttons.
func Keyboard(rows ...[]InlineKeyboardButton) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Telegram Bot API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger

	updateOffset int64
	updateMu     sync.Mutex
}

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.PollingTimeout <= 0 {
		config.PollingTimeout = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier:    retry.TelegramRetrier(),
		logger:     config.Logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SENDING
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageParams contains parameters for sending a message.
type SendMessageParams struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

// SendMessage sends a text message. Link previews are always disabled.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	body := map[string]any{
		"chat_id":                  params.ChatID,
		"text":                     params.Text,
		"disable_web_page_preview": true,
	}
	if mode := c.parseMode(params.ParseMode); mode != "" {
		body["parse_mode"] = mode
	}
	if params.ReplyMarkup != nil {
		body["reply_markup"] = params.ReplyMarkup
	}

	var message Message
	if err := c.callAPI(ctx, "sendMessage", body, &message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &message, nil
}

// SendText sends text with the default parse mode.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: text})
}

// SendWithKeyboard sends text with an inline keyboard.
func (c *Client) SendWithKeyboard(ctx context.Context, chatID int64, text string, kb *InlineKeyboardMarkup) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: kb})
}

// SendDocument sends a file that Telegram downloads from url.
func (c *Client) SendDocument(ctx context.Context, chatID int64, url, caption string) (*Message, error) {
	body := map[string]any{
		"chat_id":  chatID,
		"document": url,
	}
	if caption != "" {
		body["caption"] = caption
		if mode := c.parseMode(""); mode != "" {
			body["parse_mode"] = mode
		}
	}

	var message Message
	if err := c.callAPI(ctx, "sendDocument", body, &message); err != nil {
		return nil, fmt.Errorf("send document: %w", err)
	}
	return &message, nil
}

// AnswerCallbackQuery answers a callback query.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	body := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		body["text"] = text
	}
	if err := c.callAPI(ctx, "answerCallbackQuery", body, nil); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// EditMessageKeyboard replaces or, with nil, removes the inline keyboard.
func (c *Client) EditMessageKeyboard(ctx context.Context, chatID, messageID int64, kb *InlineKeyboardMarkup) error {
	if kb == nil {
		kb = Keyboard()
	}
	body := map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": kb,
	}
	if err := c.callAPI(ctx, "editMessageReplyMarkup", body, nil); err != nil {
		return fmt.Errorf("edit message keyboard: %w", err)
	}
	return nil
}

// GetMe returns information about the bot. Used as a health check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &user, nil
}

// SetWebhook switches the bot to webhook delivery. Telegram echoes secret in
// the X-Telegram-Bot-Api-Secret-Token header of every request.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	body := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	if err := c.callAPI(ctx, "setWebhook", body, nil); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to long polling.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := c.callAPI(ctx, "deleteWebhook", map[string]any{}, nil); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func (c *Client) parseMode(override string) string {
	if override != "" {
		return override
	}
	return c.config.ParseMode
}

// ══════════════════════════════════════════════════════════════════════════════
// API CALL HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// callAPI calls the Bot API, retrying rate limits, server and network errors.
func (c *Client) callAPI(ctx context.Context, method string, body map[string]any, result any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		err := c.doAPICall(ctx, method, body, result)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			t := time.NewTimer(time.Duration(apiErr.RetryAfter) * time.Second)
			select {
			case <-ctx.Done():
				t.Stop()
				return retry.Permanent(err)
			case <-t.C:
			}
		}
		if isRetryable(err) {
			return retry.Retryable(err)
		}
		return err
	})
}

func (c *Client) doAPICall(ctx context.Context, method string, body map[string]any, result any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token, method)

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.config.Debug {
		c.logger.Debug("telegram api call", "method", method)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if !apiResp.OK {
		apiErr := &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError represents a Telegram API error.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	s := err.Error()
	for _, marker := range []string{"timeout", "connection refused", "temporary", "reset"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// IsUserBlocked reports whether the user blocked the bot or never started it.
func IsUserBlocked(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusForbidden ||
		strings.Contains(apiErr.Description, "chat not found")
}

// ══════════════════════════════════════════════════════════════════════════════
// LONG POLLING RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateHandler handles a Telegram update.
type UpdateHandler func(ctx context.Context, update *Update) error

// GetUpdates fetches updates using long polling.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int) ([]Update, error) {
	body := map[string]any{
		"timeout":         int(c.config.PollingTimeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		body["offset"] = offset
	}
	if limit > 0 {
		body["limit"] = limit
	}

	var updates []Update
	if err := c.doAPICall(ctx, "getUpdates", body, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// StartPolling polls for updates until ctx is done. Updates are handled one
// by one in the order they arrive.
func (c *Client) StartPolling(ctx context.Context, handler UpdateHandler) error {
	c.logger.Info("starting telegram long polling")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping telegram long polling")
			return nil
		default:
		}

		c.updateMu.Lock()
		offset := c.updateOffset
		c.updateMu.Unlock()

		updates, err := c.GetUpdates(ctx, offset, 100)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to get updates", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for i := range updates {
			update := &updates[i]
			c.updateMu.Lock()
			if update.UpdateID >= c.updateOffset {
				c.updateOffset = update.UpdateID + 1
			}
			c.updateMu.Unlock()

			if err := handler(ctx, update); err != nil {
				c.logger.Error("failed to handle update",
					"update_id", update.UpdateID,
					"error", err,
				)
			}
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UTILITY METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ExtractCommand extracts the command from a message without "/" and "@bot".
func ExtractCommand(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}
	for _, entity := range msg.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 && entity.Length <= len(msg.Text) {
			cmd := msg.Text[1:entity.Length]
			if i := strings.IndexByte(cmd, '@'); i >= 0 {
				cmd = cmd[:i]
			}
			return strings.ToLower(cmd)
		}
	}
	return ""
}

// ExtractCommandArgs extracts the text after the command.
func ExtractCommandArgs(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}
	for _, entity := range msg.Entities {
		if entity.Type == "bot_command" && entity.Offset == 0 && entity.Length <= len(msg.Text) {
			return strings.TrimSpace(msg.Text[entity.Length:])
		}
	}
	return ""
}

// IsPrivateChat checks if the message is from a private chat.
func IsPrivateChat(msg *Message) bool {
	return msg != nil && msg.Chat != nil && msg.Chat.Type == "private"
}

package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendText(t *testing.T) {
	api, client := newFakeAPI(t)

	msg, err := client.SendText(context.Background(), 100, "привет")
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.MessageID)

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, int64(100), calls[0].chatID())
	assert.Equal(t, "привет", calls[0].text())
	assert.Equal(t, "Markdown", calls[0].Body["parse_mode"])
	assert.Equal(t, true, calls[0].Body["disable_web_page_preview"])
	assert.NotContains(t, calls[0].Body, "reply_markup")
}

func TestClient_SendWithKeyboard(t *testing.T) {
	api, client := newFakeAPI(t)

	_, err := client.SendWithKeyboard(context.Background(), 100, "оцени", JudgeKeyboard())
	require.NoError(t, err)

	calls := api.Calls("sendMessage")
	require.Len(t, calls, 1)
	markup, ok := calls[0].Body["reply_markup"].(map[string]any)
	require.True(t, ok)
	rows, ok := markup["inline_keyboard"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 2)
}

func TestClient_BlockedUserIsNotRetried(t *testing.T) {
	api, client := newFakeAPI(t)

	_, err := client.SendText(context.Background(), blockedChat, "привет")
	require.Error(t, err)
	assert.True(t, IsUserBlocked(err))
	assert.Len(t, api.Calls("sendMessage"), 1)
}

func TestClient_GetMe(t *testing.T) {
	_, client := newFakeAPI(t)

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "olymp_queue_bot", me.Username)
}

func TestClient_StartPolling(t *testing.T) {
	api, client := newFakeAPI(t)
	api.updates = []Update{{UpdateID: 7, Message: &Message{MessageID: 1, Chat: &Chat{ID: 5, Type: "private"}, Text: "hi"}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int64
	err := client.StartPolling(ctx, func(_ context.Context, u *Update) error {
		got = append(got, u.UpdateID)
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, got)
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		cmd  string
		args string
	}{
		{"plain", "/queue 3", "queue", "3"},
		{"bot mention", "/Queue@olymp_queue_bot  3 ", "queue", "3"},
		{"no args", "/free", "free", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length := len(tt.text)
			for i, r := range tt.text {
				if r == ' ' {
					length = i
					break
				}
			}
			msg := &Message{Text: tt.text, Entities: []MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}}
			assert.Equal(t, tt.cmd, ExtractCommand(msg))
			assert.Equal(t, tt.args, ExtractCommandArgs(msg))
		})
	}

	assert.Empty(t, ExtractCommand(&Message{Text: "просто текст"}))
}

func TestClient_SetWebhook(t *testing.T) {
	api, client := newFakeAPI(t)

	require.NoError(t, client.SetWebhook(context.Background(), "https://bot.example.org/webhook/telegram", "s3cret"))
	require.NoError(t, client.DeleteWebhook(context.Background()))

	calls := api.Calls("setWebhook")
	require.Len(t, calls, 1)
	assert.Equal(t, "https://bot.example.org/webhook/telegram", calls[0].Body["url"])
	assert.Equal(t, "s3cret", calls[0].Body["secret_token"])
	assert.Len(t, api.Calls("deleteWebhook"), 1)
}

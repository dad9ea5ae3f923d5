package telegram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// blockedChat answers every call with 403.
const blockedChat = 403

type apiCall struct {
	Method string
	Body   map[string]any
}

func (c apiCall) chatID() int64 {
	v, _ := c.Body["chat_id"].(float64)
	return int64(v)
}

func (c apiCall) text() string {
	s, _ := c.Body["text"].(string)
	return s
}

// fakeAPI is a minimal Bot API server.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall

	// updates are served once by getUpdates.
	updates []Update
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		Token:          "test-token",
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		PollingTimeout: time.Second,
		ParseMode:      "Markdown",
		Logger:         logger.Discard(),
	})
	return f, client
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	call := apiCall{Method: path.Base(r.URL.Path), Body: body}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	updates := f.updates
	f.updates = nil
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if call.chatID() == blockedChat {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  403,
			"description": "Forbidden: bot was blocked by the user",
		})
		return
	}

	var result any = true
	switch call.Method {
	case "getMe":
		result = User{ID: 1, IsBot: true, Username: "olymp_queue_bot"}
	case "getUpdates":
		if updates == nil {
			updates = []Update{}
		}
		result = updates
	case "sendMessage", "sendDocument":
		result = Message{MessageID: 42, Chat: &Chat{ID: call.chatID(), Type: "private"}, Text: call.text()}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeAPI) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// textsTo returns texts sent to chatID in order.
func (f *fakeAPI) textsTo(chatID int64) []string {
	var out []string
	for _, c := range f.Calls("sendMessage") {
		if c.chatID() == chatID {
			out = append(out, c.text())
		}
	}
	return out
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthChecker(t *testing.T) {
	c := NewHealthChecker("1.0.0")
	assert.True(t, c.Check(context.Background()).Healthy)

	c.AddCheck("postgres", NewPingCheck(pingFunc(func(context.Context) error { return nil })))
	c.AddCheck("redis", NewPingCheck(pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })))

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.Equal(t, "dial tcp: refused", status.Checks["redis"].Message)
	assert.Equal(t, "1.0.0", status.Version)
}

func TestHealthChecker_Timeout(t *testing.T) {
	c := NewHealthChecker("")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("telegram", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["telegram"].Message, "deadline")
}

func TestAPIKeyAuth(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{"", "k1"})
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "X-API-Key", "k2", http.StatusUnauthorized},
		{"header", "X-API-Key", "k1", http.StatusTeapot},
		{"bearer", "Authorization", "Bearer k1", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.False(t, auth.IsValid(""))
}

func TestTelegramWebhook(t *testing.T) {
	var got []int64
	wh := NewTelegramWebhook("s3cret", func(_ context.Context, u *telegram.Update) error {
		got = append(got, u.UpdateID)
		if u.UpdateID == 2 {
			return errors.New("handler failed")
		}
		return nil
	}, logger.Discard())

	post := func(secret, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
		if secret != "" {
			req.Header.Set(SecretTokenHeader, secret)
		}
		rec := httptest.NewRecorder()
		wh.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post("", `{"update_id":1}`))
	assert.Equal(t, http.StatusUnauthorized, post("other", `{"update_id":1}`))
	assert.Equal(t, http.StatusBadRequest, post("s3cret", `{"update_id":`))
	assert.Equal(t, http.StatusOK, post("s3cret", `{"update_id":1,"message":{"message_id":5,"text":"/start"}}`))
	assert.Equal(t, http.StatusOK, post("s3cret", `{"update_id":2}`))

	require.Equal(t, []int64{1, 2}, got)
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

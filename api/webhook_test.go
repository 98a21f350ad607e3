package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinobot/internal/storage"
)

type recorder struct {
	mu   sync.Mutex
	upds []tgbotapi.Update
}

func (r *recorder) HandleUpdate(_ context.Context, upd tgbotapi.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upds = append(r.upds, upd)
}

func newCatalog(t *testing.T) *storage.SQLite {
	t.Helper()
	st, err := storage.OpenSQLite(storage.SQLiteOptions{
		Path:        filepath.Join(t.TempDir(), "bot.db"),
		BusyTimeout: time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
	}, hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

const updateJSON = `{"update_id":7,"message":{"message_id":3,"from":{"id":42,"first_name":"Ali"},"chat":{"id":42,"type":"private"},"date":0,"text":"a1"}}`

func TestWebhookDispatchesUpdate(t *testing.T) {
	rec := &recorder{}
	srv := NewServer(context.Background(), rec, newCatalog(t), Options{Secret: "s3cret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(updateJSON))
	req.Header.Set(secretHeader, "s3cret")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	srv.Wait()

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.upds, 1)
	assert.Equal(t, 7, rec.upds[0].UpdateID)
	assert.Equal(t, "a1", rec.upds[0].Message.Text)
	assert.EqualValues(t, 42, rec.upds[0].Message.From.ID)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	rec := &recorder{}
	srv := NewServer(context.Background(), rec, newCatalog(t), Options{Secret: "s3cret"}, nil)

	for _, secret := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(updateJSON))
		if secret != "" {
			req.Header.Set(secretHeader, secret)
		}
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	srv.Wait()
	assert.Empty(t, rec.upds)
}

func TestWebhookBadPayloadAndMethod(t *testing.T) {
	srv := NewServer(context.Background(), &recorder{}, newCatalog(t), Options{}, nil)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealth(t *testing.T) {
	srv := NewServer(context.Background(), &recorder{}, newCatalog(t), Options{}, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLibrary(t *testing.T) {
	ctx := context.Background()
	st := newCatalog(t)
	require.NoError(t, st.AddMovie(ctx, &storage.Movie{Code: "A1", Name: "Avatar", Kind: storage.KindVideo, FileRef: "F1"}))
	require.NoError(t, st.AddMovie(ctx, &storage.Movie{Code: "B2", Name: "Batman", Kind: storage.KindDocument, FileRef: "F2"}))
	srv := NewServer(ctx, &recorder{}, st, Options{BotUsername: "kino_bot"}, nil)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/library?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var items []libraryItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/library/item?code=a1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var item libraryItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, "Avatar", item.Name)
	assert.Equal(t, "https://t.me/kino_bot?start=cinema_A1", item.Link)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/library/item?code=zz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/library/item", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

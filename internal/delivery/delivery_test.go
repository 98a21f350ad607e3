package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

type sent struct {
	method string
	chatID int64
	body   string
}

type fakeSender struct {
	calls []sent
	fail  map[string]bool
}

func (f *fakeSender) record(method string, chatID int64, body string) error {
	f.calls = append(f.calls, sent{method, chatID, body})
	if f.fail[method] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	return nil
}

func (f *fakeSender) SendMessage(_ context.Context, r tg.SendMessageRequest) error {
	return f.record("message", r.ChatID, r.Text)
}
func (f *fakeSender) SendVideo(_ context.Context, r tg.SendMediaRequest) error {
	return f.record("video", r.ChatID, r.FileID)
}
func (f *fakeSender) SendPhoto(_ context.Context, r tg.SendMediaRequest) error {
	return f.record("photo", r.ChatID, r.FileID)
}
func (f *fakeSender) SendDocument(_ context.Context, r tg.SendMediaRequest) error {
	return f.record("document", r.ChatID, r.FileID)
}

type fakeCatalog struct {
	movies map[string]*storage.Movie
	err    error
}

func newCatalog(ms ...storage.Movie) *fakeCatalog {
	c := &fakeCatalog{movies: map[string]*storage.Movie{}}
	for i := range ms {
		m := ms[i]
		c.movies[m.Code] = &m
	}
	return c
}

func (c *fakeCatalog) GetMovie(_ context.Context, code string) (*storage.Movie, error) {
	if c.err != nil {
		return nil, c.err
	}
	m, ok := c.movies[code]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (c *fakeCatalog) Children(_ context.Context, parent string) ([]storage.Movie, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []storage.Movie
	for _, m := range c.movies {
		if m.ParentCode != nil && *m.ParentCode == parent {
			out = append(out, *m)
		}
	}
	// oldest first, as the stores return them
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (c *fakeCatalog) IncrementViews(_ context.Context, code string) error {
	if m, ok := c.movies[code]; ok {
		m.Views++
	}
	return nil
}

func TestDeliverByKind(t *testing.T) {
	for _, kind := range storage.ContentKinds {
		t.Run(string(kind), func(t *testing.T) {
			cat := newCatalog(storage.Movie{Code: "A1", Name: "Dune", Kind: kind, FileRef: "REF", Views: 4})
			snd := &fakeSender{}
			svc := NewService(cat, snd, Options{}, nil)

			out, err := svc.Deliver(context.Background(), 10, " a1 ")
			require.NoError(t, err)
			assert.Equal(t, Delivered, out)
			require.Len(t, snd.calls, 1)
			want := string(kind)
			if kind == storage.KindText {
				want = "message"
			}
			assert.Equal(t, want, snd.calls[0].method)
			assert.Equal(t, "REF", snd.calls[0].body)
			assert.EqualValues(t, 5, cat.movies["A1"].Views)
		})
	}
}

func TestDeliverSendFailureKeepsViews(t *testing.T) {
	cat := newCatalog(storage.Movie{Code: "A1", Name: "Dune", Kind: storage.KindVideo, FileRef: "REF"})
	snd := &fakeSender{fail: map[string]bool{"video": true}}
	svc := NewService(cat, snd, Options{}, nil)

	out, err := svc.Deliver(context.Background(), 10, "A1")
	require.NoError(t, err)
	assert.Equal(t, SendFailed, out)
	assert.Zero(t, cat.movies["A1"].Views)
	require.Len(t, snd.calls, 2)
	assert.Equal(t, "message", snd.calls[1].method)
}

func TestDeliverNotFound(t *testing.T) {
	snd := &fakeSender{}
	svc := NewService(newCatalog(), snd, Options{}, nil)

	out, err := svc.Deliver(context.Background(), 10, "zz")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)
	require.Len(t, snd.calls, 1)
	assert.Contains(t, snd.calls[0].body, "ZZ")
}

func TestDeliverStoreError(t *testing.T) {
	cat := newCatalog()
	cat.err = errors.New("database is locked")
	svc := NewService(cat, &fakeSender{}, Options{}, nil)
	_, err := svc.Deliver(context.Background(), 10, "A1")
	assert.Error(t, err)
}

func TestDeliverChildList(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ser := "SER"
	var ms []storage.Movie
	for i := 12; i >= 1; i-- {
		ms = append(ms, storage.Movie{
			Code: fmt.Sprintf("E%d", i), Name: fmt.Sprintf("Episode %d", i), Kind: storage.KindVideo,
			FileRef: "F", ParentCode: &ser, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	ms = append(ms, storage.Movie{Code: "SER", Name: "Series", Kind: storage.KindVideo, FileRef: "F"})
	cat := newCatalog(ms...)
	snd := &fakeSender{}
	svc := NewService(cat, snd, Options{PromoChannel: "@promo"}, nil)

	out, err := svc.Deliver(context.Background(), 10, "ser")
	require.NoError(t, err)
	assert.Equal(t, ChildList, out)
	require.Len(t, snd.calls, 1)
	body := snd.calls[0].body
	assert.True(t, strings.Index(body, "1. Episode 1 ") < strings.Index(body, "2. Episode 2 "))
	assert.Less(t, strings.Index(body, "9. Episode 9"), strings.Index(body, "@promo"))
	assert.Less(t, strings.Index(body, "@promo"), strings.Index(body, "10. Episode 10"))
	assert.Zero(t, cat.movies["SER"].Views, "parent content is not delivered")
}

func TestDeliverOrphanEpisodesNeedParent(t *testing.T) {
	ghost := "GHOST"
	cat := newCatalog(storage.Movie{Code: "E1", Name: "Episode 1", Kind: storage.KindVideo, FileRef: "F", ParentCode: &ghost})
	snd := &fakeSender{}
	svc := NewService(cat, snd, Options{}, nil)

	out, err := svc.Deliver(context.Background(), 10, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)
}

func TestListTextShortListHasNoPromo(t *testing.T) {
	text := ListText("h", []storage.Movie{{Code: "A", Name: "a"}}, "@promo")
	assert.NotContains(t, text, "@promo")
	assert.Contains(t, text, "1. a | 👁️ 0 - 🆔 A")
}

func TestCaption(t *testing.T) {
	svc := NewService(newCatalog(), &fakeSender{}, Options{BotUsername: "kino_bot"}, nil)
	c := svc.Caption(&storage.Movie{Code: "A1", Name: "Dune", Description: "sand", Views: 9})
	assert.Contains(t, c, "🎬 Dune")
	assert.Contains(t, c, "🆔 Code: A1")
	assert.Contains(t, c, "📝 sand")
	assert.Contains(t, c, "📥 Downloads: 10")
	assert.Contains(t, c, "@kino_bot")
}

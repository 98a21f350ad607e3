package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinobot/internal/config"
)

func TestOpenStoreSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &config.Config{
		StoreDriver:  config.DriverSQLite,
		DBPath:       filepath.Join(dir, "bot.db"),
		DBTimeout:    time.Second,
		DBMaxRetries: 3,
		DBRetryDelay: time.Millisecond,
	}
	st, err := OpenStore(ctx, cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.UpsertUser(ctx, 1, "ali", "Ali"))
	ids, err := st.AllUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	_, err = os.Stat(cfg.DBPath)
	assert.NoError(t, err)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{StoreDriver: "postgres"}, hclog.NewNullLogger())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestOpenSessionsInMemory(t *testing.T) {
	a := &App{cfg: &config.Config{}, log: hclog.NewNullLogger()}
	s, err := a.openSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Empty(t, a.closers)
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	var order []int
	a := &App{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return nil },
	}}
	require.NoError(t, a.Close())
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Close())
}

// replyHandler stands in for the bot: it blocks until released, then sends a
// reply the way tg.Client does, refusing when its context is done.
type replyHandler struct {
	started chan struct{}
	release chan struct{}
	sent    atomic.Bool
	ctxErr  atomic.Value
}

func newReplyHandler() *replyHandler {
	return &replyHandler{started: make(chan struct{}), release: make(chan struct{})}
}

func (h *replyHandler) HandleUpdate(ctx context.Context, _ tgbotapi.Update) {
	close(h.started)
	select {
	case <-h.release:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		h.ctxErr.Store(err)
		return
	}
	h.sent.Store(true)
}

func testApp(grace time.Duration) *App {
	return &App{cfg: &config.Config{ShutdownGrace: grace}, log: hclog.NewNullLogger()}
}

func TestServeUpdatesFinishesInFlightAfterStop(t *testing.T) {
	a := testApp(5 * time.Second)
	h := newReplyHandler()
	updates := make(chan tgbotapi.Update, 1)
	var stopped atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.serveUpdates(ctx, updates, h, func() { stopped.Store(true) }) }()

	updates <- tgbotapi.Update{UpdateID: 1}
	<-h.started
	cancel()

	select {
	case <-errc:
		t.Fatal("returned before the in-flight update finished")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, stopped.Load())

	close(h.release)
	require.NoError(t, <-errc)
	assert.True(t, h.sent.Load())
	assert.Nil(t, h.ctxErr.Load())
}

func TestServeUpdatesCancelsAfterGrace(t *testing.T) {
	a := testApp(20 * time.Millisecond)
	h := newReplyHandler()
	updates := make(chan tgbotapi.Update, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.serveUpdates(ctx, updates, h, func() {}) }()

	updates <- tgbotapi.Update{UpdateID: 1}
	<-h.started
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never cancelled")
	}
	assert.False(t, h.sent.Load())
	assert.ErrorIs(t, h.ctxErr.Load().(error), context.Canceled)
}

func TestServeUpdatesClosedChannel(t *testing.T) {
	a := testApp(time.Second)
	updates := make(chan tgbotapi.Update)
	close(updates)
	err := a.serveUpdates(context.Background(), updates, newReplyHandler(), func() {})
	assert.ErrorContains(t, err, "update channel closed")
}

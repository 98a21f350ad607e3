package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"kinobot/internal/storage"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler consumes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

type Options struct {
	// Secret, when set, must match the secret token header of every webhook call.
	Secret string
	// LibraryLimit caps /api/library listings.
	LibraryLimit int
	// BotUsername adds deep links to catalog items when set.
	BotUsername string
}

// Server routes webhook calls to the bot and serves the read-only catalog.
// Updates are acknowledged at once and handled in the background with ctx.
type Server struct {
	ctx     context.Context
	updates UpdateHandler
	catalog storage.MovieStore
	opts    Options
	log     hclog.Logger
	router  *mux.Router
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, updates UpdateHandler, catalog storage.MovieStore, opts Options, log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if opts.LibraryLimit <= 0 {
		opts.LibraryLimit = 50
	}
	s := &Server{ctx: ctx, updates: updates, catalog: catalog, opts: opts, log: log}
	r := mux.NewRouter()
	r.HandleFunc("/api/webhook", s.webhook).Methods(http.MethodPost)
	r.HandleFunc("/api/library", s.library).Methods(http.MethodGet)
	r.HandleFunc("/api/library/item", s.libraryItem).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until every accepted update has been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.Secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Secret)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var upd tgbotapi.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		s.log.Warn("bad webhook payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.updates.HandleUpdate(s.ctx, upd)
	}()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

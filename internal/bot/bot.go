package bot

import (
	"context"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-hclog"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/delivery"
	"kinobot/internal/menu"
	"kinobot/internal/premium"
	"kinobot/internal/session"
	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

// Messenger is the transport surface the bot needs.
type Messenger interface {
	delivery.Sender
	broadcast.Copier
	access.MembershipChecker
	EditMessageText(ctx context.Context, req tg.EditMessageTextRequest) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
}

type Options struct {
	AdminIDs        []int64
	PromoChannel    string
	BotUsername     string
	RandomListLimit int
	MovieListLimit  int
	Broadcast       broadcast.Options
}

type Deps struct {
	Store     storage.Store
	Sessions  session.Store
	Messenger Messenger
	// Premium is built from Store when nil.
	Premium *premium.Service
	Log     hclog.Logger
}

type Bot struct {
	opts     Options
	admins   map[int64]struct{}
	store    storage.Store
	sessions session.Store
	tg       Messenger
	policy   *access.Policy
	delivery *delivery.Service
	premium  *premium.Service
	caster   *broadcast.Broadcaster
	log      hclog.Logger
	locks    userLocks
}

func New(opts Options, deps Deps) *Bot {
	log := deps.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if opts.RandomListLimit <= 0 {
		opts.RandomListLimit = 15
	}
	if opts.MovieListLimit <= 0 {
		opts.MovieListLimit = 50
	}
	prem := deps.Premium
	if prem == nil {
		prem = premium.NewService(deps.Store, log.Named("premium"))
	}
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		opts:     opts,
		admins:   admins,
		store:    deps.Store,
		sessions: deps.Sessions,
		tg:       deps.Messenger,
		policy:   access.NewPolicy(deps.Store, deps.Store, deps.Messenger, log.Named("access")),
		delivery: delivery.NewService(deps.Store, deps.Messenger, delivery.Options{
			PromoChannel: opts.PromoChannel,
			BotUsername:  opts.BotUsername,
		}, log.Named("delivery")),
		premium: prem,
		caster:  broadcast.New(deps.Messenger, opts.Broadcast, log.Named("broadcast")),
		log:     log,
		locks:   userLocks{m: map[int64]*userLock{}},
	}
}

func (b *Bot) isAdmin(id int64) bool {
	_, ok := b.admins[id]
	return ok
}

// HandleUpdate processes one update. Updates from the same user are handled
// one at a time; a panic is logged and contained to this update.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var from *tgbotapi.User
	switch {
	case upd.Message != nil:
		from = upd.Message.From
	case upd.CallbackQuery != nil:
		from = upd.CallbackQuery.From
	}
	if from == nil {
		return
	}
	unlock := b.locks.lock(from.ID)
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", "update_id", upd.UpdateID, "user_id", from.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := b.store.UpsertUser(ctx, from.ID, from.UserName, from.FirstName); err != nil {
		b.log.Error("upsert user failed", "user_id", from.ID, "error", err)
	}
	switch {
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.cmdStart(ctx, msg)
			return
		case "admin":
			b.cmdAdmin(ctx, msg)
			return
		case "rand":
			b.cmdRandom(ctx, msg)
			return
		}
	}
	if b.isAdmin(msg.From.ID) {
		b.handleAdminMessage(ctx, msg)
		return
	}
	b.handleUserMessage(ctx, msg)
}

func (b *Bot) handleUserMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text != "" {
		b.handleCodeText(ctx, msg)
		return
	}
	if isMedia(msg) {
		return
	}
	b.reply(ctx, msg.Chat.ID, "🔍 Send a code to find a movie or use the menu.\n🟢 /start - main menu", menu.Main())
}

func (b *Bot) handleCodeText(ctx context.Context, msg *tgbotapi.Message) {
	code := ExtractCode(msg.Text)
	if code == "" {
		code = storage.NormalizeCode(msg.Text)
	}
	if code == "" {
		b.reply(ctx, msg.Chat.ID, "⚠️ The code must not be empty.", nil)
		return
	}
	b.codeEntry(ctx, msg.From.ID, msg.Chat.ID, code, nil)
}

// codeEntry gates a code request and delivers it when the user may receive it.
// cq is set when the request came from a button, so the prompt replaces that
// message.
func (b *Bot) codeEntry(ctx context.Context, userID, chatID int64, code string, cq *tgbotapi.CallbackQuery) {
	if !b.policy.IsSubscribed(ctx, userID, b.isAdmin(userID)) {
		b.updateSession(ctx, userID, func(s *session.Session) { s.PendingCode = code })
		text := "📢 Join the channel before getting movies, or buy premium."
		kb := b.forceSubscribeMenu(ctx)
		if cq != nil {
			b.editOrSend(ctx, cq, text, kb)
		} else {
			b.reply(ctx, chatID, text, kb)
		}
		return
	}
	b.deliver(ctx, chatID, code)
}

func (b *Bot) deliver(ctx context.Context, chatID int64, code string) {
	out, err := b.delivery.Deliver(ctx, chatID, code)
	if err != nil {
		b.log.Error("deliver failed", "chat_id", chatID, "code", code, "error", err)
		b.reply(ctx, chatID, errText, nil)
		return
	}
	b.log.Debug("code handled", "chat_id", chatID, "code", code, "outcome", out)
}

var deepLinkRe = regexp.MustCompile(`cinema_([a-zA-Z0-9]+)`)

// ExtractCode finds a cinema_<CODE> deep link in text.
func ExtractCode(text string) string {
	m := deepLinkRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return storage.NormalizeCode(m[1])
}

// StartCode parses a /start payload of the form cinema_<CODE>.
func StartCode(payload string) string {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return ""
	}
	token := fields[0]
	if !strings.HasPrefix(strings.ToLower(token), "cinema_") {
		return ""
	}
	return storage.NormalizeCode(token[len("cinema_"):])
}

func isMedia(msg *tgbotapi.Message) bool {
	return msg.Video != nil || msg.Document != nil || len(msg.Photo) > 0 ||
		msg.Audio != nil || msg.Animation != nil || msg.Voice != nil || msg.VideoNote != nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, kb *tg.InlineKeyboardMarkup) {
	if err := b.tg.SendMessage(ctx, tg.SendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: kb}); err != nil {
		b.log.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

// editOrSend replaces the text of the callback's message, or sends a new
// message when that is not possible.
func (b *Bot) editOrSend(ctx context.Context, cq *tgbotapi.CallbackQuery, text string, kb *tg.InlineKeyboardMarkup) {
	if cq.Message != nil && cq.Message.Chat != nil {
		err := b.tg.EditMessageText(ctx, tg.EditMessageTextRequest{
			ChatID:      cq.Message.Chat.ID,
			MessageID:   cq.Message.MessageID,
			Text:        text,
			ReplyMarkup: kb,
		})
		if err == nil {
			return
		}
		b.log.Debug("edit message failed, sending instead", "user_id", cq.From.ID, "error", err)
	}
	b.reply(ctx, cq.From.ID, text, kb)
}

func (b *Bot) session(ctx context.Context, userID int64) session.Session {
	s, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.log.Error("load session failed", "user_id", userID, "error", err)
	}
	return s
}

func (b *Bot) updateSession(ctx context.Context, userID int64, fn func(s *session.Session)) {
	s := b.session(ctx, userID)
	fn(&s)
	if err := b.sessions.Put(ctx, userID, s); err != nil {
		b.log.Error("save session failed", "user_id", userID, "error", err)
	}
}

func (b *Bot) setState(ctx context.Context, userID int64, st session.State) {
	b.updateSession(ctx, userID, func(s *session.Session) { s.State = st })
}

func displayUsername(u *tgbotapi.User) string {
	if u.UserName == "" {
		return "not set"
	}
	return "@" + u.UserName
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

func (l *userLocks) lock(id int64) func() {
	l.mu.Lock()
	e, ok := l.m[id]
	if !ok {
		e = &userLock{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

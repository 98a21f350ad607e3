package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"kinobot/internal/menu"
	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

type Outcome int

const (
	Delivered Outcome = iota
	NotFound
	SendFailed
	ChildList
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case NotFound:
		return "not_found"
	case SendFailed:
		return "send_failed"
	case ChildList:
		return "child_list"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Sender is the part of the transport used to deliver content.
type Sender interface {
	SendMessage(ctx context.Context, req tg.SendMessageRequest) error
	SendVideo(ctx context.Context, req tg.SendMediaRequest) error
	SendPhoto(ctx context.Context, req tg.SendMediaRequest) error
	SendDocument(ctx context.Context, req tg.SendMediaRequest) error
}

type Catalog interface {
	GetMovie(ctx context.Context, code string) (*storage.Movie, error)
	Children(ctx context.Context, parentCode string) ([]storage.Movie, error)
	IncrementViews(ctx context.Context, code string) error
}

type Options struct {
	PromoChannel string
	BotUsername  string
}

type Service struct {
	catalog Catalog
	send    Sender
	opts    Options
	log     hclog.Logger
}

func NewService(catalog Catalog, send Sender, opts Options, log hclog.Logger) *Service {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Service{catalog: catalog, send: send, opts: opts, log: log}
}

// Deliver answers a code request in chatID. A movie that has episodes yields
// the episode list instead of its own content. The returned error is set only
// when the catalog could not be read.
func (s *Service) Deliver(ctx context.Context, chatID int64, code string) (Outcome, error) {
	code = storage.NormalizeCode(code)
	m, err := s.catalog.GetMovie(ctx, code)
	if err != nil {
		return SendFailed, fmt.Errorf("load movie %s: %w", code, err)
	}
	if m == nil {
		err := s.send.SendMessage(ctx, tg.SendMessageRequest{
			ChatID:      chatID,
			Text:        fmt.Sprintf("⚠️ No movie found for this code.\n🆔 Code: %s", code),
			ReplyMarkup: menu.NotFound(),
		})
		if err != nil {
			s.log.Error("send not-found reply failed", "chat_id", chatID, "code", code, "error", err)
		}
		return NotFound, nil
	}

	children, err := s.catalog.Children(ctx, code)
	if err != nil {
		return SendFailed, fmt.Errorf("load children of %s: %w", code, err)
	}
	if len(children) > 0 {
		return s.sendChildList(ctx, chatID, children), nil
	}
	return s.SendMovie(ctx, chatID, m), nil
}

// SendMovie sends one movie and counts the view when the send succeeds.
func (s *Service) SendMovie(ctx context.Context, chatID int64, m *storage.Movie) Outcome {
	kb := menu.MovieActions(m.Code, s.opts.BotUsername)
	media := tg.SendMediaRequest{ChatID: chatID, FileID: m.FileRef, Caption: s.Caption(m), ReplyMarkup: kb}

	var err error
	switch m.Kind {
	case storage.KindVideo:
		err = s.send.SendVideo(ctx, media)
	case storage.KindPhoto:
		err = s.send.SendPhoto(ctx, media)
	case storage.KindDocument:
		err = s.send.SendDocument(ctx, media)
	case storage.KindText:
		err = s.send.SendMessage(ctx, tg.SendMessageRequest{ChatID: chatID, Text: m.FileRef, ReplyMarkup: kb})
	default:
		err = fmt.Errorf("unsupported content kind %q", m.Kind)
	}
	if err != nil {
		s.log.Error("send content failed", "chat_id", chatID, "code", m.Code, "kind", m.Kind, "error", err)
		if err := s.send.SendMessage(ctx, tg.SendMessageRequest{
			ChatID: chatID,
			Text:   "❌ Could not send the content. Please try again later.",
		}); err != nil {
			s.log.Error("send failure notice failed", "chat_id", chatID, "error", err)
		}
		return SendFailed
	}

	if err := s.catalog.IncrementViews(ctx, m.Code); err != nil {
		s.log.Error("increment views failed", "code", m.Code, "error", err)
	}
	return Delivered
}

// Caption shows the view count the movie will have after this delivery.
func (s *Service) Caption(m *storage.Movie) string {
	var b strings.Builder
	title := m.Title()
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "🎬 %s\n\n🆔 Code: %s\n", title, m.Code)
	if m.Description != "" {
		fmt.Fprintf(&b, "📝 %s\n", m.Description)
	}
	fmt.Fprintf(&b, "📥 Downloads: %d", m.Views+1)
	if s.opts.BotUsername != "" {
		fmt.Fprintf(&b, "\n\n@%s - 🎬 The best movies and series are here", s.opts.BotUsername)
	}
	return b.String()
}

func (s *Service) sendChildList(ctx context.Context, chatID int64, children []storage.Movie) Outcome {
	err := s.send.SendMessage(ctx, tg.SendMessageRequest{
		ChatID:      chatID,
		Text:        ListText("📺 Episodes (oldest → newest):", children, s.opts.PromoChannel),
		ReplyMarkup: storage.NumberedKeyboard(children),
	})
	if err != nil {
		s.log.Error("send episode list failed", "chat_id", chatID, "error", err)
		return SendFailed
	}
	return ChildList
}

// promoAfter is the list position followed by the promo line.
const promoAfter = 9

// ListText renders a numbered movie list with the promo line after the ninth
// entry.
func ListText(header string, movies []storage.Movie, promo string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	for i := range movies {
		m := &movies[i]
		fmt.Fprintf(&b, "%d. %s | 👁️ %d - 🆔 %s\n", i+1, m.Title(), m.Views, m.Code)
		if i+1 == promoAfter && promo != "" {
			fmt.Fprintf(&b, "\n📢 Subscribe to %s\n\n", promo)
		}
	}
	return b.String()
}

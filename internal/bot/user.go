package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/delivery"
	"kinobot/internal/menu"
	"kinobot/internal/session"
	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

const premiumPerks = "💎 Premium\n\n" +
	"✅ No channel subscription needed\n" +
	"✅ Every movie right away\n\n" +
	"Choose a plan:"

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	if code := StartCode(msg.CommandArguments()); code != "" {
		b.codeEntry(ctx, msg.From.ID, msg.Chat.ID, code, nil)
		return
	}
	badge := ""
	if ok, err := b.store.IsPremium(ctx, msg.From.ID); err != nil {
		b.log.Warn("premium lookup failed", "user_id", msg.From.ID, "error", err)
	} else if ok {
		badge = " 💎"
	}
	name := msg.From.FirstName
	if name == "" {
		name = "friend"
	}
	text := fmt.Sprintf("👋 Hello, %s%s!\n\n🎬 Send a movie code and I will send you the movie.", name, badge)
	b.reply(ctx, msg.Chat.ID, text, menu.Main())
}

func (b *Bot) cmdRandom(ctx context.Context, msg *tgbotapi.Message) {
	text, kb := b.randomList(ctx)
	b.reply(ctx, msg.Chat.ID, text, kb)
}

func (b *Bot) randomList(ctx context.Context) (string, *tg.InlineKeyboardMarkup) {
	movies, err := b.store.RandomMovies(ctx, b.opts.RandomListLimit)
	if err != nil {
		b.log.Error("random movies failed", "error", err)
		return errText, menu.Main()
	}
	if len(movies) == 0 {
		return "⚠️ No movies yet.", menu.Main()
	}
	return delivery.ListText("🎲 Random movies:", movies, b.opts.PromoChannel), storage.NumberedKeyboard(movies)
}

func (b *Bot) forceSubscribeMenu(ctx context.Context) *tg.InlineKeyboardMarkup {
	channels, err := b.store.Channels(ctx)
	if err != nil {
		b.log.Error("list gating channels failed", "error", err)
	}
	return menu.ForceSubscribe(channels)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if err := b.tg.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
		b.log.Debug("answer callback failed", "user_id", cq.From.ID, "error", err)
	}
	data := cq.Data
	switch {
	case strings.HasPrefix(data, menu.CbPick):
		code := storage.NormalizeCode(strings.TrimPrefix(data, menu.CbPick))
		if code == "" {
			return
		}
		b.codeEntry(ctx, cq.From.ID, chatOf(cq), code, cq)
	case data == menu.CbCheckSub:
		b.checkSubscription(ctx, cq)
	case data == menu.CbSearch:
		b.editOrSend(ctx, cq, "🔍 Send a movie code:", nil)
	case data == menu.CbRandom:
		text, kb := b.randomList(ctx)
		b.editOrSend(ctx, cq, text, kb)
	case data == menu.CbBuyPremium:
		b.editOrSend(ctx, cq, premiumPerks, menu.PremiumPlans())
	case strings.HasPrefix(data, menu.CbPremium):
		months, err := strconv.Atoi(strings.TrimPrefix(data, menu.CbPremium))
		if err != nil || months <= 0 {
			months = 1
		}
		text := fmt.Sprintf("💎 Premium for %d month(s)\n💰 Price: %s so'm\n\n🆔 Your ID: %d\n\nSend your ID to the admin to pay.",
			months, menu.FormatPrice(menu.PremiumPrice(months)), cq.From.ID)
		b.editOrSend(ctx, cq, text, menu.PremiumPlan())
	case data == menu.CbContactAdmin:
		b.contactAdmin(ctx, cq)
	case data == menu.CbMainMenu:
		b.editOrSend(ctx, cq, "🏠 Main menu:", menu.Main())
	default:
		if !b.isAdmin(cq.From.ID) {
			if isAdminCallback(data) {
				b.editOrSend(ctx, cq, "⚠️ This section is for admins only.", nil)
				return
			}
			b.log.Debug("unknown callback", "user_id", cq.From.ID, "data", data)
			return
		}
		b.handleAdminCallback(ctx, cq)
	}
}

func (b *Bot) checkSubscription(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if !b.policy.IsSubscribed(ctx, cq.From.ID, b.isAdmin(cq.From.ID)) {
		b.editOrSend(ctx, cq, "❌ You have not joined every channel yet.\n\nJoin and press \"Check again\".", b.forceSubscribeMenu(ctx))
		return
	}
	var code string
	b.updateSession(ctx, cq.From.ID, func(s *session.Session) {
		code, s.PendingCode = s.PendingCode, ""
	})
	if code == "" {
		b.editOrSend(ctx, cq, "✅ Subscription confirmed. Now send a movie code.", nil)
		return
	}
	b.editOrSend(ctx, cq, "✅ Subscription confirmed. Sending your movie...", nil)
	b.deliver(ctx, chatOf(cq), code)
}

func (b *Bot) contactAdmin(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if len(b.opts.AdminIDs) == 0 {
		b.editOrSend(ctx, cq, "⚠️ Admin list is empty.", menu.Main())
		return
	}
	note := fmt.Sprintf("📞 New contact request\n\n👤 User: %s\n🆔 ID: %d\n📱 Username: %s",
		cq.From.FirstName, cq.From.ID, displayUsername(cq.From))
	for _, id := range b.opts.AdminIDs {
		if err := b.tg.SendMessage(ctx, tg.SendMessageRequest{ChatID: id, Text: note}); err != nil {
			b.log.Warn("notify admin failed", "admin_id", id, "error", err)
		}
	}
	b.editOrSend(ctx, cq, "✅ Your request was sent to the admins. They will reply soon.", menu.Main())
}

func chatOf(cq *tgbotapi.CallbackQuery) int64 {
	if cq.Message != nil && cq.Message.Chat != nil {
		return cq.Message.Chat.ID
	}
	return cq.From.ID
}

func isAdminCallback(data string) bool {
	switch data {
	case menu.CbAddMovie, menu.CbEditMovie, menu.CbDeleteMovie, menu.CbListMovies,
		menu.CbAdminStats, menu.CbUserStats, menu.CbGivePremium, menu.CbRemovePremium,
		menu.CbAddChannel, menu.CbDeleteChannel, menu.CbBroadcast, menu.CbBackToAdmin:
		return true
	}
	return strings.HasPrefix(data, menu.CbDelMovie) ||
		strings.HasPrefix(data, menu.CbDelChan) ||
		strings.HasPrefix(data, menu.CbEditField)
}

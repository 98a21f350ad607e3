// Package menu builds the fixed inline keyboards shown to users and admins.
package menu

import (
	"fmt"
	"net/url"

	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

// Callback payloads understood by the dispatcher.
const (
	CbPick          = "pick:"
	CbCheckSub      = "check_sub"
	CbSearch        = "search_movie"
	CbRandom        = "random_movies"
	CbBuyPremium    = "buy_premium"
	CbPremium       = "premium:"
	CbContactAdmin  = "contact_admin"
	CbMainMenu      = "main_menu"
	CbAddMovie      = "add_movie"
	CbEditMovie     = "edit_movie"
	CbDeleteMovie   = "delete_movie"
	CbDelMovie      = "delmovie:"
	CbListMovies    = "list_movies"
	CbAdminStats    = "admin_stats"
	CbUserStats     = "user_stats"
	CbGivePremium   = "give_premium"
	CbRemovePremium = "remove_premium"
	CbAddChannel    = "add_channel"
	CbDeleteChannel = "delete_channel"
	CbDelChan       = "delchan:"
	CbBroadcast     = "broadcast"
	CbEditField     = "editfield:"
	CbBackToAdmin   = "back_to_admin"
)

func markup(rows ...[]tg.InlineKeyboardButton) *tg.InlineKeyboardMarkup {
	kb := tg.NewInlineKeyboardMarkup(rows)
	return &kb
}

func mainMenuRow() []tg.InlineKeyboardButton {
	return tg.Row(tg.DataButton("🏠 Main menu", CbMainMenu))
}

func backToAdminRow() []tg.InlineKeyboardButton {
	return tg.Row(tg.DataButton("◀️ Back", CbBackToAdmin))
}

func Main() *tg.InlineKeyboardMarkup {
	return markup(
		tg.Row(tg.DataButton("🔍 Search by code", CbSearch), tg.DataButton("🎲 Random movies", CbRandom)),
		tg.Row(tg.DataButton("💎 Premium", CbBuyPremium), tg.DataButton("📞 Admin", CbContactAdmin)),
	)
}

func AdminPanel() *tg.InlineKeyboardMarkup {
	return markup(
		tg.Row(tg.DataButton("➕ Add movie", CbAddMovie), tg.DataButton("✏️ Edit movie", CbEditMovie)),
		tg.Row(tg.DataButton("🗑 Delete movie", CbDeleteMovie), tg.DataButton("📋 Movie list", CbListMovies)),
		tg.Row(tg.DataButton("📊 Statistics", CbAdminStats), tg.DataButton("👥 Users", CbUserStats)),
		tg.Row(tg.DataButton("➕ Add channel", CbAddChannel), tg.DataButton("🗑 Delete channel", CbDeleteChannel)),
		tg.Row(tg.DataButton("💎 Give premium", CbGivePremium), tg.DataButton("🚫 Remove premium", CbRemovePremium)),
		tg.Row(tg.DataButton("📢 Broadcast", CbBroadcast)),
		mainMenuRow(),
	)
}

func NotFound() *tg.InlineKeyboardMarkup {
	return markup(
		tg.Row(tg.DataButton("🔍 Another code", CbSearch), tg.DataButton("📞 Admin", CbContactAdmin)),
		tg.Row(tg.DataButton("💎 Premium", CbBuyPremium)),
		mainMenuRow(),
	)
}

// ForceSubscribe shows one join button per gating channel followed by the
// re-check, premium and menu buttons.
func ForceSubscribe(channels []storage.GatingChannel) *tg.InlineKeyboardMarkup {
	rows := make([][]tg.InlineKeyboardButton, 0, len(channels)+3)
	for _, ch := range channels {
		rows = append(rows, tg.Row(tg.URLButton(fmt.Sprintf("📢 Join %s", ch.Identifier), ch.InviteLink)))
	}
	rows = append(rows,
		tg.Row(tg.DataButton("✅ Check again", CbCheckSub)),
		tg.Row(tg.DataButton("💎 Buy premium", CbBuyPremium)),
		mainMenuRow(),
	)
	return markup(rows...)
}

// PremiumPlans lists the plans of PremiumPrices.
func PremiumPlans() *tg.InlineKeyboardMarkup {
	rows := make([][]tg.InlineKeyboardButton, 0, len(PlanMonths)+1)
	for _, m := range PlanMonths {
		rows = append(rows, tg.Row(tg.DataButton(
			fmt.Sprintf("💎 %d mo - %s so'm", m, FormatPrice(PremiumPrice(m))),
			fmt.Sprintf("%s%d", CbPremium, m),
		)))
	}
	rows = append(rows, tg.Row(tg.DataButton("◀️ Back", CbMainMenu)))
	return markup(rows...)
}

func PremiumPlan() *tg.InlineKeyboardMarkup {
	return markup(
		tg.Row(tg.DataButton("📞 Admin", CbContactAdmin)),
		tg.Row(tg.DataButton("◀️ Back", CbBuyPremium)),
	)
}

func EditFields() *tg.InlineKeyboardMarkup {
	return markup(
		tg.Row(tg.DataButton("📝 Name", CbEditField+string(storage.FieldName)), tg.DataButton("📄 Description", CbEditField+string(storage.FieldDesc))),
		tg.Row(tg.DataButton("📁 File ID", CbEditField+string(storage.FieldFileID)), tg.DataButton("🎞 Type", CbEditField+string(storage.FieldKind))),
		tg.Row(tg.DataButton("🔗 Parent code", CbEditField+string(storage.FieldParent))),
		backToAdminRow(),
	)
}

// MovieActions is attached to delivered content. It carries a share link when
// the bot username is known.
func MovieActions(code, botUsername string) *tg.InlineKeyboardMarkup {
	rows := [][]tg.InlineKeyboardButton{}
	if botUsername != "" {
		rows = append(rows, tg.Row(tg.URLButton("📤 Share", ShareURL(botUsername, code))))
	}
	rows = append(rows, mainMenuRow())
	return markup(rows...)
}

// DeepLink is the /start link that opens the bot on code.
func DeepLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=cinema_%s", botUsername, storage.NormalizeCode(code))
}

func ShareURL(botUsername, code string) string {
	return "https://t.me/share/url?url=" + url.QueryEscape(DeepLink(botUsername, code))
}

var PlanMonths = []int{1, 3, 6, 12}

var premiumPrices = map[int]int{1: 5000, 3: 14000, 6: 27000, 12: 50000}

// PremiumPrice returns the price in so'm. Unlisted durations cost as much as
// one month.
func PremiumPrice(months int) int {
	if p, ok := premiumPrices[months]; ok {
		return p
	}
	return premiumPrices[1]
}

// FormatPrice groups thousands with commas.
func FormatPrice(n int) string {
	s := fmt.Sprintf("%d", n)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}

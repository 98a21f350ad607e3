package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/menu"
	"kinobot/internal/premium"
	"kinobot/internal/session"
	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

const errText = "❌ Something went wrong. Please try again later."

func (b *Bot) cmdAdmin(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		b.reply(ctx, msg.Chat.ID, "❌ You don't have admin rights.", nil)
		return
	}
	b.setState(ctx, msg.From.ID, session.Idle{})
	b.reply(ctx, msg.Chat.ID, "✅ Admin panel:", menu.AdminPanel())
}

func (b *Bot) handleAdminCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	uid := cq.From.ID
	data := cq.Data
	switch {
	case data == menu.CbAddMovie:
		b.setState(ctx, uid, session.AddCode{})
		b.editOrSend(ctx, cq, "🆔 Send the code of the new movie:", nil)
	case data == menu.CbEditMovie:
		b.setState(ctx, uid, session.EditCode{})
		b.editOrSend(ctx, cq, "✏️ Send the code of the movie to edit:", nil)
	case data == menu.CbDeleteMovie:
		b.setState(ctx, uid, session.Delete{})
		movies, err := b.store.ListMovies(ctx, b.opts.MovieListLimit)
		if err != nil {
			b.log.Error("list movies failed", "error", err)
		}
		b.editOrSend(ctx, cq, "🗑 Send the code to delete, or pick it below:", storage.DeleteMoviesKeyboard(movies))
	case strings.HasPrefix(data, menu.CbDelMovie):
		b.deleteMovie(ctx, uid, uid, strings.TrimPrefix(data, menu.CbDelMovie))
	case data == menu.CbListMovies:
		b.editOrSend(ctx, cq, b.movieListText(ctx), menu.AdminPanel())
	case data == menu.CbAdminStats:
		b.editOrSend(ctx, cq, b.adminStatsText(ctx), menu.AdminPanel())
	case data == menu.CbUserStats:
		b.editOrSend(ctx, cq, b.userStatsText(ctx), menu.AdminPanel())
	case data == menu.CbGivePremium:
		b.setState(ctx, uid, session.GrantPremiumID{})
		b.editOrSend(ctx, cq, "💎 Send the user ID (or @username):", nil)
	case data == menu.CbRemovePremium:
		b.setState(ctx, uid, session.RevokePremiumID{})
		b.editOrSend(ctx, cq, "🚫 Send the user ID to remove premium from:", nil)
	case data == menu.CbAddChannel:
		b.setState(ctx, uid, session.AddChannelID{})
		b.editOrSend(ctx, cq, "📢 Send the channel ID (e.g. @channel or -100...):", nil)
	case data == menu.CbDeleteChannel:
		channels, err := b.store.Channels(ctx)
		if err != nil {
			b.log.Error("list gating channels failed", "error", err)
			b.editOrSend(ctx, cq, errText, menu.AdminPanel())
			return
		}
		if len(channels) == 0 {
			b.editOrSend(ctx, cq, "⚠️ No channels registered.", menu.AdminPanel())
			return
		}
		b.editOrSend(ctx, cq, "🗑 Pick the channel to delete:", storage.DeleteChannelsKeyboard(channels))
	case strings.HasPrefix(data, menu.CbDelChan):
		b.deleteChannel(ctx, cq, strings.TrimPrefix(data, menu.CbDelChan))
	case data == menu.CbBroadcast:
		b.setState(ctx, uid, session.AwaitBroadcast{})
		b.editOrSend(ctx, cq, "📢 Send the message to broadcast (text, photo, video or document):", nil)
	case strings.HasPrefix(data, menu.CbEditField):
		b.pickEditField(ctx, cq, strings.TrimPrefix(data, menu.CbEditField))
	case data == menu.CbBackToAdmin:
		b.setState(ctx, uid, session.Idle{})
		b.editOrSend(ctx, cq, "✅ Admin panel:", menu.AdminPanel())
	default:
		b.log.Debug("unknown admin callback", "user_id", uid, "data", data)
	}
}

func (b *Bot) pickEditField(ctx context.Context, cq *tgbotapi.CallbackQuery, raw string) {
	uid := cq.From.ID
	var code string
	switch st := b.session(ctx, uid).Current().(type) {
	case session.EditField:
		code = st.Code
	case session.EditValue:
		code = st.Code
	}
	if code == "" {
		b.setState(ctx, uid, session.EditCode{})
		b.editOrSend(ctx, cq, "✏️ Send the code of the movie to edit first:", nil)
		return
	}
	field, ok := storage.ParseMovieField(raw)
	if !ok {
		b.editOrSend(ctx, cq, "⚠️ Unknown field. Pick one below:", menu.EditFields())
		return
	}
	b.setState(ctx, uid, session.EditValue{Code: code, Field: string(field)})
	text := fmt.Sprintf("✏️ Send the new value for %s of %s:", field, code)
	switch field {
	case storage.FieldKind:
		text += "\n(video, photo, document or text)"
	case storage.FieldParent:
		text += "\n(send - to clear it)"
	}
	b.editOrSend(ctx, cq, text, nil)
}

func (b *Bot) deleteMovie(ctx context.Context, uid, chatID int64, raw string) {
	code := storage.NormalizeCode(raw)
	if code == "" {
		b.reply(ctx, chatID, "⚠️ The code must not be empty.", nil)
		return
	}
	if _, ok := b.session(ctx, uid).Current().(session.Delete); ok {
		b.setState(ctx, uid, session.Idle{})
	}
	ok, err := b.store.DeleteMovie(ctx, code)
	switch {
	case err != nil:
		b.log.Error("delete movie failed", "code", code, "error", err)
		b.reply(ctx, chatID, errText, menu.AdminPanel())
	case !ok:
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ No movie with code %s.", code), menu.AdminPanel())
	default:
		b.log.Info("movie deleted", "code", code, "admin_id", uid)
		b.reply(ctx, chatID, fmt.Sprintf("✅ Movie %s deleted.", code), menu.AdminPanel())
	}
}

func (b *Bot) deleteChannel(ctx context.Context, cq *tgbotapi.CallbackQuery, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		b.editOrSend(ctx, cq, "⚠️ Unknown channel.", menu.AdminPanel())
		return
	}
	ok, err := b.store.RemoveChannel(ctx, id)
	switch {
	case err != nil:
		b.log.Error("remove channel failed", "id", id, "error", err)
		b.editOrSend(ctx, cq, errText, menu.AdminPanel())
	case !ok:
		b.editOrSend(ctx, cq, "⚠️ Channel not found.", menu.AdminPanel())
	default:
		b.log.Info("gating channel removed", "id", id, "admin_id", cq.From.ID)
		b.editOrSend(ctx, cq, "✅ Channel deleted.", menu.AdminPanel())
	}
}

func (b *Bot) movieListText(ctx context.Context) string {
	movies, err := b.store.ListMovies(ctx, b.opts.MovieListLimit)
	if err != nil {
		b.log.Error("list movies failed", "error", err)
		return errText
	}
	if len(movies) == 0 {
		return "⚠️ No movies yet."
	}
	stats, err := b.store.MovieStats(ctx)
	if err != nil {
		b.log.Warn("movie stats failed", "error", err)
		stats.Total = int64(len(movies))
	}
	var sb strings.Builder
	sb.WriteString("📋 Movies:\n\n")
	for _, m := range movies {
		fmt.Fprintf(&sb, "🆔 %s - %s | 👁️ %d\n", m.Code, m.Title(), m.Views)
	}
	if more := stats.Total - int64(len(movies)); more > 0 {
		fmt.Fprintf(&sb, "\n...and %d more", more)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) adminStatsText(ctx context.Context) string {
	users, err := b.store.UserStats(ctx)
	if err != nil {
		b.log.Error("user stats failed", "error", err)
		return errText
	}
	movies, err := b.store.MovieStats(ctx)
	if err != nil {
		b.log.Error("movie stats failed", "error", err)
		return errText
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Statistics\n\n👥 Users: %d\n💎 Premium: %d\n🎬 Movies: %d\n", users.Total, users.Premium, movies.Total)
	for _, k := range storage.ContentKinds {
		fmt.Fprintf(&sb, "  • %s: %d\n", k, movies.ByKind[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) userStatsText(ctx context.Context) string {
	users, err := b.store.UserStats(ctx)
	if err != nil {
		b.log.Error("user stats failed", "error", err)
		return errText
	}
	return fmt.Sprintf("👥 Users\n\nTotal: %d\n💎 Premium: %d\n👤 Regular: %d",
		users.Total, users.Premium, users.Total-users.Premium)
}

// handleAdminMessage advances the admin's current action with msg.
func (b *Bot) handleAdminMessage(ctx context.Context, msg *tgbotapi.Message) {
	uid, chatID := msg.From.ID, msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	cur := b.session(ctx, uid).Current()
	switch st := cur.(type) {
	case session.AwaitBroadcast:
		b.runBroadcast(ctx, msg)
		return
	case session.AddFile:
		b.addFile(ctx, msg, st)
		return
	case session.Idle:
		if msg.Text != "" {
			b.handleCodeText(ctx, msg)
		}
		return
	}
	if msg.Text == "" {
		return
	}

	switch st := cur.(type) {
	case session.AddCode:
		code := storage.NormalizeCode(text)
		if code == "" {
			b.reply(ctx, chatID, "⚠️ The code must not be empty. Send the code:", nil)
			return
		}
		if !storage.ValidCode(code) {
			b.reply(ctx, chatID, fmt.Sprintf("⚠️ The code is too long (max %d bytes). Send a shorter code:", storage.MaxCodeBytes), nil)
			return
		}
		existing, err := b.store.GetMovie(ctx, code)
		if err != nil {
			b.log.Error("get movie failed", "code", code, "error", err)
			b.reply(ctx, chatID, errText, nil)
			return
		}
		if existing != nil {
			b.reply(ctx, chatID, fmt.Sprintf("⚠️ Code %s already exists. Send another code:", code), nil)
			return
		}
		b.setState(ctx, uid, session.AddName{Code: code})
		b.reply(ctx, chatID, "📝 Send the movie name:", nil)

	case session.AddName:
		if text == "" {
			b.reply(ctx, chatID, "⚠️ The name must not be empty. Send the name:", nil)
			return
		}
		b.setState(ctx, uid, session.AddDesc{Code: st.Code, Name: text})
		b.reply(ctx, chatID, "📄 Send the description:", nil)

	case session.AddDesc:
		if text == "" {
			b.reply(ctx, chatID, "⚠️ The description must not be empty. Send the description:", nil)
			return
		}
		b.setState(ctx, uid, session.AddParent{Code: st.Code, Name: st.Name, Desc: text})
		b.reply(ctx, chatID, "🔗 Send the parent code if this is an episode, or - if it is not:", nil)

	case session.AddParent:
		parent := storage.NormalizeParent(text)
		if parent != nil && *parent == st.Code {
			b.reply(ctx, chatID, "⚠️ A movie cannot be its own parent. Send another parent code or -:", nil)
			return
		}
		b.setState(ctx, uid, session.AddFile{Code: st.Code, Name: st.Name, Desc: st.Desc, Parent: parent})
		b.reply(ctx, chatID, "📁 Now send the video file:", nil)

	case session.Delete:
		b.deleteMovie(ctx, uid, chatID, text)

	case session.EditCode:
		b.editCode(ctx, uid, chatID, text)

	case session.EditField:
		b.reply(ctx, chatID, fmt.Sprintf("✏️ Pick the field of %s to edit:", st.Code), menu.EditFields())

	case session.EditValue:
		b.editValue(ctx, uid, chatID, st, text)

	case session.AddChannelID:
		if text == "" {
			b.reply(ctx, chatID, "⚠️ Send the channel ID:", nil)
			return
		}
		b.setState(ctx, uid, session.AddChannelLink{ChannelID: text})
		b.reply(ctx, chatID, "🔗 Send the invite link of the channel:", nil)

	case session.AddChannelLink:
		if text == "" {
			b.reply(ctx, chatID, "⚠️ Send the invite link:", nil)
			return
		}
		added, err := b.store.AddChannel(ctx, st.ChannelID, text)
		if err != nil {
			b.log.Error("add channel failed", "channel", st.ChannelID, "error", err)
			b.reply(ctx, chatID, errText, nil)
			return
		}
		b.setState(ctx, uid, session.Idle{})
		if !added {
			b.reply(ctx, chatID, fmt.Sprintf("⚠️ Channel %s is already registered.", st.ChannelID), menu.AdminPanel())
			return
		}
		b.log.Info("gating channel added", "channel", st.ChannelID, "admin_id", uid)
		b.reply(ctx, chatID, fmt.Sprintf("✅ Channel %s added.", st.ChannelID), menu.AdminPanel())

	case session.GrantPremiumID:
		if strings.HasPrefix(text, "@") && len(text) > 1 {
			b.setState(ctx, uid, session.GrantPremiumMonths{Username: text[1:]})
			b.reply(ctx, chatID, "📅 How many months? (1-120)", nil)
			return
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			b.reply(ctx, chatID, "⚠️ Send a numeric user ID or @username:", nil)
			return
		}
		b.setState(ctx, uid, session.GrantPremiumMonths{UserID: id})
		b.reply(ctx, chatID, "📅 How many months? (1-120)", nil)

	case session.GrantPremiumMonths:
		b.grantPremium(ctx, uid, chatID, st, text)

	case session.RevokePremiumID:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			b.reply(ctx, chatID, "⚠️ Send a numeric user ID:", nil)
			return
		}
		ok, err := b.premium.Revoke(ctx, id)
		if err != nil {
			b.log.Error("revoke premium failed", "user_id", id, "error", err)
			b.reply(ctx, chatID, errText, nil)
			return
		}
		if !ok {
			b.reply(ctx, chatID, fmt.Sprintf("⚠️ User %d not found. Send another ID:", id), nil)
			return
		}
		b.setState(ctx, uid, session.Idle{})
		b.reply(ctx, chatID, fmt.Sprintf("✅ Premium removed from %d.", id), menu.AdminPanel())
	}
}

func (b *Bot) addFile(ctx context.Context, msg *tgbotapi.Message, st session.AddFile) {
	uid, chatID := msg.From.ID, msg.Chat.ID
	fileID, kind := mediaOf(msg)
	if fileID == "" {
		b.reply(ctx, chatID, "⚠️ Please send a video file.", nil)
		return
	}
	m := &storage.Movie{
		Code:        st.Code,
		Name:        st.Name,
		Description: st.Desc,
		Kind:        kind,
		FileRef:     fileID,
		ParentCode:  st.Parent,
	}
	err := b.store.AddMovie(ctx, m)
	if errors.Is(err, storage.ErrDuplicateCode) {
		b.setState(ctx, uid, session.Idle{})
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ Code %s already exists. Start over.", st.Code), menu.AdminPanel())
		return
	}
	if errors.Is(err, storage.ErrInvalidMovie) {
		b.log.Warn("movie rejected", "code", st.Code, "error", err)
		b.setState(ctx, uid, session.AddCode{})
		b.reply(ctx, chatID, "⚠️ The movie could not be saved with this code. Send another code:", nil)
		return
	}
	if err != nil {
		b.log.Error("add movie failed", "code", st.Code, "error", err)
		b.reply(ctx, chatID, errText, nil)
		return
	}
	b.setState(ctx, uid, session.Idle{})
	b.log.Info("movie added", "code", m.Code, "type", m.Kind, "admin_id", uid)
	b.reply(ctx, chatID, fmt.Sprintf("✅ Movie added.\n🆔 Code: %s\n🎬 %s", m.Code, m.Name), menu.AdminPanel())
}

func mediaOf(msg *tgbotapi.Message) (string, storage.ContentKind) {
	switch {
	case msg.Video != nil:
		return msg.Video.FileID, storage.KindVideo
	case msg.Document != nil:
		return msg.Document.FileID, storage.KindDocument
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID, storage.KindPhoto
	}
	return "", ""
}

func (b *Bot) editCode(ctx context.Context, uid, chatID int64, text string) {
	code := storage.NormalizeCode(text)
	if code == "" {
		b.reply(ctx, chatID, "⚠️ The code must not be empty. Send the code:", nil)
		return
	}
	m, err := b.store.GetMovie(ctx, code)
	if err != nil {
		b.log.Error("get movie failed", "code", code, "error", err)
		b.reply(ctx, chatID, errText, nil)
		return
	}
	if m == nil {
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ No movie with code %s. Send another code:", code), nil)
		return
	}
	b.setState(ctx, uid, session.EditField{Code: code})
	b.reply(ctx, chatID, fmt.Sprintf("✏️ %s - %s\nPick the field to edit:", m.Code, m.Title()), menu.EditFields())
}

func (b *Bot) editValue(ctx context.Context, uid, chatID int64, st session.EditValue, text string) {
	field, ok := storage.ParseMovieField(st.Field)
	if !ok {
		b.setState(ctx, uid, session.EditField{Code: st.Code})
		b.reply(ctx, chatID, "⚠️ Unknown field. Pick one below:", menu.EditFields())
		return
	}
	switch field {
	case storage.FieldName, storage.FieldDesc, storage.FieldFileID:
		if text == "" {
			b.reply(ctx, chatID, "⚠️ The value must not be empty. Send it again:", nil)
			return
		}
	case storage.FieldKind:
		if _, ok := storage.ParseContentKind(text); !ok {
			b.reply(ctx, chatID, "⚠️ Type must be video, photo, document or text. Send it again:", nil)
			return
		}
	case storage.FieldParent:
		if p := storage.NormalizeParent(text); p != nil && *p == st.Code {
			b.reply(ctx, chatID, "⚠️ A movie cannot be its own parent. Send another parent code or -:", nil)
			return
		}
	}
	updated, err := b.store.UpdateMovieField(ctx, st.Code, field, &text)
	if errors.Is(err, storage.ErrInvalidField) {
		b.reply(ctx, chatID, "⚠️ Invalid value. Send it again:", nil)
		return
	}
	if err != nil {
		b.log.Error("update movie failed", "code", st.Code, "field", field, "error", err)
		b.reply(ctx, chatID, errText, nil)
		return
	}
	b.setState(ctx, uid, session.Idle{})
	if !updated {
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ No movie with code %s.", st.Code), menu.AdminPanel())
		return
	}
	b.log.Info("movie updated", "code", st.Code, "field", field, "admin_id", uid)
	b.reply(ctx, chatID, fmt.Sprintf("✅ %s of %s updated.", field, st.Code), menu.AdminPanel())
}

func (b *Bot) grantPremium(ctx context.Context, uid, chatID int64, st session.GrantPremiumMonths, text string) {
	months, err := strconv.Atoi(text)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Send the number of months:", nil)
		return
	}
	if months < premium.MinMonths || months > premium.MaxMonths {
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ Months must be between %d and %d. Send it again:", premium.MinMonths, premium.MaxMonths), nil)
		return
	}
	if st.Username != "" {
		b.setState(ctx, uid, session.Idle{})
		b.reply(ctx, chatID, fmt.Sprintf("⚠️ Premium cannot be granted by username (@%s). Ask the user for their numeric ID; it is shown in the premium menu.", st.Username), menu.AdminPanel())
		return
	}
	until, err := b.premium.Grant(ctx, st.UserID, months)
	if err != nil {
		b.log.Error("grant premium failed", "user_id", st.UserID, "error", err)
		b.reply(ctx, chatID, errText, nil)
		return
	}
	b.setState(ctx, uid, session.Idle{})
	b.reply(ctx, chatID, fmt.Sprintf("✅ Premium granted to %d for %d month(s), until %s.", st.UserID, months, until.Format("2006-01-02")), menu.AdminPanel())

	note := fmt.Sprintf("🎉 You now have premium for %d month(s)!\n📅 Until: %s", months, until.Format("2006-01-02"))
	if err := b.tg.SendMessage(ctx, tg.SendMessageRequest{ChatID: st.UserID, Text: note}); err != nil {
		b.log.Debug("notify premium user failed", "user_id", st.UserID, "error", err)
	}
}

func (b *Bot) runBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	uid, chatID := msg.From.ID, msg.Chat.ID
	b.setState(ctx, uid, session.Idle{})
	ids, err := b.store.AllUserIDs(ctx)
	if err != nil {
		b.log.Error("list users failed", "error", err)
		b.reply(ctx, chatID, errText, menu.AdminPanel())
		return
	}
	if len(ids) == 0 {
		b.reply(ctx, chatID, "⚠️ No users yet.", menu.AdminPanel())
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("📤 Broadcasting to %d users...", len(ids)), nil)
	res := b.caster.Run(ctx, chatID, msg.MessageID, ids)
	b.reply(ctx, chatID, fmt.Sprintf("✅ Broadcast finished.\n📤 Sent: %d\n❌ Failed: %d", res.Sent, res.Failed), menu.AdminPanel())
}

package tg

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client is a thin context-aware facade over the Bot API library. Every method
// takes a request struct (or a few ids) and returns the transport error as is.
type Client struct {
	api *tgbotapi.BotAPI
}

func NewClient(token string) (*Client, error) {
	// long polling holds requests open for up to a minute
	hc := &http.Client{Timeout: 75 * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram api getMe: %w", err)
	}
	return &Client{api: api}, nil
}

func (c *Client) Username() string {
	return c.api.Self.UserName
}

type SendMessageRequest struct {
	ChatID      int64
	Text        string
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	msg := tgbotapi.NewMessage(req.ChatID, req.Text)
	if req.ReplyMarkup != nil {
		msg.ReplyMarkup = *req.ReplyMarkup
	}
	return c.send(ctx, "sendMessage", msg)
}

// SendMediaRequest addresses an already uploaded file by its file id.
type SendMediaRequest struct {
	ChatID      int64
	FileID      string
	Caption     string
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) SendVideo(ctx context.Context, req SendMediaRequest) error {
	cfg := tgbotapi.NewVideo(req.ChatID, tgbotapi.FileID(req.FileID))
	cfg.Caption = req.Caption
	if req.ReplyMarkup != nil {
		cfg.ReplyMarkup = *req.ReplyMarkup
	}
	return c.send(ctx, "sendVideo", cfg)
}

func (c *Client) SendPhoto(ctx context.Context, req SendMediaRequest) error {
	cfg := tgbotapi.NewPhoto(req.ChatID, tgbotapi.FileID(req.FileID))
	cfg.Caption = req.Caption
	if req.ReplyMarkup != nil {
		cfg.ReplyMarkup = *req.ReplyMarkup
	}
	return c.send(ctx, "sendPhoto", cfg)
}

func (c *Client) SendDocument(ctx context.Context, req SendMediaRequest) error {
	cfg := tgbotapi.NewDocument(req.ChatID, tgbotapi.FileID(req.FileID))
	cfg.Caption = req.Caption
	if req.ReplyMarkup != nil {
		cfg.ReplyMarkup = *req.ReplyMarkup
	}
	return c.send(ctx, "sendDocument", cfg)
}

type EditMessageTextRequest struct {
	ChatID      int64
	MessageID   int
	Text        string
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	cfg := tgbotapi.NewEditMessageText(req.ChatID, req.MessageID, req.Text)
	cfg.ReplyMarkup = req.ReplyMarkup
	return c.send(ctx, "editMessageText", cfg)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackQueryID, text)); err != nil {
		return fmt.Errorf("telegram api answerCallbackQuery: %w", err)
	}
	return nil
}

func (c *Client) CopyMessage(ctx context.Context, toChatID int64, fromChatID int64, messageID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := c.api.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, fmt.Errorf("telegram api copyMessage: %w", err)
	}
	return id.MessageID, nil
}

// ChatMemberStatus reports the membership status ("member", "left", ...) of
// userID in channel. channel is either a numeric chat id or a public @username.
func (c *Client) ChatMemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg := tgbotapi.GetChatMemberConfig{ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: userID}}
	channel = strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		if !strings.HasPrefix(channel, "@") {
			channel = "@" + channel
		}
		cfg.SuperGroupUsername = channel
	}
	member, err := c.api.GetChatMember(cfg)
	if err != nil {
		return "", fmt.Errorf("telegram api getChatMember %s: %w", channel, err)
	}
	return member.Status, nil
}

func (c *Client) SetWebhook(ctx context.Context, url string, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := tgbotapi.Params{"url": url}
	if secret != "" {
		params["secret_token"] = secret
	}
	params.AddNonEmpty("allowed_updates", `["message","callback_query"]`)
	if _, err := c.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram api setWebhook: %w", err)
	}
	return nil
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("telegram api deleteWebhook: %w", err)
	}
	return nil
}

// Updates starts long polling. The channel is closed by StopUpdates.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}
	return c.api.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *Client) send(ctx context.Context, method string, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram api %s: %w", method, err)
	}
	return nil
}

package tg

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

type InlineKeyboardButton = tgbotapi.InlineKeyboardButton

type InlineKeyboardMarkup = tgbotapi.InlineKeyboardMarkup

func NewInlineKeyboardMarkup(rows [][]InlineKeyboardButton) InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func DataButton(text, data string) InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func URLButton(text, url string) InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonURL(text, url)
}

// Row is shorthand for a keyboard row.
func Row(buttons ...InlineKeyboardButton) []InlineKeyboardButton {
	return buttons
}

package storage

import (
	"fmt"

	"kinobot/internal/tg"
)

// NumberedKeyboard lays out one button per movie, five to a row, labelled by
// list position. Pressing a button picks the movie by code.
func NumberedKeyboard(movies []Movie) *tg.InlineKeyboardMarkup {
	if len(movies) == 0 {
		return nil
	}
	buttons := make([]tg.InlineKeyboardButton, 0, len(movies))
	for i, m := range movies {
		buttons = append(buttons, tg.DataButton(fmt.Sprintf("%d", i+1), "pick:"+m.Code))
	}
	rows := append(chunkRows(buttons, 5), tg.Row(tg.DataButton("🏠 Main menu", "main_menu")))
	kb := tg.NewInlineKeyboardMarkup(rows)
	return &kb
}

func DeleteMoviesKeyboard(movies []Movie) *tg.InlineKeyboardMarkup {
	if len(movies) == 0 {
		return nil
	}
	buttons := make([]tg.InlineKeyboardButton, 0, len(movies))
	for _, m := range movies {
		buttons = append(buttons, tg.DataButton("🗑 "+m.Code, "delmovie:"+m.Code))
	}
	rows := append(chunkRows(buttons, 3), backToAdmin())
	kb := tg.NewInlineKeyboardMarkup(rows)
	return &kb
}

func DeleteChannelsKeyboard(channels []GatingChannel) *tg.InlineKeyboardMarkup {
	if len(channels) == 0 {
		return nil
	}
	rows := make([][]tg.InlineKeyboardButton, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, tg.Row(tg.DataButton("❌ "+ch.Identifier, fmt.Sprintf("delchan:%d", ch.ID))))
	}
	rows = append(rows, backToAdmin())
	kb := tg.NewInlineKeyboardMarkup(rows)
	return &kb
}

func backToAdmin() []tg.InlineKeyboardButton {
	return tg.Row(tg.DataButton("◀️ Back", "back_to_admin"))
}

func chunkRows(buttons []tg.InlineKeyboardButton, perRow int) [][]tg.InlineKeyboardButton {
	rows := make([][]tg.InlineKeyboardButton, 0, len(buttons)/perRow+1)
	row := []tg.InlineKeyboardButton{}
	for _, b := range buttons {
		row = append(row, b)
		if len(row) == perRow {
			rows = append(rows, row)
			row = []tg.InlineKeyboardButton{}
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

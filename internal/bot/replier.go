package bot

import (
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"
	"github.com/m3rciful/receiptbot/core/telegram/keyboard"
	"github.com/m3rciful/receiptbot/internal/navigation"

	tele "gopkg.in/telebot.v4"
)

// chatReplier delivers navigation output to the chat of one update.
type chatReplier struct {
	c tele.Context
}

func (r chatReplier) Send(text string, kb *navigation.Keyboard) error {
	if kb == nil {
		return tghelpers.SendText(r.c, text)
	}
	return tghelpers.SendText(r.c, text, &tele.SendOptions{ReplyMarkup: markup(kb)})
}

// Edit rewrites the message carrying the pressed inline button. Reply keyboards
// cannot be attached by an edit, so those replies are sent as new messages.
func (r chatReplier) Edit(text string, kb *navigation.Keyboard) error {
	if r.c.Callback() == nil || (kb != nil && !kb.Inline) {
		return r.Send(text, kb)
	}
	return tghelpers.EditText(r.c, text, markup(kb))
}

func (r chatReplier) SendFile(path string) error {
	return tghelpers.SendPhoto(r.c, path)
}

func markup(kb *navigation.Keyboard) *tele.ReplyMarkup {
	if kb == nil {
		return nil
	}
	if kb.Inline {
		rows := make([][]keyboard.InlineBtn, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			btns := make([]keyboard.InlineBtn, 0, len(row))
			for _, b := range row {
				btns = append(btns, keyboard.InlineBtn{Text: b.Label, Data: b.Callback})
			}
			rows = append(rows, btns)
		}
		return keyboard.InlineButtonsRows(rows...)
	}
	rows := make([][]string, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		labels := make([]string, 0, len(row))
		for _, b := range row {
			labels = append(labels, b.Label)
		}
		rows = append(rows, labels)
	}
	return keyboard.ReplyButtons(rows...)
}

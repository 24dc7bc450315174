package bot

import (
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const unknownText = "Please use the menu buttons. Send /start to open the main menu."

func (a *App) handleStart(c tele.Context) error {
	uid, ok := userID(c)
	if !ok {
		return nil
	}
	return a.machine.Start(contextOf(c), uid, chatReplier{c})
}

func (a *App) handleCancel(c tele.Context) error {
	uid, ok := userID(c)
	if !ok {
		return nil
	}
	return a.machine.Cancel(contextOf(c), uid, chatReplier{c})
}

func (a *App) handleStatus(c tele.Context) error {
	return tghelpers.SendText(c, a.status(contextOf(c)).String())
}

func (a *App) handleUnknown(c tele.Context) error {
	return tghelpers.SendText(c, unknownText)
}

func (a *App) callbackHandler(id string) tele.HandlerFunc {
	return func(c tele.Context) error {
		uid, ok := userID(c)
		if !ok {
			return nil
		}
		_, err := a.machine.HandleCallback(contextOf(c), uid, id, chatReplier{c})
		return err
	}
}

// conversation feeds non-command updates to the navigation machine.
type conversation struct {
	app *App
}

func (v conversation) HandleText(c tele.Context) (bool, error) {
	uid, ok := userID(c)
	if !ok {
		return false, nil
	}
	return v.app.machine.HandleText(contextOf(c), uid, c.Text(), chatReplier{c})
}

// HandleMedia answers a pending prompt with empty text; outside a flow media is not handled.
func (v conversation) HandleMedia(c tele.Context) (bool, error) {
	uid, ok := userID(c)
	if !ok {
		return false, nil
	}
	return v.app.machine.HandleText(contextOf(c), uid, "", chatReplier{c})
}

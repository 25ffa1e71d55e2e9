package app

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	tghelpers "github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/helpers"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/keyboard"
)

var errNoTransport = errors.New("app: reply outside an update context")

type teleCtxKey struct{}

// withTele carries the update's tele.Context into the dispatch context so
// replies go out through the update's chat and async helpers.
func withTele(ctx context.Context, c tele.Context) context.Context {
	return context.WithValue(ctx, teleCtxKey{}, c)
}

func teleFrom(ctx context.Context) (tele.Context, bool) {
	c, ok := ctx.Value(teleCtxKey{}).(tele.Context)
	return c, ok
}

// transportResponder delivers flow replies over Telegram. Every reply is
// produced inside an update's dispatch, so the update context always
// carries the tele.Context to answer through.
type transportResponder struct{}

func (transportResponder) Send(ctx context.Context, _ int64, reply flow.Reply) error {
	c, ok := teleFrom(ctx)
	if !ok {
		return errNoTransport
	}
	return deliver(c, reply)
}

// renderChoices maps flow choices onto an inline keyboard.
func renderChoices(choices [][]flow.Choice) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(choices))
	for _, row := range choices {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, ch := range row {
			btns = append(btns, keyboard.InlineBtn{
				Text:   ch.Label,
				Unique: ch.Key,
				Data:   ch.Payload,
			})
		}
		rows = append(rows, btns)
	}
	return keyboard.InlineButtonsRows(rows...)
}

// deliver sends a reply instruction through the update's tele.Context,
// using the shared async helpers. Edit replies fall back to a fresh
// message when the original cannot be edited.
func deliver(c tele.Context, reply flow.Reply) error {
	var markup *tele.ReplyMarkup
	if len(reply.Choices) > 0 {
		markup = renderChoices(reply.Choices)
	}
	if reply.Edit && c.Callback() != nil {
		if markup != nil {
			return tghelpers.EditOrSendMD(c, reply.Text, markup)
		}
		return tghelpers.EditOrSendMD(c, reply.Text)
	}
	if markup != nil {
		return tghelpers.SendMD(c, reply.Text, markup)
	}
	return tghelpers.SendText(c, reply.Text)
}

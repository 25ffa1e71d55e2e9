package flows

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/pricing"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/validate"
)

// Sale states.
const (
	StateSellPlatform flow.State = "platform_choice"
	StateSellTransfer flow.State = "transfer_type_choice"
	StateSellAmount   flow.State = "amount_entry"
)

// Sell builds the coin sale flow. Entry requires a completed registration;
// the quote is computed from the ledger's reference price at the moment the
// amount is accepted.
func Sell(users *storage.Users, ledger *pricing.Ledger) *flow.Definition {
	s := &sell{users: users, ledger: ledger}
	return &flow.Definition{
		Name: SellFlow,
		Entry: []flow.Rule{
			{Match: flow.OnCommand("sell"), Handle: s.start},
		},
		States: map[flow.State][]flow.Rule{
			StateSellPlatform: {
				{Match: flow.OnCallback(keyboards.KeyPlatform), Handle: s.choosePlatform},
				{Match: flow.OnText(), Handle: nudge(StateSellPlatform)},
			},
			StateSellTransfer: {
				{Match: flow.OnCallback(keyboards.KeyTransfer), Handle: s.chooseTransfer},
				{Match: flow.OnText(), Handle: nudge(StateSellTransfer)},
			},
			StateSellAmount: {
				{Match: flow.OnText(), Handle: s.enterAmount},
			},
		},
		Fallbacks: []flow.Rule{cancel()},
	}
}

type sell struct {
	users  *storage.Users
	ledger *pricing.Ledger
}

func (s *sell) start(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	u, err := s.users.Get(ctx, ev.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return flow.StateEnd, rerr
		}
		return flow.StateEnd, err
	}
	if !u.Registered() {
		if err := fr.Reply(ctx, ev.UserID, messages.SellNeedsRegistration); err != nil {
			return flow.StateEnd, err
		}
		return flow.StateEnd, nil
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.SellChoosePlatform,
		Choices: keyboards.Platforms(),
	}); err != nil {
		return flow.StateEnd, err
	}
	return StateSellPlatform, nil
}

func (s *sell) choosePlatform(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	platform, err := domain.ParsePlatform(ev.Trigger.Payload)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); rerr != nil {
			return StateSellPlatform, rerr
		}
		return StateSellPlatform, nil
	}
	fr.Bucket.Set("platform", string(platform))
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.SellChooseTransfer,
		Choices: keyboards.TransferTypes(),
	}); err != nil {
		return StateSellPlatform, err
	}
	return StateSellTransfer, nil
}

func (s *sell) chooseTransfer(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	tt, err := domain.ParseTransferType(ev.Trigger.Payload)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); rerr != nil {
			return StateSellTransfer, rerr
		}
		return StateSellTransfer, nil
	}
	fr.Bucket.Set("transfer_type", string(tt))
	if err := fr.Reply(ctx, ev.UserID, messages.SellAskAmount); err != nil {
		return StateSellTransfer, err
	}
	return StateSellAmount, nil
}

func (s *sell) enterAmount(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	amountK, err := validate.SaleAmount(ev.Trigger.Text)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, hintFor(err)); rerr != nil {
			return StateSellAmount, rerr
		}
		return StateSellAmount, nil
	}

	platform := domain.Platform(fr.Bucket.Value("platform"))
	tt := domain.TransferType(fr.Bucket.Value("transfer_type"))
	payout, err := s.ledger.Quote(ctx, platform, tt, amountK)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateSellAmount, rerr
		}
		return StateSellAmount, err
	}

	orderID := uuid.NewString()
	logger.Info(ctx, "flow", "sell.order",
		slog.Int64("user_id", ev.UserID),
		slog.String("order_id", orderID),
		slog.String("platform", string(platform)),
		slog.String("transfer_type", string(tt)),
		slog.Int64("amount", amountK),
		slog.Int64("price", payout),
	)
	if err := fr.Reply(ctx, ev.UserID, messages.OrderSummary(orderID, platform, tt, amountK, payout)); err != nil {
		return flow.StateEnd, err
	}
	return flow.StateEnd, nil
}

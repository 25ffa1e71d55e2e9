package flows

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/pricing"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/validate"
)

// Admin states.
const (
	StateAdminMenu     flow.State = "main_menu"
	StateAdminPlatform flow.State = "platform_select"
	StateAdminTransfer flow.State = "transfer_type_select"
	StateAdminPrice    flow.State = "price_entry"
)

const auditViewLimit = 10

// Admin builds the price administration flow. Entry is restricted to the
// configured administrator; everyone else gets a notice and no state.
func Admin(ledger *pricing.Ledger, adminID int64) *flow.Definition {
	a := &admin{ledger: ledger, adminID: adminID}
	return &flow.Definition{
		Name: AdminFlow,
		Entry: []flow.Rule{
			{Match: flow.OnCommand("admin"), Handle: a.start},
		},
		States: map[flow.State][]flow.Rule{
			StateAdminMenu: {
				{Match: flow.OnCallback(keyboards.KeyAdminEdit), Handle: a.editPrices},
				{Match: flow.OnCallback(keyboards.KeyAdminView), Handle: a.viewPrices},
				{Match: flow.OnCallback(keyboards.KeyAdminAudit), Handle: a.viewAudit},
				{Match: flow.OnText(), Handle: nudge(StateAdminMenu)},
			},
			StateAdminPlatform: {
				{Match: flow.OnCallback(keyboards.KeyPlatform), Handle: a.choosePlatform},
				{Match: flow.OnText(), Handle: nudge(StateAdminPlatform)},
			},
			StateAdminTransfer: {
				{Match: flow.OnCallback(keyboards.KeyTransfer), Handle: a.chooseTransfer},
				{Match: flow.OnText(), Handle: nudge(StateAdminTransfer)},
			},
			StateAdminPrice: {
				{Match: flow.OnText(), Handle: a.enterPrice},
			},
		},
		Fallbacks: []flow.Rule{cancel()},
	}
}

type admin struct {
	ledger  *pricing.Ledger
	adminID int64
}

func (a *admin) start(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	if ev.UserID != a.adminID {
		logger.Warn(ctx, "flow", "admin.denied",
			slog.Int64("user_id", ev.UserID),
		)
		if err := fr.Reply(ctx, ev.UserID, messages.AdminOnly); err != nil {
			return flow.StateEnd, err
		}
		return flow.StateEnd, &domain.UnauthorizedError{UserID: ev.UserID}
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.AdminMenu,
		Choices: keyboards.AdminMenu(),
	}); err != nil {
		return flow.StateEnd, err
	}
	return StateAdminMenu, nil
}

func (a *admin) editPrices(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.AdminChoosePlatform,
		Choices: keyboards.Platforms(),
	}); err != nil {
		return StateAdminMenu, err
	}
	return StateAdminPlatform, nil
}

func (a *admin) viewPrices(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	prices, err := a.ledger.ReadAll(ctx)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateAdminMenu, rerr
		}
		return StateAdminMenu, err
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.PriceTable(prices),
		Choices: keyboards.AdminMenu(),
	}); err != nil {
		return StateAdminMenu, err
	}
	return StateAdminMenu, nil
}

func (a *admin) viewAudit(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	entries, err := a.ledger.Audit(ctx, auditViewLimit)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateAdminMenu, rerr
		}
		return StateAdminMenu, err
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.AuditTable(entries),
		Choices: keyboards.AdminMenu(),
	}); err != nil {
		return StateAdminMenu, err
	}
	return StateAdminMenu, nil
}

func (a *admin) choosePlatform(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	platform, err := domain.ParsePlatform(ev.Trigger.Payload)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); rerr != nil {
			return StateAdminPlatform, rerr
		}
		return StateAdminPlatform, nil
	}
	fr.Bucket.Set("platform", string(platform))
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.AdminChooseTransfer,
		Choices: keyboards.TransferTypes(),
	}); err != nil {
		return StateAdminPlatform, err
	}
	return StateAdminTransfer, nil
}

func (a *admin) chooseTransfer(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	tt, err := domain.ParseTransferType(ev.Trigger.Payload)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); rerr != nil {
			return StateAdminTransfer, rerr
		}
		return StateAdminTransfer, nil
	}
	fr.Bucket.Set("transfer_type", string(tt))

	platform := domain.Platform(fr.Bucket.Value("platform"))
	current, err := a.ledger.Read(ctx, platform, tt)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateAdminTransfer, rerr
		}
		return StateAdminTransfer, err
	}
	fr.Bucket.Set("old_price", strconv.FormatInt(current.Price, 10))
	if err := fr.Reply(ctx, ev.UserID, messages.AdminAskPrice(platform, tt, current.Price)); err != nil {
		return StateAdminTransfer, err
	}
	return StateAdminPrice, nil
}

func (a *admin) enterPrice(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	newPrice, err := validate.Price(ev.Trigger.Text)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, hintFor(err)); rerr != nil {
			return StateAdminPrice, rerr
		}
		return StateAdminPrice, nil
	}

	platform := domain.Platform(fr.Bucket.Value("platform"))
	tt := domain.TransferType(fr.Bucket.Value("transfer_type"))
	if err := a.ledger.Update(ctx, ev.UserID, platform, tt, newPrice); err != nil {
		if domain.IsValidation(err) {
			if rerr := fr.Reply(ctx, ev.UserID, hintFor(err)); rerr != nil {
				return StateAdminPrice, rerr
			}
			return StateAdminPrice, nil
		}
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateAdminPrice, rerr
		}
		return StateAdminPrice, err
	}

	oldPrice, _ := strconv.ParseInt(fr.Bucket.Value("old_price"), 10, 64)
	if err := fr.Reply(ctx, ev.UserID, messages.AdminPriceUpdated(platform, tt, oldPrice, newPrice)); err != nil {
		return flow.StateEnd, err
	}
	return flow.StateEnd, nil
}

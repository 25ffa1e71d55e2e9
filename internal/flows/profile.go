package flows

import (
	"context"
	"errors"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
)

// Profile states.
const (
	StateProfileView    flow.State = "viewing"
	StateProfileConfirm flow.State = "confirming_delete"
)

// Profile builds the profile view and erase flow. Deletion requires two
// distinct confirmations before anything is removed.
func Profile(users *storage.Users) *flow.Definition {
	p := &profile{users: users}
	return &flow.Definition{
		Name: ProfileFlow,
		Entry: []flow.Rule{
			{Match: flow.OnCommand("profile"), Handle: p.start},
		},
		States: map[flow.State][]flow.Rule{
			StateProfileView: {
				{Match: flow.OnCallback(keyboards.KeyProfileDelete), Handle: p.askConfirm},
				{Match: flow.OnText(), Handle: nudge(StateProfileView)},
			},
			StateProfileConfirm: {
				{Match: flow.OnCallback(keyboards.KeyProfileReally), Handle: p.erase},
				{Match: flow.OnCallback(keyboards.KeyProfileKeep), Handle: p.keep},
				{Match: flow.OnText(), Handle: nudge(StateProfileConfirm)},
			},
		},
		Fallbacks: []flow.Rule{cancel()},
	}
}

type profile struct {
	users *storage.Users
}

func (p *profile) start(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	u, err := p.users.Get(ctx, ev.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		if rerr := fr.Reply(ctx, ev.UserID, messages.ProfileMissing); rerr != nil {
			return flow.StateEnd, rerr
		}
		return flow.StateEnd, nil
	}
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return flow.StateEnd, rerr
		}
		return flow.StateEnd, err
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.RegistrationSummary(u) + "\n\n" + messages.ProfileDeleteAsk,
		Choices: keyboards.ProfileDelete(),
	}); err != nil {
		return flow.StateEnd, err
	}
	return StateProfileView, nil
}

func (p *profile) askConfirm(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.ProfileDeleteConfirm,
		Choices: keyboards.ProfileConfirm(),
	}); err != nil {
		return StateProfileView, err
	}
	return StateProfileConfirm, nil
}

func (p *profile) erase(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	if err := p.users.Erase(ctx, ev.UserID); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateProfileConfirm, rerr
		}
		return StateProfileConfirm, err
	}
	if err := fr.Reply(ctx, ev.UserID, messages.ProfileDeleted); err != nil {
		return flow.StateEnd, err
	}
	// Forget any in-memory leftovers along with the stored data.
	fr.Store.DropUser(ev.UserID)
	return flow.StateEnd, nil
}

func (p *profile) keep(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	if err := fr.Reply(ctx, ev.UserID, messages.ProfileKept); err != nil {
		return flow.StateEnd, err
	}
	return flow.StateEnd, nil
}

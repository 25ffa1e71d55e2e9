// Package recovery classifies free text that no flow claimed, answering
// users whose conversation state was lost or never existed.
package recovery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/flows"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
)

// Action is the router's classification of an unclaimed event.
type Action int

const (
	// ActionSkip leaves the event alone: it was claimed, is a command, or
	// the user still has live scratch state a flow will pick up.
	ActionSkip Action = iota
	// ActionGreet answers a user with no stored profile.
	ActionGreet
	// ActionMenu answers a fully registered user.
	ActionMenu
	// ActionResume seeds the interrupted-decision step of registration.
	ActionResume
)

// Steps looks up the persisted registration checkpoint.
type Steps interface {
	Step(ctx context.Context, telegramID int64) (domain.RegistrationStep, error)
}

// Resumer places a user into a flow state without running a handler.
type Resumer interface {
	Resume(ctx context.Context, userID int64, flowName string, st flow.State) error
}

// Router decides what an unclaimed event means. It never writes persisted
// user state; the persisted checkpoint is authoritative over any in-memory
// leftovers.
type Router struct {
	steps  Steps
	store  *flow.Store
	engine Resumer
	resp   flow.Responder
}

// NewRouter builds the recovery router.
func NewRouter(steps Steps, store *flow.Store, engine Resumer, resp flow.Responder) *Router {
	return &Router{steps: steps, store: store, engine: engine, resp: resp}
}

// Classify inspects an event after dispatch and picks the recovery action.
// The claim tag is consumed here; a claimed event is always skipped.
func (r *Router) Classify(ctx context.Context, ev *flow.Event) (Action, error) {
	if ev.CheckAndClear() {
		return ActionSkip, nil
	}
	if ev.Trigger.Kind == flow.TriggerCommand {
		return ActionSkip, nil
	}
	if r.store.HasAny(ev.UserID) {
		return ActionSkip, nil
	}

	step, err := r.steps.Step(ctx, ev.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return ActionGreet, nil
	}
	if err != nil {
		return ActionSkip, err
	}
	if step == domain.StepCompleted {
		return ActionMenu, nil
	}
	return ActionResume, nil
}

// Handle classifies the event and sends the matching answer. ActionResume
// additionally seeds the registration flow's interrupted-decision state so
// the next button press lands in a live flow.
func (r *Router) Handle(ctx context.Context, ev *flow.Event) error {
	action, err := r.Classify(ctx, ev)
	if err != nil {
		logger.Error(ctx, "recovery", "classify",
			slog.Int64("user_id", ev.UserID),
			slog.String("err", err.Error()),
		)
		if sendErr := r.resp.Send(ctx, ev.UserID, flow.Reply{Text: messages.Failure}); sendErr != nil {
			logger.Error(ctx, "recovery", "classify.notice",
				slog.Int64("user_id", ev.UserID),
				slog.String("err", sendErr.Error()),
			)
		}
		return err
	}

	switch action {
	case ActionGreet:
		logger.Debug(ctx, "recovery", "greet", slog.Int64("user_id", ev.UserID))
		return r.resp.Send(ctx, ev.UserID, flow.Reply{Text: messages.Greeting})
	case ActionMenu:
		logger.Debug(ctx, "recovery", "menu", slog.Int64("user_id", ev.UserID))
		return r.resp.Send(ctx, ev.UserID, flow.Reply{Text: messages.Menu})
	case ActionResume:
		logger.Info(ctx, "recovery", "resume.offered",
			slog.Int64("user_id", ev.UserID),
		)
		if err := r.engine.Resume(ctx, ev.UserID, flows.RegistrationFlow, flows.StateInterrupted); err != nil {
			return err
		}
		return r.resp.Send(ctx, ev.UserID, flow.Reply{
			Text:    messages.InterruptedQuestion,
			Choices: keyboards.InterruptedDecision(),
		})
	}
	return nil
}

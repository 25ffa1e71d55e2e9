package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	corebootstrap "github.com/babababa22003300kaka-bot/eafc232cons/core/bootstrap"
	corecmd "github.com/babababa22003300kaka-bot/eafc232cons/core/cmd"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
	coretelegram "github.com/babababa22003300kaka-bot/eafc232cons/core/telegram"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/callbacks"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/commands"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	tghelpers "github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/helpers"
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/router"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/flows"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/pricing"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/recovery"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
)

// App holds the wired bot: engine, recovery router, repositories, and the
// backup job.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	engine   *flow.Engine
	recovery *recovery.Router
	backup   *Backup
	users    *storage.Users
	ledger   *pricing.Ledger
}

// Bootstrap initializes infrastructure and wires the application. It
// satisfies the runner's bootstrap hook.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := corebootstrap.Run(corebootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	users := storage.NewUsers(res.DB)
	prices := storage.NewPrices(res.DB)
	snapshots := storage.NewSnapshots(res.DB)
	ledger := pricing.NewLedger(prices)

	engine, err := flow.NewEngine(flow.NewStore(), transportResponder{},
		flow.Options{
			BusyNotice: messages.Busy,
			Snapshots:  snapshots,
		},
		flows.Registration(users),
		flows.Sell(users, ledger),
		flows.Admin(ledger, cfg.Core.Telegram.AdminID),
		flows.Profile(users),
	)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}

	if payload, err := snapshots.Load(context.Background()); err == nil {
		if err := engine.Restore(payload); err != nil {
			logger.Flow.Warn("snapshot restore skipped",
				slog.String("event", "snapshot.restore_failed"),
				slog.String("err", err.Error()),
			)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.Flow.Warn("snapshot load failed",
			slog.String("event", "snapshot.load_failed"),
			slog.String("err", err.Error()),
		)
	}

	rec := recovery.NewRouter(users, engine.Store(), engine, transportResponder{})

	return &App{
		cfg:      cfg,
		db:       res.DB,
		engine:   engine,
		recovery: rec,
		backup:   NewBackup(res.DB, cfg.Backup),
		users:    users,
		ledger:   ledger,
	}, nil
}

// TelegramRunOptions assembles registry, middleware chain, and routes.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.commandHandler(),
		Description: "Register as a coin seller",
	})
	reg.RegisterCommand("/sell", commands.Command{
		Handler:     a.commandHandler(),
		Description: "Sell FC26 coins",
	})
	reg.RegisterCommand("/profile", commands.Command{
		Handler:     a.commandHandler(),
		Description: "View or delete your stored data",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.commandHandler(),
		Description: "Cancel the current action",
	})
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     a.commandHandler(),
		Description: "Edit coin prices",
		AdminOnly:   true,
		Hidden:      true,
	})

	for _, key := range []string{
		keyboards.KeyPlatform, keyboards.KeyTransfer, keyboards.KeyPayMethod,
		keyboards.KeyRegContinue, keyboards.KeyRegRestart,
		keyboards.KeyAdminEdit, keyboards.KeyAdminView, keyboards.KeyAdminAudit,
		keyboards.KeyProfileDelete, keyboards.KeyProfileReally, keyboards.KeyProfileKeep,
	} {
		if err := reg.RegisterCallback(key, a.callbackHandler); err != nil {
			return coretelegram.RunOptions{}, err
		}
	}

	reg.SetTextFallback(a.recoveryHandler)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, messages.AdminOnly)
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm(), reg, router.TextOptions{})...)

	mws := coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), func(c tele.Context) error {
		return tghelpers.SendText(c, messages.RateLimited)
	})

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: mws,
		Routes:      routes,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.backup.Start()
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.backup.Stop()
			return a.db.Close()
		},
	}, nil
}

// eventFrom decodes one telebot update into a flow event.
func eventFrom(c tele.Context) *flow.Event {
	sender := c.Sender()
	var userID int64
	var username string
	if sender != nil {
		userID = sender.ID
		username = sender.Username
	}

	var trig flow.Trigger
	if cb := c.Callback(); cb != nil {
		key, payload := callbacks.ParseCallbackData(cb)
		if cb.Unique != "" {
			key = cb.Unique
		}
		trig = flow.Callback(key, payload)
	} else {
		trig = flow.DecodeText(c.Text())
	}
	return flow.NewEvent(userID, username, trig)
}

func (a *App) dispatch(c tele.Context, ev *flow.Event) (flow.Result, error) {
	ctx := withTele(tghelpers.BuildContext(c), c)
	return a.engine.Dispatch(ctx, ev)
}

// commandHandler routes a slash command through the engine. A /cancel with
// nothing to cancel is answered directly.
func (a *App) commandHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := eventFrom(c)
		res, err := a.dispatch(c, ev)
		if err != nil {
			return err
		}
		if res.Outcome == flow.NotClaimed && ev.Trigger.Command == "/cancel" {
			return tghelpers.SendText(c, messages.NothingToCancel)
		}
		return nil
	}
}

// callbackHandler routes a button press through the engine. Presses on
// stale keyboards of finished flows are dropped.
func (a *App) callbackHandler(c tele.Context) error {
	ev := eventFrom(c)
	res, err := a.dispatch(c, ev)
	if err != nil {
		return err
	}
	if res.Outcome == flow.NotClaimed {
		logger.Debug(tghelpers.BuildContext(c), "flow", "callback.stale",
			slog.Int64("user_id", ev.UserID),
			slog.String("cb_key", ev.Trigger.Key),
		)
	}
	return nil
}

// recoveryHandler answers free text outside any flow.
func (a *App) recoveryHandler(c tele.Context) error {
	ev := eventFrom(c)
	ctx := withTele(tghelpers.BuildContext(c), c)
	return a.recovery.Handle(ctx, ev)
}

// fsm adapts the engine to the text router's in-progress check.
type fsmAdapter struct {
	app *App
}

func (a *App) fsm() router.FSM { return fsmAdapter{app: a} }

// InProgress reports whether any flow owns the user.
func (f fsmAdapter) InProgress(userID int64) bool {
	if _, ok := f.app.engine.Store().ActiveFlow(userID); ok {
		return true
	}
	return f.app.engine.Store().HasAny(userID)
}

// ManagerHandler feeds in-flow text to the engine, falling back to the
// recovery router when no flow claims it.
func (f fsmAdapter) ManagerHandler(c tele.Context) error {
	ev := eventFrom(c)
	res, err := f.app.dispatch(c, ev)
	if err != nil {
		return err
	}
	if res.Outcome == flow.NotClaimed {
		ctx := withTele(tghelpers.BuildContext(c), c)
		return f.app.recovery.Handle(ctx, ev)
	}
	return nil
}

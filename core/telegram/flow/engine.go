package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/logger"
)

// State identifies one step of a flow definition.
type State string

// StateEnd is the terminal pseudo-state. A handler returning it ends the
// flow instance and clears the flow's bucket.
const StateEnd State = "end"

// Frame is the per-dispatch view handed to handlers: the flow's isolated
// bucket and a way to reply. Handlers must not reach other flows' buckets.
type Frame struct {
	Flow    string
	State   State
	Bucket  Bucket
	Store   *Store
	respond Responder
}

// Reply sends a plain text reply to the event's user.
func (f *Frame) Reply(ctx context.Context, userID int64, text string) error {
	return f.respond.Send(ctx, userID, Reply{Text: text})
}

// ReplyWith sends a reply instruction with choices or edit semantics.
func (f *Frame) ReplyWith(ctx context.Context, userID int64, reply Reply) error {
	return f.respond.Send(ctx, userID, reply)
}

// HandlerFunc advances a flow: it returns the next state, the same state
// for a validation self-loop, or StateEnd to finish. The bucket survives a
// self-loop and is cleared by the engine on StateEnd.
type HandlerFunc func(ctx context.Context, ev *Event, fr *Frame) (State, error)

// Rule binds a trigger matcher to a handler.
type Rule struct {
	Match  func(Trigger) bool
	Handle HandlerFunc
}

// OnCommand matches a specific slash command.
func OnCommand(name string) func(Trigger) bool {
	want := Command(name).Command
	return func(t Trigger) bool {
		return t.Kind == TriggerCommand && t.Command == want
	}
}

// OnCallback matches callback triggers with one of the given keys.
func OnCallback(keys ...string) func(Trigger) bool {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(t Trigger) bool {
		if t.Kind != TriggerCallback {
			return false
		}
		_, ok := set[t.Key]
		return ok
	}
}

// OnText matches any free-text trigger.
func OnText() func(Trigger) bool {
	return func(t Trigger) bool { return t.Kind == TriggerText }
}

// Definition declares a flow: entry rules usable from "no active flow",
// per-state rules, and fallback rules usable from any state.
type Definition struct {
	Name      string
	Entry     []Rule
	States    map[State][]Rule
	Fallbacks []Rule
}

// Validate checks the definition is complete enough to run. Engines refuse
// definitions without entry points or a fallback, and states without rules.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("flow: definition without a name")
	}
	if len(d.Entry) == 0 {
		return fmt.Errorf("flow %s: no entry rules", d.Name)
	}
	if len(d.Fallbacks) == 0 {
		return fmt.Errorf("flow %s: no fallback rules", d.Name)
	}
	for st, rules := range d.States {
		if st == StateEnd {
			return fmt.Errorf("flow %s: state %q is reserved", d.Name, st)
		}
		if len(rules) == 0 {
			return fmt.Errorf("flow %s: state %q has no rules", d.Name, st)
		}
		for i, r := range rules {
			if r.Match == nil || r.Handle == nil {
				return fmt.Errorf("flow %s: state %q rule %d incomplete", d.Name, st, i)
			}
		}
	}
	return nil
}

func (d *Definition) knowsState(st State) bool {
	_, ok := d.States[st]
	return ok
}

// Outcome reports how a dispatch resolved.
type Outcome int

const (
	// NotClaimed means no flow handled the event.
	NotClaimed Outcome = iota
	// Advanced means a flow handled the event and is still active.
	Advanced
	// Ended means a flow handled the event and terminated.
	Ended
)

// Result describes the dispatch resolution for callers and tests.
type Result struct {
	Outcome Outcome
	Flow    string
	State   State
}

// SnapshotSink persists serialized flow state after each completed event.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, payload []byte) error
}

// Options configures an Engine.
type Options struct {
	// BusyNotice is sent when a user tries to enter a second flow family
	// while another one owns them.
	BusyNotice string
	// Snapshots, when set, receives the serialized store after every
	// claimed event.
	Snapshots SnapshotSink
}

// Engine runs flow definitions in priority order. One instance per
// (userID, flowName); flow families are mutually exclusive per user, and
// re-entry into the owning family resumes the existing instance.
type Engine struct {
	flows []*Definition
	store *Store
	resp  Responder
	opts  Options

	userMu sync.Mutex
	users  map[int64]*sync.Mutex
}

// NewEngine validates every definition and builds an engine. Definitions
// are tried in the given priority order.
func NewEngine(store *Store, resp Responder, opts Options, defs ...*Definition) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("flow: nil store")
	}
	if resp == nil {
		return nil, fmt.Errorf("flow: nil responder")
	}
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("flow: duplicate definition %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return &Engine{
		flows: defs,
		store: store,
		resp:  resp,
		opts:  opts,
		users: make(map[int64]*sync.Mutex),
	}, nil
}

// Store exposes the session store backing this engine.
func (e *Engine) Store() *Store { return e.store }

func (e *Engine) lockUser(userID int64) *sync.Mutex {
	e.userMu.Lock()
	mu, ok := e.users[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.users[userID] = mu
	}
	e.userMu.Unlock()
	mu.Lock()
	return mu
}

func (e *Engine) flowByName(name string) *Definition {
	for _, d := range e.flows {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Dispatch routes the event to at most one flow. Dispatches for the same
// user never run concurrently; an address that is already owned resumes
// rather than forks.
func (e *Engine) Dispatch(ctx context.Context, ev *Event) (Result, error) {
	mu := e.lockUser(ev.UserID)
	defer mu.Unlock()

	res, err := e.dispatchLocked(ctx, ev)
	if res.Outcome != NotClaimed {
		e.commit(ctx, ev.UserID)
	}
	return res, err
}

func (e *Engine) dispatchLocked(ctx context.Context, ev *Event) (Result, error) {
	if inst, active := e.store.ActiveFlow(ev.UserID); active {
		def := e.flowByName(inst.Flow)
		if def == nil {
			// Snapshot restored an unknown flow; treat as absent.
			e.store.ClearInstance(ev.UserID, inst.Flow)
		} else {
			return e.dispatchActive(ctx, ev, def, inst)
		}
	}
	return e.dispatchEntry(ctx, ev)
}

func (e *Engine) dispatchActive(ctx context.Context, ev *Event, def *Definition, inst Instance) (Result, error) {
	if rule, ok := matchRule(def.States[inst.State], ev.Trigger); ok {
		return e.runHandler(ctx, ev, def, inst.State, rule.Handle)
	}
	if rule, ok := matchRule(def.Fallbacks, ev.Trigger); ok {
		return e.runHandler(ctx, ev, def, inst.State, rule.Handle)
	}
	// Re-entry into the owning flow resumes it through the entry handler.
	if rule, ok := matchRule(def.Entry, ev.Trigger); ok {
		return e.runHandler(ctx, ev, def, inst.State, rule.Handle)
	}
	// A different flow family competing for an owned user is rejected.
	for _, other := range e.flows {
		if other.Name == def.Name {
			continue
		}
		if _, ok := matchRule(other.Entry, ev.Trigger); ok {
			ev.MarkHandled()
			logger.Warn(ctx, "flow", "dispatch.busy",
				slog.Int64("user_id", ev.UserID),
				slog.String("flow", def.Name),
				slog.String("state", string(inst.State)),
			)
			if e.opts.BusyNotice != "" {
				if err := e.resp.Send(ctx, ev.UserID, Reply{Text: e.opts.BusyNotice}); err != nil {
					return Result{Outcome: Advanced, Flow: def.Name, State: inst.State}, err
				}
			}
			return Result{Outcome: Advanced, Flow: def.Name, State: inst.State}, nil
		}
	}
	return Result{Outcome: NotClaimed}, nil
}

func (e *Engine) dispatchEntry(ctx context.Context, ev *Event) (Result, error) {
	for _, def := range e.flows {
		if rule, ok := matchRule(def.Entry, ev.Trigger); ok {
			return e.runHandler(ctx, ev, def, "", rule.Handle)
		}
	}
	return Result{Outcome: NotClaimed}, nil
}

func (e *Engine) runHandler(ctx context.Context, ev *Event, def *Definition, current State, h HandlerFunc) (Result, error) {
	// Claim before the handler runs so even a failing handler marks intent.
	ev.MarkHandled()

	fr := &Frame{
		Flow:    def.Name,
		State:   current,
		Bucket:  e.store.Bucket(ev.UserID, def.Name),
		Store:   e.store,
		respond: e.resp,
	}
	next, err := h(ctx, ev, fr)
	if err != nil {
		// Stay put on handler errors; the user retries from the same state.
		logger.Error(ctx, "flow", "dispatch.handler",
			slog.Int64("user_id", ev.UserID),
			slog.String("flow", def.Name),
			slog.String("state", string(current)),
			slog.String("err", err.Error()),
		)
		if current == "" {
			return Result{Outcome: Ended, Flow: def.Name}, err
		}
		return Result{Outcome: Advanced, Flow: def.Name, State: current}, err
	}

	if next == StateEnd {
		e.store.Clear(ev.UserID, def.Name)
		e.store.ClearInstance(ev.UserID, def.Name)
		logger.Debug(ctx, "flow", "dispatch.ended",
			slog.Int64("user_id", ev.UserID),
			slog.String("flow", def.Name),
		)
		return Result{Outcome: Ended, Flow: def.Name, State: StateEnd}, nil
	}

	if !def.knowsState(next) {
		e.store.Clear(ev.UserID, def.Name)
		e.store.ClearInstance(ev.UserID, def.Name)
		return Result{Outcome: Ended, Flow: def.Name}, fmt.Errorf("flow %s: handler returned unknown state %q", def.Name, next)
	}

	e.store.SetInstance(ev.UserID, def.Name, next)
	logger.Debug(ctx, "flow", "dispatch.advanced",
		slog.Int64("user_id", ev.UserID),
		slog.String("flow", def.Name),
		slog.String("state", string(next)),
	)
	return Result{Outcome: Advanced, Flow: def.Name, State: next}, nil
}

// Resume places the user into the named flow at the given state without
// running a handler. The recovery router uses it to seed the interrupted
// decision step; persisted entity state is not touched. The seeded instance
// is committed to the snapshot sink like any dispatched transition, so it
// survives a restart.
func (e *Engine) Resume(ctx context.Context, userID int64, flowName string, st State) error {
	def := e.flowByName(flowName)
	if def == nil {
		return fmt.Errorf("flow: unknown flow %q", flowName)
	}
	if !def.knowsState(st) {
		return fmt.Errorf("flow %s: unknown state %q", flowName, st)
	}
	mu := e.lockUser(userID)
	defer mu.Unlock()
	e.store.SetInstance(userID, flowName, st)
	e.commit(ctx, userID)
	return nil
}

func (e *Engine) commit(ctx context.Context, userID int64) {
	if e.opts.Snapshots == nil {
		return
	}
	payload, err := e.store.Export()
	if err != nil {
		logger.Error(ctx, "flow", "snapshot.export",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return
	}
	if err := e.opts.Snapshots.SaveSnapshot(ctx, payload); err != nil {
		logger.Error(ctx, "flow", "snapshot.save",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// Restore loads a snapshot into the store, dropping instances whose flow or
// state is no longer defined; those users simply recover through the
// recovery router instead.
func (e *Engine) Restore(payload []byte) error {
	if err := e.store.Restore(payload); err != nil {
		return err
	}
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	for userID, sess := range e.store.sessions {
		for name, inst := range sess.instances {
			def := e.flowByName(name)
			if def == nil || !def.knowsState(inst.State) {
				delete(sess.instances, name)
			}
		}
		if len(sess.instances) == 0 && len(sess.buckets) == 0 {
			delete(e.store.sessions, userID)
		}
	}
	return nil
}

func matchRule(rules []Rule, t Trigger) (Rule, bool) {
	for _, r := range rules {
		if r.Match != nil && r.Match(t) {
			return r, true
		}
	}
	return Rule{}, false
}

package flow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingResponder struct {
	mu      sync.Mutex
	replies []Reply
}

func (r *recordingResponder) Send(_ context.Context, _ int64, reply Reply) error {
	r.mu.Lock()
	r.replies = append(r.replies, reply)
	r.mu.Unlock()
	return nil
}

func (r *recordingResponder) last(t *testing.T) Reply {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.replies)
	return r.replies[len(r.replies)-1]
}

// twoStepFlow collects one text value then ends on the next text.
func twoStepFlow(name string, entry string) *Definition {
	return &Definition{
		Name: name,
		Entry: []Rule{{
			Match: OnCommand(entry),
			Handle: func(ctx context.Context, ev *Event, fr *Frame) (State, error) {
				if err := fr.Reply(ctx, ev.UserID, "first?"); err != nil {
					return "", err
				}
				return "collecting", nil
			},
		}},
		States: map[State][]Rule{
			"collecting": {{
				Match: OnText(),
				Handle: func(ctx context.Context, ev *Event, fr *Frame) (State, error) {
					if ev.Trigger.Text == "bad" {
						if err := fr.Reply(ctx, ev.UserID, "try again"); err != nil {
							return "", err
						}
						return "collecting", nil
					}
					fr.Bucket.Set("value", ev.Trigger.Text)
					return "confirming", nil
				},
			}},
			"confirming": {{
				Match: OnText(),
				Handle: func(ctx context.Context, ev *Event, fr *Frame) (State, error) {
					return StateEnd, nil
				},
			}},
		},
		Fallbacks: []Rule{{
			Match: OnCommand("cancel"),
			Handle: func(ctx context.Context, ev *Event, fr *Frame) (State, error) {
				return StateEnd, nil
			},
		}},
	}
}

func newTestEngine(t *testing.T, opts Options, defs ...*Definition) (*Engine, *recordingResponder) {
	t.Helper()
	resp := &recordingResponder{}
	eng, err := NewEngine(NewStore(), resp, opts, defs...)
	require.NoError(t, err)
	return eng, resp
}

func dispatch(t *testing.T, eng *Engine, userID int64, trig Trigger) (Result, *Event) {
	t.Helper()
	ev := NewEvent(userID, "tester", trig)
	res, err := eng.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	return res, ev
}

func TestEngineAdvancesThroughStates(t *testing.T) {
	eng, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))

	res, ev := dispatch(t, eng, 1, Command("start"))
	require.Equal(t, Advanced, res.Outcome)
	require.Equal(t, State("collecting"), res.State)
	require.True(t, ev.CheckAndClear(), "claimed event must carry the tag")

	res, _ = dispatch(t, eng, 1, Text("01012345678"))
	require.Equal(t, State("confirming"), res.State)
	require.Equal(t, "01012345678", eng.Store().Bucket(1, "reg").Value("value"))

	res, _ = dispatch(t, eng, 1, Text("ok"))
	require.Equal(t, Ended, res.Outcome)
	require.False(t, eng.Store().Has(1, "reg"), "terminal handler must clear the bucket")
	_, active := eng.Store().ActiveFlow(1)
	require.False(t, active)
}

func TestEngineSelfLoopKeepsBucket(t *testing.T) {
	eng, resp := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	dispatch(t, eng, 1, Command("start"))
	eng.Store().Bucket(1, "reg").Set("seen", "yes")

	res, _ := dispatch(t, eng, 1, Text("bad"))
	require.Equal(t, State("collecting"), res.State)
	require.Equal(t, "yes", eng.Store().Bucket(1, "reg").Value("seen"))
	require.Equal(t, "try again", resp.last(t).Text)
}

func TestEngineReentryResumesNotForks(t *testing.T) {
	eng, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	dispatch(t, eng, 1, Command("start"))
	dispatch(t, eng, 1, Text("value-1"))

	// Entry command again while mid-flow re-runs the entry handler on the
	// same instance instead of creating a second one.
	res, _ := dispatch(t, eng, 1, Command("start"))
	require.Equal(t, State("collecting"), res.State)
	inst, ok := eng.Store().Instance(1, "reg")
	require.True(t, ok)
	require.Equal(t, State("collecting"), inst.State)
}

func TestEngineMutualExclusionBetweenFlows(t *testing.T) {
	eng, resp := newTestEngine(t, Options{BusyNotice: "finish the current step first"},
		twoStepFlow("reg", "start"), twoStepFlow("sell", "sell"))
	dispatch(t, eng, 1, Command("start"))

	res, ev := dispatch(t, eng, 1, Command("sell"))
	require.Equal(t, Advanced, res.Outcome)
	require.Equal(t, "reg", res.Flow, "owning flow keeps the user")
	require.True(t, ev.CheckAndClear(), "busy rejection still claims the event")
	require.Equal(t, "finish the current step first", resp.last(t).Text)

	inst, ok := eng.Store().Instance(1, "reg")
	require.True(t, ok)
	require.Equal(t, State("collecting"), inst.State)
	_, sellActive := eng.Store().Instance(1, "sell")
	require.False(t, sellActive)
}

func TestEngineFallbackCancelsFromAnyState(t *testing.T) {
	eng, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	dispatch(t, eng, 1, Command("start"))

	res, _ := dispatch(t, eng, 1, Command("cancel"))
	require.Equal(t, Ended, res.Outcome)
	require.False(t, eng.Store().Has(1, "reg"))
}

func TestEngineUnmatchedEventNotClaimed(t *testing.T) {
	eng, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))

	res, ev := dispatch(t, eng, 1, Text("random"))
	require.Equal(t, NotClaimed, res.Outcome)
	require.False(t, ev.CheckAndClear())
}

func TestEngineUsersAreIndependent(t *testing.T) {
	eng, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	dispatch(t, eng, 1, Command("start"))

	res, _ := dispatch(t, eng, 2, Command("start"))
	require.Equal(t, Advanced, res.Outcome)
	require.Equal(t, State("collecting"), res.State)
}

func TestEngineResumeSeedsState(t *testing.T) {
	eng, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))

	require.NoError(t, eng.Resume(context.Background(), 1, "reg", "confirming"))
	res, _ := dispatch(t, eng, 1, Text("ok"))
	require.Equal(t, Ended, res.Outcome)

	require.Error(t, eng.Resume(context.Background(), 1, "reg", "nope"))
	require.Error(t, eng.Resume(context.Background(), 1, "ghost", "collecting"))
}

func TestEngineResumeCommitsSnapshot(t *testing.T) {
	sink := &memorySink{}
	eng, _ := newTestEngine(t, Options{Snapshots: sink}, twoStepFlow("reg", "start"))

	require.NoError(t, eng.Resume(context.Background(), 1, "reg", "confirming"))
	require.NotNil(t, sink.payload, "a seeded instance must reach the sink")

	restored, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	require.NoError(t, restored.Restore(sink.payload))
	inst, ok := restored.Store().Instance(1, "reg")
	require.True(t, ok, "the seeded instance must survive a restart")
	require.Equal(t, State("confirming"), inst.State)
}

func TestEngineValidatesDefinitions(t *testing.T) {
	resp := &recordingResponder{}

	_, err := NewEngine(NewStore(), resp, Options{}, &Definition{Name: "broken"})
	require.Error(t, err, "definition without entry rules must be rejected")

	ok := twoStepFlow("reg", "start")
	_, err = NewEngine(NewStore(), resp, Options{}, ok, twoStepFlow("reg", "other"))
	require.Error(t, err, "duplicate flow names must be rejected")
}

type memorySink struct {
	mu      sync.Mutex
	payload []byte
}

func (m *memorySink) SaveSnapshot(_ context.Context, payload []byte) error {
	m.mu.Lock()
	m.payload = append([]byte(nil), payload...)
	m.mu.Unlock()
	return nil
}

func TestEngineSnapshotRoundTrip(t *testing.T) {
	sink := &memorySink{}
	eng, _ := newTestEngine(t, Options{Snapshots: sink}, twoStepFlow("reg", "start"))
	dispatch(t, eng, 1, Command("start"))
	dispatch(t, eng, 1, Text("01012345678"))
	require.NotNil(t, sink.payload)

	restored, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	require.NoError(t, restored.Restore(sink.payload))

	inst, ok := restored.Store().Instance(1, "reg")
	require.True(t, ok)
	require.Equal(t, State("confirming"), inst.State)
	require.Equal(t, "01012345678", restored.Store().Bucket(1, "reg").Value("value"))
}

func TestEngineRestoreDropsUnknownFlows(t *testing.T) {
	sink := &memorySink{}
	eng, _ := newTestEngine(t, Options{Snapshots: sink}, twoStepFlow("old", "start"))
	dispatch(t, eng, 1, Command("start"))

	restored, _ := newTestEngine(t, Options{}, twoStepFlow("reg", "start"))
	require.NoError(t, restored.Restore(sink.payload))
	_, active := restored.Store().ActiveFlow(1)
	require.False(t, active, "instances of undefined flows are discarded")
}

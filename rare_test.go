package rare

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rare/agent"
	"github.com/hupe1980/rare/cognitive"
	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/internal/testutil"
	"github.com/hupe1980/rare/memory"
	"github.com/hupe1980/rare/model"
)

func newRuntime(t *testing.T, optFns ...func(o *Options)) (*RARE, *memory.InMemoryStore) {
	t.Helper()
	persist := memory.NewInMemoryStore()
	fns := append([]func(o *Options){func(o *Options) {
		o.Persistence = persist
		o.Clock = func() time.Time { return time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC) }
	}}, optFns...)
	r := New(fns...)
	return r, persist
}

func TestRARE_ProcessInputRoutesToChatAgent(t *testing.T) {
	ctx := context.Background()
	r, persist := newRuntime(t)
	llm := model.NewMockModel("mock", "test")
	llm.AddResponse("hello there", "Hi!")
	require.NoError(t, r.RegisterEngine(ctx, agent.NewChatAgent(llm)))
	rec := testutil.NewRecorder(r.Bus(), "agent:ai:*")

	require.NoError(t, r.Start(ctx))
	assert.Contains(t, r.Kernel().Tasks(), AmbientRefreshTask)

	d := r.ProcessInput(ctx, core.Input{Text: "hello there"})
	assert.Equal(t, core.DefaultAgent, d.Agent)
	assert.Equal(t, core.DefaultAction, d.Action)
	assert.False(t, d.Degraded, d.DegradationReasons)

	channel := core.ResultChannel(core.DefaultAgent, core.OutcomeResponse)
	require.Eventually(t, func() bool { return rec.Count(channel) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Hi!", rec.OfType(channel)[0].Data.(core.AgentResult).Output)

	require.NoError(t, r.Stop(ctx))
	assert.True(t, r.Bus().Closed())
	assert.Positive(t, persist.Saves(), "interaction persisted before Stop returned")
	assert.Len(t, r.Store().GetContext().Session.Interactions, 1)
}

func TestRARE_SubmitIsHandledByAttachedLoop(t *testing.T) {
	ctx := context.Background()
	r, _ := newRuntime(t, func(o *Options) { o.DefaultAppState = core.AppBackground })
	require.NoError(t, r.RegisterEngine(ctx, testutil.NewFakeEngine(core.DefaultAgent)))
	made := testutil.NewRecorder(r.Bus(), core.ChannelDecisionMade)
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	require.NoError(t, r.Submit(ctx, core.Input{Text: "tell me a joke"}))

	events := made.OfType(core.ChannelDecisionMade)
	require.Len(t, events, 1)
	history := r.Loop().GetDecisionHistory()
	require.Len(t, history, 1)
	assert.Equal(t, events[0].Data.(core.DecisionMade).Decision.ID, history[0].ID)
}

func TestRARE_SubmitAfterStop(t *testing.T) {
	ctx := context.Background()
	r, _ := newRuntime(t)
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Stop(ctx))

	err := r.Submit(ctx, core.Input{Text: "hello"})
	assert.ErrorIs(t, err, core.ErrKernelStopped)
}

func TestRARE_OptionsReachComponents(t *testing.T) {
	ctx := context.Background()
	r, _ := newRuntime(t, func(o *Options) {
		o.AmbientInterval = 0
		o.Loop = append(o.Loop, func(o *cognitive.Options) { o.AnalysisInterval = time.Hour })
	})
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	tasks := r.Kernel().Tasks()
	assert.Contains(t, tasks, cognitive.PatternAnalysisTask)
	assert.NotContains(t, tasks, AmbientRefreshTask)
}

func TestRARE_DefaultAppStateIsApplied(t *testing.T) {
	r, _ := newRuntime(t, func(o *Options) { o.DefaultAppState = core.AppBackground })
	assert.Equal(t, core.AppBackground, r.withDefaults(core.Input{}).AppState)
	assert.Equal(t, core.AppForeground, r.withDefaults(core.Input{AppState: core.AppForeground}).AppState)
}

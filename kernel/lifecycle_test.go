package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/internal/testutil"
)

func TestUpdateAgentLifecycle_StartsStoppedEngine(t *testing.T) {
	k, rec := newStartedKernel(t)
	ctx := context.Background()
	builder := testutil.NewFakeEngine("builder")
	require.NoError(t, k.RegisterEngine(ctx, builder))
	require.False(t, builder.Running())

	require.NoError(t, k.UpdateAgentLifecycle(ctx, "builder", core.LifecyclePatch{
		ShouldStart: core.Bool(true),
		Reason:      core.String("high priority decision"),
	}))

	lc, _ := k.Lifecycle("builder")
	assert.True(t, lc.ShouldStart)
	assert.True(t, builder.Status().Running)
	assert.True(t, k.IsEngineRunning("builder"))

	started := rec.OfType(core.ChannelAgentStarted)
	require.Len(t, started, 1)
	changed := started[0].Data.(core.LifecycleChanged)
	assert.Equal(t, core.LifecycleChanged{EngineID: "builder", From: core.EngineStopped, To: core.EngineRunning, Reason: "high priority decision"}, changed)
	assert.Equal(t, Source, started[0].Source)
}

func TestUpdateAgentLifecycle_StampsLastActivity(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	k := New(func(o *Options) { o.Clock = func() time.Time { return now } })
	ctx := context.Background()
	require.NoError(t, k.RegisterEngine(ctx, testutil.NewFakeEngine("ai")))

	now = now.Add(time.Minute)
	require.NoError(t, k.UpdateAgentLifecycle(ctx, "ai", core.LifecyclePatch{NeedsNotification: core.Bool(false)}))
	lc, _ := k.Lifecycle("ai")
	assert.Equal(t, now, lc.LastActivity)
}

func TestUpdateAgentLifecycle_UnknownEngine(t *testing.T) {
	k, _ := newStartedKernel(t)
	err := k.UpdateAgentLifecycle(context.Background(), "ghost", core.LifecyclePatch{ShouldStart: core.Bool(true)})
	assert.ErrorIs(t, err, core.ErrEngineNotFound)
}

func TestUpdateAgentLifecycle_DeferredUntilRunning(t *testing.T) {
	ctx := context.Background()
	k := New()
	e := testutil.NewFakeEngine("ai")
	require.NoError(t, k.RegisterEngine(ctx, e))
	require.NoError(t, k.Init(ctx))

	require.NoError(t, k.UpdateAgentLifecycle(ctx, "ai", core.LifecyclePatch{ShouldStart: core.Bool(true)}))
	lc, _ := k.Lifecycle("ai")
	assert.True(t, lc.ShouldStart)
	assert.Zero(t, e.CallCount("start"))
}

func TestUpdateAgentLifecycle_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, k *Kernel)
		patch   core.LifecyclePatch
		want    core.EngineState
		calls   map[string]int
	}{
		{
			name:  "stop beats pause",
			patch: core.LifecyclePatch{ShouldStop: core.Bool(true), ShouldPause: core.Bool(true)},
			want:  core.EngineStopped,
			calls: map[string]int{"stop": 1, "pause": 0},
		},
		{
			name: "start beats resume",
			prepare: func(t *testing.T, k *Kernel) {
				require.NoError(t, k.UpdateAgentLifecycle(context.Background(), "voice", core.LifecyclePatch{ShouldStop: core.Bool(true)}))
			},
			patch: core.LifecyclePatch{ShouldStop: core.Bool(false), ShouldStart: core.Bool(true), ShouldResume: core.Bool(true)},
			want:  core.EngineRunning,
			calls: map[string]int{"start": 2, "resume": 0},
		},
		{
			name:  "pause beats resume and only one transition runs",
			patch: core.LifecyclePatch{ShouldPause: core.Bool(true), ShouldResume: core.Bool(true)},
			want:  core.EnginePaused,
			calls: map[string]int{"pause": 1, "resume": 0},
		},
		{
			name:  "start is not applicable while running",
			patch: core.LifecyclePatch{ShouldStart: core.Bool(true), ShouldPause: core.Bool(true)},
			want:  core.EnginePaused,
			calls: map[string]int{"start": 1, "pause": 1},
		},
		{
			name:  "resume is not applicable while running",
			patch: core.LifecyclePatch{ShouldResume: core.Bool(true)},
			want:  core.EngineRunning,
			calls: map[string]int{"resume": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testutil.NewPausableFakeEngine("voice")
			k, _ := newStartedKernel(t, e)
			if tt.prepare != nil {
				tt.prepare(t, k)
			}
			require.NoError(t, k.UpdateAgentLifecycle(context.Background(), "voice", tt.patch))

			state, _ := k.EngineState("voice")
			assert.Equal(t, tt.want, state)
			for action, n := range tt.calls {
				assert.Equal(t, n, e.CallCount(action), action)
			}
		})
	}
}

func TestUpdateAgentLifecycle_PauseUnsupportedIsSkipped(t *testing.T) {
	e := testutil.NewFakeEngine("ai")
	k, rec := newStartedKernel(t, e)

	require.NoError(t, k.UpdateAgentLifecycle(context.Background(), "ai", core.LifecyclePatch{ShouldPause: core.Bool(true)}))
	assert.True(t, k.IsEngineRunning("ai"))
	assert.Zero(t, rec.Count(core.ChannelAgentLifecycleError))
}

func TestUpdateAgentLifecycle_FailedActionRollsBack(t *testing.T) {
	e := testutil.NewPausableFakeEngine("voice")
	k, rec := newStartedKernel(t, e)
	e.FailOn("pause", errors.New("mic busy"))

	err := k.UpdateAgentLifecycle(context.Background(), "voice", core.LifecyclePatch{ShouldPause: core.Bool(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mic busy")

	state, _ := k.EngineState("voice")
	assert.Equal(t, core.EngineRunning, state)
	require.Equal(t, 1, rec.Count(core.ChannelAgentLifecycleError))
	assert.Equal(t, "pause", rec.OfType(core.ChannelAgentLifecycleError)[0].Data.(core.LifecycleError).Action)
	assert.Zero(t, rec.Count(core.ChannelAgentPaused))
	assert.Equal(t, core.KernelRunning, k.State(), "failures are never fatal to the kernel")
}

type panickingEngine struct{ *testutil.FakeEngine }

func (panickingEngine) Stop(context.Context) error { panic("stop exploded") }

func TestUpdateAgentLifecycle_PanicIsReported(t *testing.T) {
	e := panickingEngine{testutil.NewFakeEngine("flaky")}
	k, rec := newStartedKernel(t, e)

	err := k.UpdateAgentLifecycle(context.Background(), "flaky", core.LifecyclePatch{ShouldStop: core.Bool(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop exploded")
	assert.True(t, k.IsEngineRunning("flaky"))
	assert.Equal(t, 1, rec.Count(core.ChannelAgentLifecycleError))
}

func TestUpdateAgentLifecycle_Notification(t *testing.T) {
	k, rec := newStartedKernel(t, testutil.NewFakeEngine("vault"))

	require.NoError(t, k.UpdateAgentLifecycle(context.Background(), "vault", core.LifecyclePatch{
		NeedsNotification:    core.Bool(true),
		NotificationPriority: core.PriorityPtr(core.PriorityCritical),
		Reason:               core.String("vault access"),
	}))

	notes := rec.OfType(core.ChannelAgentNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, core.Notification{EngineID: "vault", Priority: core.PriorityCritical, Reason: "vault access"}, notes[0].Data)
}

func TestUpdateAgentLifecycle_NotificationIsOneShot(t *testing.T) {
	k, rec := newStartedKernel(t, testutil.NewFakeEngine("vault"))
	ctx := context.Background()
	patch := core.LifecyclePatch{
		NeedsNotification:    core.Bool(true),
		NotificationPriority: core.PriorityPtr(core.PriorityCritical),
	}

	require.NoError(t, k.UpdateAgentLifecycle(ctx, "vault", patch))
	require.NoError(t, k.UpdateAgentLifecycle(ctx, "vault", patch))
	require.NoError(t, k.UpdateAgentLifecycle(ctx, "vault", core.LifecyclePatch{Reason: core.String("touch")}))

	assert.Equal(t, 2, rec.Count(core.ChannelAgentNotification))
	lc, _ := k.Lifecycle("vault")
	assert.False(t, lc.NeedsNotification)
}

func TestUpdateAgentLifecycle_NotifiesWhileActionsDeferred(t *testing.T) {
	ctx := context.Background()
	k := New()
	rec := testutil.NewRecorder(k, core.ChannelAgentNotification)
	e := testutil.NewFakeEngine("vault")
	require.NoError(t, k.RegisterEngine(ctx, e))
	require.NoError(t, k.Init(ctx))

	require.NoError(t, k.UpdateAgentLifecycle(ctx, "vault", core.LifecyclePatch{
		ShouldStart:          core.Bool(true),
		NeedsNotification:    core.Bool(true),
		NotificationPriority: core.PriorityPtr(core.PriorityCritical),
	}))

	assert.Equal(t, 1, rec.Count(core.ChannelAgentNotification))
	assert.Zero(t, e.CallCount("start"))
	lc, _ := k.Lifecycle("vault")
	assert.True(t, lc.ShouldStart)
}

func TestUpdateAgentLifecycle_ReentrantHandler(t *testing.T) {
	k, rec := newStartedKernel(t)
	ctx := context.Background()
	require.NoError(t, k.RegisterEngine(ctx, testutil.NewFakeEngine("builder")))

	k.On(core.ChannelAgentStarted, func(ctx context.Context, ev core.Event) error {
		id := ev.Data.(core.LifecycleChanged).EngineID
		return k.UpdateAgentLifecycle(ctx, id, core.LifecyclePatch{NeedsNotification: core.Bool(true)})
	})

	require.NoError(t, k.UpdateAgentLifecycle(ctx, "builder", core.LifecyclePatch{ShouldStart: core.Bool(true)}))
	assert.Equal(t, 1, rec.Count(core.ChannelAgentNotification))
}

func TestCallbacks_BeforeActionVeto(t *testing.T) {
	e := testutil.NewFakeEngine("payments")
	k := New()
	var logged []string
	k.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeLifecycleAction, func(_ context.Context, cc *CallbackContext) error {
		if cc.EngineID == "payments" && cc.Action == core.ActionStart {
			return errors.New("payments disabled")
		}
		return nil
	}))
	k.Callbacks().RegisterCallback(NewLoggingCallback(CallbackOnLifecycleError, func(m string) { logged = append(logged, m) }))
	k.Callbacks().RegisterCallback(NewLoggingCallback(CallbackOnKernelStateChange, func(m string) { logged = append(logged, m) }))

	rec := testutil.NewRecorder(k, core.ChannelAgentLifecycleError)
	ctx := context.Background()
	require.NoError(t, k.RegisterEngine(ctx, e))
	require.NoError(t, k.Start(ctx))
	defer func() { _ = k.Stop(ctx) }()

	assert.Zero(t, e.CallCount("start"))
	assert.False(t, k.IsEngineRunning("payments"))
	require.Equal(t, 1, rec.Count(core.ChannelAgentLifecycleError))
	assert.Contains(t, rec.Events()[0].Data.(core.LifecycleError).Error, "payments disabled")
	require.Len(t, logged, 3)
	assert.Contains(t, logged[0], "kernel: uninitialized -> initialized")
	assert.Contains(t, logged[1], "payments disabled")
}

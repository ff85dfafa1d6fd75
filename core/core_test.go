package core

import (
	"errors"
	"testing"
	"time"
)

func TestEngineState_Transitions(t *testing.T) {
	legal := [][2]EngineState{
		{EngineStopped, EngineStarting},
		{EngineStarting, EngineRunning},
		{EngineStarting, EngineStopped},
		{EngineRunning, EnginePausing},
		{EnginePausing, EnginePaused},
		{EnginePaused, EngineResuming},
		{EngineResuming, EngineRunning},
		{EngineRunning, EngineStopping},
		{EngineStopping, EngineStopped},
		{EnginePaused, EngineStopping},
	}
	for _, tr := range legal {
		if !tr[0].CanTransition(tr[1]) {
			t.Errorf("expected %s -> %s to be legal", tr[0], tr[1])
		}
	}
	illegal := [][2]EngineState{
		{EngineStopped, EngineRunning},
		{EngineStopped, EnginePaused},
		{EnginePaused, EngineRunning},
		{EngineRunning, EngineStarting},
	}
	for _, tr := range illegal {
		if tr[0].CanTransition(tr[1]) {
			t.Errorf("expected %s -> %s to be illegal", tr[0], tr[1])
		}
	}
}

func TestLifecyclePatch_Apply(t *testing.T) {
	l := NewAgentLifecycle("ai", time.Unix(0, 0))
	if l.ShouldStart || l.ShouldStop || l.NeedsNotification || l.NotificationPriority != PriorityLow {
		t.Fatalf("unexpected defaults %+v", l)
	}
	if !(LifecyclePatch{}).IsEmpty() {
		t.Fatal("zero patch should be empty")
	}
	p := LifecyclePatch{ShouldStart: Bool(true), NotificationPriority: PriorityPtr(PriorityHigh), Reason: String("test")}
	p.Apply(&l)
	if !l.ShouldStart || l.ShouldPause || l.NotificationPriority != PriorityHigh || l.Reason != "test" {
		t.Fatalf("patch not applied %+v", l)
	}
}

func TestRAREContext_CloneIsDeep(t *testing.T) {
	ctx := NewRAREContext("s1", time.Unix(0, 0))
	emo := Emotion{Type: EmotionHappy, Intensity: 0.7, Confidence: 0.9}
	ctx.Memory.History = append(ctx.Memory.History, Interaction{ID: "i1", Input: "hello", Emotion: &emo})
	ctx.Memory.Preferences["lang"] = "ar"
	ctx.Ambient.Needs = []string{NeedQuietMode}

	clone := ctx.Clone()
	clone.Memory.History[0].Emotion.Type = EmotionSad
	clone.Memory.Preferences["lang"] = "en"
	clone.Ambient.Needs[0] = "changed"

	if ctx.Memory.History[0].Emotion.Type != EmotionHappy {
		t.Error("history emotion should not be shared")
	}
	if ctx.Memory.Preferences["lang"] != "ar" {
		t.Error("preferences should not be shared")
	}
	if ctx.Ambient.Needs[0] != NeedQuietMode {
		t.Error("needs should not be shared")
	}
}

func TestContextPatch_ShallowMergePerKey(t *testing.T) {
	ctx := NewRAREContext("s1", time.Unix(0, 0))
	ctx.Memory.Preferences["theme"] = "dark"
	hour := 23
	ContextPatch{
		Ambient: &AmbientPatch{Hour: &hour},
		Memory:  &MemoryPatch{Preferences: map[string]any{"lang": "ar"}},
	}.Apply(&ctx)

	if ctx.Ambient.Hour != 23 {
		t.Fatalf("hour not merged")
	}
	if _, ok := ctx.Memory.Preferences["theme"]; ok {
		t.Fatalf("preferences is a leaf of memory and must be replaced, got %v", ctx.Memory.Preferences)
	}
	if ctx.Session.ID != "s1" {
		t.Fatalf("untouched session must survive")
	}
}

func TestStageError_Unwrap(t *testing.T) {
	err := NewStageError("execute", KindEngineNotFound, ErrEngineNotFound)
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatal("expected errors.Is to see the wrapped sentinel")
	}
	var se *StageError
	if !errors.As(error(err), &se) || se.Kind != KindEngineNotFound {
		t.Fatal("expected errors.As to recover the stage error")
	}
	if err.Error() != "execute: engine_not_found: engine not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestResult(t *testing.T) {
	ok := Ok(3)
	if ok.Degraded() || ok.Reason() != "" || ok.Value != 3 {
		t.Fatalf("unexpected ok result %+v", ok)
	}
	failed := Fail(0, NewStageError("reason", KindStageFailure, errors.New("x")))
	if !failed.Degraded() || failed.Reason() == "" {
		t.Fatalf("unexpected failed result %+v", failed)
	}
}

func TestNeeds(t *testing.T) {
	n := NewNeeds(NeedQuietMode, "", NeedSOS)
	if len(n) != 2 || !n.Has(NeedSOS) || !n.HasAny("x", NeedQuietMode) || n.HasAny("x") {
		t.Fatalf("unexpected needs %v", n)
	}
	if got := n.Sorted(); got[0] != NeedQuietMode || got[1] != NeedSOS {
		t.Fatalf("unexpected order %v", got)
	}
}

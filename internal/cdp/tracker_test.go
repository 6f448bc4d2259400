package cdp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

func nextEvent(t *testing.T, tr *Tracker) types.TabEvent {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no tab event within 2s")
		return types.TabEvent{}
	}
}

func TestTrackerEmitsLifecycle(t *testing.T) {
	r := NewTabRegistry()
	tr := NewTracker(r, func(ctx context.Context, id target.ID) (int, error) { return 7, nil })

	tr.HandleEvent(&target.EventTargetCreated{TargetInfo: page("A", "https://a.com")})
	ev := nextEvent(t, tr)
	if ev.Kind != types.TabCreated || ev.Tab.ID != 1 || ev.Tab.WindowID != 7 {
		t.Fatalf("event = %+v; want created tab 1 in window 7", ev)
	}

	tr.HandleEvent(&target.EventTargetInfoChanged{TargetInfo: page("A", "https://a.com/b")})
	ev = nextEvent(t, tr)
	if ev.Kind != types.TabNavigated || ev.Tab.URL != "https://a.com/b" {
		t.Fatalf("event = %+v; want navigated to https://a.com/b", ev)
	}

	tr.HandleEvent(&target.EventTargetInfoChanged{TargetInfo: page("A", "https://a.com/b")})
	tr.HandleEvent(&target.EventTargetDestroyed{TargetID: "A"})
	ev = nextEvent(t, tr)
	if ev.Kind != types.TabDestroyed || ev.Tab.ID != 1 {
		t.Fatalf("event = %+v; want destroyed tab 1", ev)
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d; want 0", r.Count())
	}
}

func TestTrackerIgnoresNonTabs(t *testing.T) {
	r := NewTabRegistry()
	tr := NewTracker(r, nil)
	tr.HandleEvent(&target.EventTargetCreated{TargetInfo: &target.Info{TargetID: "W", Type: "service_worker"}})
	tr.HandleEvent(&target.EventTargetDestroyed{TargetID: "unknown"})
	tr.HandleEvent("not an event")

	select {
	case ev := <-tr.Events():
		t.Fatalf("event = %+v; want none", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerWindowLookupFailureStillEmits(t *testing.T) {
	r := NewTabRegistry()
	tr := NewTracker(r, func(ctx context.Context, id target.ID) (int, error) { return 0, errors.New("no window") })
	tr.HandleEvent(&target.EventTargetCreated{TargetInfo: page("A", "https://a.com")})
	if ev := nextEvent(t, tr); ev.Kind != types.TabCreated || ev.Tab.WindowID != 0 {
		t.Fatalf("event = %+v; want created with window 0", ev)
	}
}

func TestTrackerSyncEmitsNothing(t *testing.T) {
	r := NewTabRegistry()
	tr := NewTracker(r, func(ctx context.Context, id target.ID) (int, error) { return 3, nil })
	tr.Sync(context.Background(), r.Mark(), []*target.Info{page("A", "https://a.com"), page("B", "https://b.com")})

	if r.Count() != 2 {
		t.Fatalf("Count() = %d; want 2", r.Count())
	}
	if b, _ := r.Get("B"); b.WindowID != 3 {
		t.Fatalf("Get(B).WindowID = %d; want 3", b.WindowID)
	}
	select {
	case ev := <-tr.Events():
		t.Fatalf("event = %+v; want none", ev)
	default:
	}
}

func TestTrackerStopDiscardsEvents(t *testing.T) {
	tr := NewTracker(NewTabRegistry(), nil)
	tr.Stop()
	tr.Stop()
	tr.HandleEvent(&target.EventTargetCreated{TargetInfo: page("A", "https://a.com")})
	select {
	case ev := <-tr.Events():
		t.Fatalf("event = %+v; want none after Stop", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerCreatedDuringListingStillEmits(t *testing.T) {
	r := NewTabRegistry()
	release := make(chan struct{})
	tr := NewTracker(r, func(ctx context.Context, id target.ID) (int, error) {
		if id == "B" {
			<-release
		}
		return 4, nil
	})
	r.Register(page("A", "https://a.com"))

	mark := r.Mark()
	tr.HandleEvent(&target.EventTargetCreated{TargetInfo: page("B", "https://b.com")})
	tr.Sync(context.Background(), mark, []*target.Info{page("A", "https://a.com")})
	close(release)

	ev := nextEvent(t, tr)
	if ev.Kind != types.TabCreated || ev.Tab.ID != 2 || ev.Tab.WindowID != 4 {
		t.Fatalf("event = %+v; want created tab 2 in window 4", ev)
	}
	if r.Count() != 2 {
		t.Fatalf("Count() = %d; want 2", r.Count())
	}

	tr.Sync(context.Background(), r.Mark(), []*target.Info{page("A", "https://a.com"), page("B", "https://b.com")})
	if b, ok := r.Get("B"); !ok || b.ID != 2 {
		t.Fatalf("Get(B) = %+v, %v; want id 2", b, ok)
	}
}

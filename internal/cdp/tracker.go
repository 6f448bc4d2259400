package cdp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

const eventBufSize = 256

// WindowResolver looks up the browser window of a target.
type WindowResolver func(ctx context.Context, targetID target.ID) (int, error)

// Tracker keeps a TabRegistry in step with CDP target discovery events and
// turns them into TabEvents. Both browser backends feed it.
type Tracker struct {
	registry *TabRegistry
	resolve  WindowResolver
	events   chan types.TabEvent
	done     chan struct{}
	once     sync.Once
}

func NewTracker(registry *TabRegistry, resolve WindowResolver) *Tracker {
	return &Tracker{
		registry: registry,
		resolve:  resolve,
		events:   make(chan types.TabEvent, eventBufSize),
		done:     make(chan struct{}),
	}
}

// Events returns the tab event stream. It is never closed; stop reading
// when the owning backend is closed.
func (t *Tracker) Events() <-chan types.TabEvent { return t.events }

// Stop makes further events be discarded.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.done) })
}

// HandleEvent consumes a decoded Target domain event. Other events are
// ignored. It never blocks on CDP calls.
func (t *Tracker) HandleEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		t.onInfo(e.TargetInfo)
	case *target.EventTargetInfoChanged:
		t.onInfo(e.TargetInfo)
	case *target.EventTargetDestroyed:
		if tab, ok := t.registry.Remove(e.TargetID); ok {
			slog.Debug("tab destroyed", "tab_id", tab.ID, "target_id", e.TargetID)
			t.emit(types.TabEvent{Kind: types.TabDestroyed, TargetID: string(e.TargetID), Tab: tab.Tab})
		}
	}
}

func (t *Tracker) onInfo(info *target.Info) {
	if !IsTab(info) {
		return
	}
	tab, created, navigated := t.registry.Register(info)
	switch {
	case created:
		slog.Info("tab created", "tab_id", tab.ID, "target_id", info.TargetID, "url", truncateURL(info.URL))
		go t.resolveAndEmit(info.TargetID, types.TabCreated)
	case navigated:
		slog.Info("tab navigated", "tab_id", tab.ID, "target_id", info.TargetID, "url", truncateURL(info.URL))
		t.emit(types.TabEvent{Kind: types.TabNavigated, TargetID: string(info.TargetID), Tab: tab.Tab})
	}
}

// Sync reconciles the registry with a full listing fetched after mark was
// taken from the registry, and resolves windows for tabs that appeared. It
// emits no events.
func (t *Tracker) Sync(ctx context.Context, mark uint64, infos []*target.Info) {
	added, removed := t.registry.Sync(mark, infos)
	for _, tab := range added {
		t.resolveWindow(ctx, target.ID(tab.TargetID))
	}
	if len(added) > 0 || len(removed) > 0 {
		slog.Debug("tab registry synced", "added", len(added), "removed", len(removed), "tabs", t.registry.Count())
	}
}

func (t *Tracker) resolveAndEmit(targetID target.ID, kind types.TabEventKind) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	t.resolveWindow(ctx, targetID)
	if tab, ok := t.registry.Get(targetID); ok {
		t.emit(types.TabEvent{Kind: kind, TargetID: string(targetID), Tab: tab.Tab})
	}
}

func (t *Tracker) resolveWindow(ctx context.Context, targetID target.ID) {
	if t.resolve == nil {
		return
	}
	windowID, err := t.resolve(ctx, targetID)
	if err != nil {
		slog.Debug("window lookup failed", "target_id", targetID, "error", err)
		return
	}
	t.registry.SetWindow(targetID, windowID)
}

func (t *Tracker) emit(ev types.TabEvent) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.events <- ev:
	default:
		slog.Warn("tab event buffer full, dropping event", "kind", ev.Kind, "tab_id", ev.Tab.ID)
	}
}

package controller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/rules"
	"github.com/dgnsrekt/tabtrim/internal/trim"
	"github.com/dgnsrekt/tabtrim/internal/types"
	"github.com/google/go-cmp/cmp"
)

type fakeBrowser struct {
	mu       sync.Mutex
	tabs     map[int]types.TabInfo
	closed   []int
	closeErr map[int]error
	listErr  error
	events   chan types.TabEvent
}

func newFakeBrowser(tabs ...types.TabInfo) *fakeBrowser {
	b := &fakeBrowser{
		tabs:     make(map[int]types.TabInfo),
		closeErr: make(map[int]error),
		events:   make(chan types.TabEvent, 16),
	}
	for _, t := range tabs {
		b.tabs[t.ID] = t
	}
	return b
}

func (b *fakeBrowser) Connect(context.Context) error { return nil }
func (b *fakeBrowser) Close() error { return nil }
func (b *fakeBrowser) Events() <-chan types.TabEvent { return b.events }

func (b *fakeBrowser) ListTabs(context.Context) ([]types.TabInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]types.TabInfo, 0, len(b.tabs))
	for _, t := range b.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *fakeBrowser) CloseTab(_ context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.closeErr[id]; err != nil {
		return err
	}
	b.closed = append(b.closed, id)
	delete(b.tabs, id)
	return nil
}

func (b *fakeBrowser) closedIDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]int(nil), b.closed...)
	sort.Ints(out)
	return out
}

type memRecorder struct {
	mu     sync.Mutex
	trims  []types.TrimRecord
	events []types.TabEvent
}

func (r *memRecorder) RecordTrim(rec types.TrimRecord) {
	r.mu.Lock()
	r.trims = append(r.trims, rec)
	r.mu.Unlock()
}

func (r *memRecorder) RecordTabEvent(ev types.TabEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *memRecorder) trimCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trims)
}

func tab(id int, url string, window int) types.TabInfo {
	return types.TabInfo{Tab: trim.Tab{ID: id, URL: url, WindowID: window}, TargetID: "T" + url}
}

func hostRules(max int) trim.RulesConfig {
	cfg := rules.Default()
	cfg.Duplicates.IsActivated = false
	cfg.Host = trim.HostRule{IsActivated: true, MaxTabsAllowed: max}
	return cfg
}

func TestTrimTabClosesDuplicates(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/x", 1),
		tab(2, "https://a.com/x", 1),
		tab(3, "https://a.com/y", 1),
		tab(4, "https://a.com/x", 1),
	)
	rec := &memRecorder{}
	s := NewService(b, rules.NewStore(rules.Default()), Options{}, rec)

	res, err := s.TrimTab(context.Background(), 4, false)
	if err != nil {
		t.Fatalf("TrimTab() error = %v; want nil", err)
	}
	if diff := cmp.Diff([]int{1, 2}, b.closedIDs()); diff != "" {
		t.Fatalf("closed tabs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, res.Removed()); diff != "" {
		t.Fatalf("TrimResult.Removed() mismatch (-want +got):\n%s", diff)
	}
	if rec.trimCount() != 2 {
		t.Fatalf("recorded trims = %d; want 2", rec.trimCount())
	}
	for _, r := range res.Records {
		if r.Rule != string(trim.RuleDuplicates) || r.TriggerID != 4 || r.URL != "https://a.com/x" {
			t.Fatalf("record = %+v; want duplicates rule for trigger 4 with url", r)
		}
	}
}

func TestTrimTabUnknownTab(t *testing.T) {
	s := NewService(newFakeBrowser(), rules.NewStore(rules.Default()), Options{})
	_, err := s.TrimTab(context.Background(), 42, false)
	var coded *types.CodedError
	if !errors.As(err, &coded) || coded.Code != types.CodeTabNotFound {
		t.Fatalf("TrimTab() error = %v; want %s", err, types.CodeTabNotFound)
	}
}

func TestTrimTabRequiresID(t *testing.T) {
	s := NewService(newFakeBrowser(), rules.NewStore(rules.Default()), Options{})
	_, err := s.TrimTab(context.Background(), trim.TabIDNone, false)
	var coded *types.CodedError
	if !errors.As(err, &coded) || coded.Code != types.CodeValidation {
		t.Fatalf("TrimTab() error = %v; want %s", err, types.CodeValidation)
	}
}

func TestTrimTabDryRunClosesNothing(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/1", 1),
		tab(2, "https://a.com/2", 1),
		tab(3, "https://a.com/3", 1),
	)
	rec := &memRecorder{}
	s := NewService(b, rules.NewStore(hostRules(2)), Options{}, rec)

	res, err := s.TrimTab(context.Background(), 3, true)
	if err != nil {
		t.Fatalf("TrimTab() error = %v; want nil", err)
	}
	if got := b.closedIDs(); len(got) != 0 {
		t.Fatalf("closed tabs = %v; want none", got)
	}
	if diff := cmp.Diff([]int{1, 2}, res.Removed()); diff != "" {
		t.Fatalf("planned removals mismatch (-want +got):\n%s", diff)
	}
	if res.GroupKey != "a.com" {
		t.Fatalf("GroupKey = %q; want %q", res.GroupKey, "a.com")
	}
	for _, r := range res.Records {
		if !r.DryRun {
			t.Fatalf("record %+v DryRun = false; want true", r)
		}
	}
	if rec.trimCount() != 2 {
		t.Fatalf("recorded trims = %d; want 2", rec.trimCount())
	}
}

func TestTrimTabSameWindowOnly(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/x", 1),
		tab(2, "https://a.com/x", 2),
		tab(3, "https://a.com/x", 1),
	)
	s := NewService(b, rules.NewStore(rules.Default()), Options{SameWindowOnly: true})

	if _, err := s.TrimTab(context.Background(), 3, false); err != nil {
		t.Fatalf("TrimTab() error = %v; want nil", err)
	}
	if diff := cmp.Diff([]int{1}, b.closedIDs()); diff != "" {
		t.Fatalf("closed tabs mismatch (-want +got):\n%s", diff)
	}
}

func TestTrimTabProtectPrefixes(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://mail.example.com/inbox", 1),
		tab(2, "https://mail.example.com/inbox", 1),
		tab(3, "https://mail.example.com/inbox", 1),
	)
	s := NewService(b, rules.NewStore(rules.Default()), Options{ProtectPrefixes: []string{"https://mail.example.com/"}})

	if _, err := s.TrimTab(context.Background(), 3, false); err != nil {
		t.Fatalf("TrimTab() error = %v; want nil", err)
	}
	if got := b.closedIDs(); len(got) != 0 {
		t.Fatalf("closed tabs = %v; want none", got)
	}
}

func TestTrimTabCloseFailureIsRecorded(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/x", 1),
		tab(2, "https://a.com/x", 1),
		tab(3, "https://a.com/x", 1),
	)
	b.closeErr[1] = errors.New("boom")
	rec := &memRecorder{}
	s := NewService(b, rules.NewStore(rules.Default()), Options{}, rec)

	res, err := s.TrimTab(context.Background(), 3, false)
	var coded *types.CodedError
	if !errors.As(err, &coded) || coded.Code != types.CodeTrimFailed {
		t.Fatalf("TrimTab() error = %v; want %s", err, types.CodeTrimFailed)
	}
	if diff := cmp.Diff([]int{2}, b.closedIDs()); diff != "" {
		t.Fatalf("closed tabs mismatch (-want +got):\n%s", diff)
	}
	if len(res.Records) != 2 || res.Records[0].TabID != 1 || res.Records[0].Error == "" {
		t.Fatalf("records = %+v; want failed record for tab 1 first", res.Records)
	}
}

func TestTrimAllNewestFirst(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/1", 1),
		tab(2, "https://a.com/2", 1),
		tab(3, "https://b.com/1", 1),
		tab(4, "https://a.com/3", 1),
	)
	s := NewService(b, rules.NewStore(hostRules(2)), Options{})

	results, err := s.TrimAll(context.Background(), false)
	if err != nil {
		t.Fatalf("TrimAll() error = %v; want nil", err)
	}
	if diff := cmp.Diff([]int{1, 2}, b.closedIDs()); diff != "" {
		t.Fatalf("closed tabs mismatch (-want +got):\n%s", diff)
	}
	if len(results) != 1 || results[0].Trigger.ID != 4 {
		t.Fatalf("results = %+v; want one result triggered by tab 4", results)
	}
}

func TestSetRulesRejectsInvalid(t *testing.T) {
	s := NewService(newFakeBrowser(), rules.NewStore(rules.Default()), Options{})
	bad := rules.Default()
	bad.Host = trim.HostRule{IsActivated: true, MaxTabsAllowed: 0}

	_, _, err := s.SetRules(bad)
	var coded *types.CodedError
	if !errors.As(err, &coded) || coded.Code != types.CodeValidation {
		t.Fatalf("SetRules() error = %v; want %s", err, types.CodeValidation)
	}
	got, gen := s.GetRules()
	if gen != 1 || got.Host.IsActivated {
		t.Fatalf("GetRules() = %+v gen %d; want defaults gen 1", got, gen)
	}
}

func TestGroupKey(t *testing.T) {
	s := NewService(newFakeBrowser(), rules.NewStore(rules.Default()), Options{})

	key, gt, err := s.GroupKey("https://Docs.Example.com/a")
	if err != nil || key != "docs.example.com" || gt != trim.GroupFullDomain {
		t.Fatalf("GroupKey() = %q, %q, %v; want docs.example.com, FULL_DOMAIN, nil", key, gt, err)
	}
	if _, _, err := s.GroupKey("chrome://newtab"); err == nil {
		t.Fatalf("GroupKey(chrome://newtab) error = nil; want error")
	}
}

func TestRunDebouncesTabEvents(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/x", 1),
		tab(2, "https://a.com/x", 1),
	)
	rec := &memRecorder{}
	s := NewService(b, rules.NewStore(rules.Default()), Options{Debounce: 20 * time.Millisecond}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ev := types.TabEvent{Kind: types.TabNavigated, Tab: trim.Tab{ID: 2, URL: "https://a.com/x"}}
	b.events <- ev
	b.events <- ev
	b.events <- ev

	deadline := time.Now().Add(2 * time.Second)
	for rec.trimCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v; want context.Canceled", err)
	}

	if diff := cmp.Diff([]int{1}, b.closedIDs()); diff != "" {
		t.Fatalf("closed tabs mismatch (-want +got):\n%s", diff)
	}
	if rec.trimCount() != 1 {
		t.Fatalf("recorded trims = %d; want 1", rec.trimCount())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 3 {
		t.Fatalf("recorded tab events = %d; want 3", len(rec.events))
	}
}

func TestRunDestroyedCancelsPending(t *testing.T) {
	b := newFakeBrowser(
		tab(1, "https://a.com/x", 1),
		tab(2, "https://a.com/x", 1),
	)
	s := NewService(b, rules.NewStore(rules.Default()), Options{Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	b.events <- types.TabEvent{Kind: types.TabCreated, Tab: trim.Tab{ID: 2}}
	b.events <- types.TabEvent{Kind: types.TabDestroyed, Tab: trim.Tab{ID: 2}}
	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	if got := b.closedIDs(); len(got) != 0 {
		t.Fatalf("closed tabs = %v; want none", got)
	}
}

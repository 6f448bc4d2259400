package controller

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/rules"
	"github.com/dgnsrekt/tabtrim/internal/trim"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

// Browser is a tab-level view of one browser. Both CDP backends satisfy it.
type Browser interface {
	Connect(ctx context.Context) error
	Close() error
	ListTabs(ctx context.Context) ([]types.TabInfo, error)
	CloseTab(ctx context.Context, id int) error
	Events() <-chan types.TabEvent
}

// Recorder receives every trim decision and tab lifecycle event.
type Recorder interface {
	RecordTrim(rec types.TrimRecord)
	RecordTabEvent(ev types.TabEvent)
}

// Options tune how the service builds the evaluator's collaborators.
type Options struct {
	SameWindowOnly  bool
	ProtectPrefixes []string
	Debounce        time.Duration
}

// TrimResult is the outcome of one evaluation.
type TrimResult struct {
	Trigger  trim.Tab           `json:"trigger"`
	GroupKey string             `json:"group_key,omitempty"`
	DryRun   bool               `json:"dry_run"`
	Records  []types.TrimRecord `json:"records"`
}

// Removed returns the ids of tabs closed (or planned) without error.
func (r TrimResult) Removed() []int {
	var ids []int
	for _, rec := range r.Records {
		if rec.Error == "" {
			ids = append(ids, rec.TabID)
		}
	}
	return ids
}

// Service wires a browser backend and the live rule set to the trim
// evaluator.
type Service struct {
	browser   Browser
	rules     *rules.Store
	opts      Options
	recorders []Recorder
	now       func() time.Time

	mu      sync.Mutex
	pending map[int]*time.Timer
	wg      sync.WaitGroup
}

func NewService(browser Browser, store *rules.Store, opts Options, recorders ...Recorder) *Service {
	return &Service{
		browser:   browser,
		rules:     store,
		opts:      opts,
		recorders: recorders,
		now:       func() time.Time { return time.Now().UTC() },
		pending:   make(map[int]*time.Timer),
	}
}

func (s *Service) ListTabs(ctx context.Context) ([]types.TabInfo, error) {
	return s.browser.ListTabs(ctx)
}

func (s *Service) GetRules() (trim.RulesConfig, int64) {
	return s.rules.Get()
}

func (s *Service) SetRules(cfg trim.RulesConfig) (trim.RulesConfig, int64, error) {
	gen, err := s.rules.Set(cfg)
	if err != nil {
		return trim.RulesConfig{}, 0, types.NewError(types.CodeValidation, err.Error(), err)
	}
	cfg, _ = s.rules.Get()
	slog.Info("rules updated", "generation", gen,
		"duplicates", cfg.Duplicates.IsActivated,
		"group", cfg.Group.IsActivated, "group_type", cfg.Group.Type,
		"host", cfg.Host.IsActivated, "max_tabs_allowed", cfg.Host.MaxTabsAllowed)
	return cfg, gen, nil
}

// GroupKey returns the group key the host-limit rule would use for rawURL
// under the current rules.
func (s *Service) GroupKey(rawURL string) (string, trim.GroupType, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", "", types.NewError(types.CodeValidation, "url is required", nil)
	}
	cfg, _ := s.rules.Get()
	key, ok := trim.GroupKey(rawURL, cfg)
	if !ok {
		return "", trim.EffectiveGroupType(cfg), types.NewError(types.CodeValidation, "url has no group key", nil)
	}
	return key, trim.EffectiveGroupType(cfg), nil
}

// TrimTab evaluates the rules with tab id as the trigger. With dryRun set
// nothing is closed and the result lists what would be.
func (s *Service) TrimTab(ctx context.Context, id int, dryRun bool) (TrimResult, error) {
	if id == trim.TabIDNone {
		return TrimResult{}, types.NewError(types.CodeValidation, "tab_id is required", nil)
	}
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return TrimResult{}, err
	}
	var trigger trim.Tab
	found := false
	for _, t := range tabs {
		if t.ID == id {
			trigger, found = t.Tab, true
			break
		}
	}
	if !found {
		return TrimResult{}, types.NewError(types.CodeTabNotFound, "tab not found", nil)
	}
	return s.evaluate(ctx, trigger, dryRun)
}

// TrimAll evaluates every open tab as a trigger, newest first, skipping
// tabs an earlier evaluation already removed.
func (s *Service) TrimAll(ctx context.Context, dryRun bool) ([]TrimResult, error) {
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID > tabs[j].ID })

	gone := make(map[int]bool)
	var (
		results []TrimResult
		errs    []error
	)
	for _, t := range tabs {
		if gone[t.ID] {
			continue
		}
		res, err := s.evaluate(ctx, t.Tab, dryRun)
		if err != nil {
			errs = append(errs, err)
		}
		for _, removed := range res.Removed() {
			gone[removed] = true
		}
		if len(res.Records) > 0 {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}

func (s *Service) evaluate(ctx context.Context, trigger trim.Tab, dryRun bool) (TrimResult, error) {
	cfg, gen := s.rules.Get()
	res := TrimResult{Trigger: trigger, DryRun: dryRun}
	if key, ok := trim.GroupKey(trigger.URL, cfg); ok && cfg.Host.IsActivated {
		res.GroupKey = key
	}

	snapshot := newTabIndex()
	query := s.queryFor(trigger, snapshot)

	if dryRun {
		plan, err := trim.PlanTabs(ctx, trigger, cfg, query)
		for _, id := range plan.Duplicates {
			res.Records = append(res.Records, s.record(trim.RuleDuplicates, trigger, res.GroupKey, snapshot.get(id), true, nil))
		}
		for _, id := range plan.Host {
			res.Records = append(res.Records, s.record(trim.RuleHost, trigger, res.GroupKey, snapshot.get(id), true, nil))
		}
		s.publish(res.Records)
		if err != nil {
			return res, types.NewError(types.CodeTrimFailed, "trim plan failed", err)
		}
		return res, nil
	}

	var mu sync.Mutex
	remove := func(ctx context.Context, id int) error {
		rule, _ := trim.RuleFromContext(ctx)
		err := s.browser.CloseTab(ctx, id)
		rec := s.record(rule, trigger, res.GroupKey, snapshot.get(id), false, err)
		mu.Lock()
		res.Records = append(res.Records, rec)
		mu.Unlock()
		s.publish([]types.TrimRecord{rec})
		return err
	}

	err := trim.TrimTabs(ctx, trigger, cfg, query, remove)
	sort.SliceStable(res.Records, func(i, j int) bool {
		if res.Records[i].Rule != res.Records[j].Rule {
			return res.Records[i].Rule < res.Records[j].Rule
		}
		return res.Records[i].TabID < res.Records[j].TabID
	})
	if len(res.Records) > 0 || err != nil {
		slog.Info("trim evaluated", "trigger_id", trigger.ID, "rules_generation", gen,
			"group_key", res.GroupKey, "removed", len(res.Removed()), "failed", len(res.Records)-len(res.Removed()))
	}
	if err != nil {
		return res, types.NewError(types.CodeTrimFailed, "trim failed", err)
	}
	return res, nil
}

// queryFor builds the evaluator's query collaborator for one trigger. Tabs
// are listed fresh on every call; protected and out-of-window tabs are
// never returned.
func (s *Service) queryFor(trigger trim.Tab, index *tabIndex) trim.QueryFunc {
	return func(ctx context.Context, info trim.QueryInfo) ([]trim.Tab, error) {
		tabs, err := s.browser.ListTabs(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]trim.Tab, 0, len(tabs))
		for _, t := range tabs {
			index.put(t)
			if info.URL != "" && t.URL != info.URL {
				continue
			}
			if s.opts.SameWindowOnly && trigger.WindowID != 0 && t.WindowID != trigger.WindowID {
				continue
			}
			if s.protected(t.URL) {
				continue
			}
			out = append(out, t.Tab)
		}
		return out, nil
	}
}

func (s *Service) protected(rawURL string) bool {
	for _, prefix := range s.opts.ProtectPrefixes {
		if prefix != "" && strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

func (s *Service) record(rule trim.Rule, trigger trim.Tab, groupKey string, tab types.TabInfo, dryRun bool, err error) types.TrimRecord {
	rec := types.TrimRecord{
		Timestamp:  s.now(),
		Rule:       string(rule),
		TriggerID:  trigger.ID,
		TriggerURL: trigger.URL,
		TabID:      tab.ID,
		TargetID:   tab.TargetID,
		URL:        tab.URL,
		DryRun:     dryRun,
	}
	if rule == trim.RuleHost {
		rec.GroupKey = groupKey
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func (s *Service) publish(recs []types.TrimRecord) {
	for _, rec := range recs {
		for _, r := range s.recorders {
			r.RecordTrim(rec)
		}
	}
}

// tabIndex remembers tabs seen by queries so removal records can carry
// the URL of a tab that is already closed.
type tabIndex struct {
	mu   sync.Mutex
	tabs map[int]types.TabInfo
}

func newTabIndex() *tabIndex {
	return &tabIndex{tabs: make(map[int]types.TabInfo)}
}

func (x *tabIndex) put(t types.TabInfo) {
	x.mu.Lock()
	x.tabs[t.ID] = t
	x.mu.Unlock()
}

func (x *tabIndex) get(id int) types.TabInfo {
	x.mu.Lock()
	defer x.mu.Unlock()
	if t, ok := x.tabs[id]; ok {
		return t
	}
	return types.TabInfo{Tab: trim.Tab{ID: id}}
}

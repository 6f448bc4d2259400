// Package trim decides which open tabs are redundant with a newly focused
// or created tab and asks the browser to close them.
package trim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Rule names a removal rule. The group rule never removes on its own, so it
// has no Rule value.
type Rule string

const (
	RuleDuplicates Rule = "duplicates"
	RuleHost       Rule = "host"
)

type ruleKey struct{}

// RuleFromContext returns the rule that issued a RemoveFunc call.
func RuleFromContext(ctx context.Context) (Rule, bool) {
	r, ok := ctx.Value(ruleKey{}).(Rule)
	return r, ok
}

// Plan lists the tab ids each rule would remove, in removal order.
type Plan struct {
	Duplicates []int  `json:"duplicates"`
	Host       []int  `json:"host"`
	GroupKey   string `json:"group_key,omitempty"`
}

// Empty reports whether no rule selected anything.
func (p Plan) Empty() bool {
	return len(p.Duplicates) == 0 && len(p.Host) == 0
}

// TrimTabs runs every enabled rule for trigger and calls remove once per
// redundant tab, per rule. Rules run concurrently and never share state.
// Collaborator errors do not stop other rules or other removals; they are
// joined and returned once all work has settled.
func TrimTabs(ctx context.Context, trigger Tab, cfg RulesConfig, query QueryFunc, remove RemoveFunc) error {
	_, err := evaluate(ctx, trigger, cfg, query, remove)
	return err
}

// PlanTabs computes what TrimTabs would remove without removing anything.
func PlanTabs(ctx context.Context, trigger Tab, cfg RulesConfig, query QueryFunc) (Plan, error) {
	return evaluate(ctx, trigger, cfg, query, nil)
}

func evaluate(ctx context.Context, trigger Tab, cfg RulesConfig, query QueryFunc, remove RemoveFunc) (Plan, error) {
	var (
		plan Plan
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	run := func(rule Rule, selectFn func(context.Context) ([]int, error), store *[]int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := selectFn(ctx)
			if err != nil {
				fail(fmt.Errorf("%s rule: %w", rule, err))
				return
			}
			mu.Lock()
			*store = ids
			mu.Unlock()
			if remove == nil || len(ids) == 0 {
				return
			}
			slog.Debug("trim removing tabs", "rule", rule, "trigger_id", trigger.ID, "tab_ids", ids)
			for _, err := range removeAll(context.WithValue(ctx, ruleKey{}, rule), ids, remove) {
				fail(fmt.Errorf("%s rule: %w", rule, err))
			}
		}()
	}

	if cfg.Duplicates.IsActivated {
		run(RuleDuplicates, func(ctx context.Context) ([]int, error) {
			return duplicateTargets(ctx, trigger, query)
		}, &plan.Duplicates)
	}
	if cfg.Host.IsActivated {
		if key, ok := GroupKey(trigger.URL, cfg); ok {
			plan.GroupKey = key
		}
		run(RuleHost, func(ctx context.Context) ([]int, error) {
			return hostTargets(ctx, trigger, cfg, query)
		}, &plan.Host)
	}

	wg.Wait()
	return plan, errors.Join(errs...)
}

// removeAll dispatches every removal concurrently and waits for all of them.
func removeAll(ctx context.Context, ids []int, remove RemoveFunc) []error {
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := remove(ctx, id); err != nil {
				errs[i] = fmt.Errorf("remove tab %d: %w", id, err)
			}
		}()
	}
	wg.Wait()

	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// duplicateTargets returns the ids of other tabs with exactly the trigger's URL.
func duplicateTargets(ctx context.Context, trigger Tab, query QueryFunc) ([]int, error) {
	if trigger.URL == "" || !trigger.HasID() {
		return nil, nil
	}
	tabs, err := query(ctx, QueryInfo{URL: trigger.URL})
	if err != nil {
		return nil, err
	}

	var ids []int
	seen := make(map[int]bool, len(tabs))
	for _, t := range tabs {
		if !t.HasID() || t.ID == trigger.ID || t.URL != trigger.URL || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// hostTargets returns every other tab sharing the trigger's group key once
// their count reaches MaxTabsAllowed, sorted by ascending id.
func hostTargets(ctx context.Context, trigger Tab, cfg RulesConfig, query QueryFunc) ([]int, error) {
	if !trigger.HasID() {
		return nil, nil
	}
	key, ok := GroupKey(trigger.URL, cfg)
	if !ok {
		slog.Debug("trim host rule skipped, no group key", "trigger_id", trigger.ID, "url", trigger.URL)
		return nil, nil
	}
	tabs, err := query(ctx, QueryInfo{})
	if err != nil {
		return nil, err
	}

	var ids []int
	seen := make(map[int]bool, len(tabs))
	for _, t := range tabs {
		if !t.HasID() || t.ID == trigger.ID || seen[t.ID] {
			continue
		}
		if k, ok := GroupKey(t.URL, cfg); !ok || k != key {
			continue
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
	}

	if len(ids) < cfg.Host.MaxTabsAllowed {
		return nil, nil
	}
	sort.Ints(ids)
	return ids, nil
}

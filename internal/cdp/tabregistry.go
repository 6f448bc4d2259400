package cdp

import (
	"sort"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tabtrim/internal/trim"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

// TabRegistry maps CDP target IDs to integer tab ids. Ids are handed out in
// discovery order, so a lower id means an older tab.
//
// Every change bumps a sequence number. A full listing is only trusted for
// tabs whose last change is not newer than the Mark taken before the
// listing was fetched; events that raced the listing win.
type TabRegistry struct {
	tabs   map[target.ID]*entry
	ids    map[int]target.ID
	gone   map[target.ID]uint64 // removal seq of targets a listing may still show
	nextID int
	seq    uint64
	mu     sync.RWMutex
}

type entry struct {
	info    types.TabInfo
	added   uint64
	changed uint64
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		tabs:   make(map[target.ID]*entry),
		ids:    make(map[int]target.ID),
		gone:   make(map[target.ID]uint64),
		nextID: 1,
	}
}

// IsTab reports whether a target is a user-visible browser tab.
func IsTab(info *target.Info) bool {
	return info != nil && info.Type == "page" && info.Subtype == ""
}

// Mark returns the current change sequence. Take it before fetching a
// listing that will be passed to Sync.
func (r *TabRegistry) Mark() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Register records or refreshes a page target. created is true for a target
// seen for the first time, navigated when its URL changed.
func (r *TabRegistry) Register(info *target.Info) (tab types.TabInfo, created, navigated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(info)
}

func (r *TabRegistry) registerLocked(info *target.Info) (tab types.TabInfo, created, navigated bool) {
	e, ok := r.tabs[info.TargetID]
	if !ok {
		r.seq++
		e = &entry{
			info: types.TabInfo{
				Tab:       trim.Tab{ID: r.nextID},
				TargetID:  string(info.TargetID),
				BrowserID: types.BrowserIDFromTargetID(string(info.TargetID)),
			},
			added:   r.seq,
			changed: r.seq,
		}
		r.tabs[info.TargetID] = e
		r.ids[r.nextID] = info.TargetID
		r.nextID++
		created = true
	}
	navigated = !created && e.info.URL != info.URL
	if navigated {
		r.seq++
		e.changed = r.seq
	}
	e.info.URL = info.URL
	e.info.Title = info.Title

	return r.snapshotLocked(e), created, navigated
}

// SetWindow records the browser window a target lives in.
func (r *TabRegistry) SetWindow(targetID target.ID, windowID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tabs[targetID]; ok {
		e.info.WindowID = windowID
	}
}

// Remove forgets a target and returns its last known state.
func (r *TabRegistry) Remove(targetID target.ID) (types.TabInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(targetID)
}

func (r *TabRegistry) removeLocked(targetID target.ID) (types.TabInfo, bool) {
	e, ok := r.tabs[targetID]
	if !ok {
		return types.TabInfo{}, false
	}
	snap := r.snapshotLocked(e)
	delete(r.tabs, targetID)
	delete(r.ids, e.info.ID)
	r.seq++
	r.gone[targetID] = r.seq
	return snap, true
}

// Sync reconciles the registry with a full target listing fetched after
// mark was taken. Non-tab targets are ignored. Tabs created or navigated
// after mark keep their event-driven state, and a removed target stays
// removed until a listing no longer shows it. It returns the tabs that
// appeared and the ones that vanished.
func (r *TabRegistry) Sync(mark uint64, infos []*target.Info) (added, removed []types.TabInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		if !IsTab(info) {
			continue
		}
		seen[info.TargetID] = true
		if _, closing := r.gone[info.TargetID]; closing {
			continue
		}
		if e, ok := r.tabs[info.TargetID]; ok && e.changed > mark {
			continue
		}
		if tab, created, _ := r.registerLocked(info); created {
			added = append(added, tab)
		}
	}

	for id, e := range r.tabs {
		if !seen[id] && e.added <= mark {
			if tab, ok := r.removeLocked(id); ok {
				removed = append(removed, tab)
			}
		}
	}
	for id, s := range r.gone {
		if s <= mark && !seen[id] {
			delete(r.gone, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return added, removed
}

func (r *TabRegistry) Get(targetID target.ID) (types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tabs[targetID]
	if !ok {
		return types.TabInfo{}, false
	}
	return r.snapshotLocked(e), true
}

func (r *TabRegistry) GetByID(id int) (types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targetID, ok := r.ids[id]
	if !ok {
		return types.TabInfo{}, false
	}
	return r.snapshotLocked(r.tabs[targetID]), true
}

// TargetID resolves an integer tab id back to its CDP target.
func (r *TabRegistry) TargetID(id int) (target.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targetID, ok := r.ids[id]
	return targetID, ok
}

// Tabs returns every registered tab ordered by id.
func (r *TabRegistry) Tabs() []types.TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TabInfo, 0, len(r.tabs))
	for _, e := range r.tabs {
		out = append(out, r.snapshotLocked(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// snapshotLocked copies a tab and fills Index: its position among the
// tabs of its window, ordered by id.
func (r *TabRegistry) snapshotLocked(e *entry) types.TabInfo {
	snap := e.info
	snap.Index = 0
	for _, other := range r.tabs {
		if other.info.WindowID == e.info.WindowID && other.info.ID < e.info.ID {
			snap.Index++
		}
	}
	return snap
}

package trim

import "context"

// TabIDNone marks a tab the browser does not allow closing.
const TabIDNone = 0

// Tab is a snapshot of an open browser tab. The evaluator only reads
// ID and URL; the remaining fields are carried for callers.
type Tab struct {
	ID          int    `json:"id"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	WindowID    int    `json:"window_id"`
	Index       int    `json:"index"`
	Pinned      bool   `json:"pinned"`
	Active      bool   `json:"active"`
	Discarded   bool   `json:"discarded"`
	Incognito   bool   `json:"incognito"`
	Highlighted bool   `json:"highlighted"`
	Audible     bool   `json:"audible"`
}

// HasID reports whether the tab can be addressed for removal.
func (t Tab) HasID() bool { return t.ID != TabIDNone }

// GroupType selects how the host-limit rule groups tabs.
type GroupType string

const (
	GroupFullDomain GroupType = "FULL_DOMAIN"
	GroupHost       GroupType = "HOST"
)

// DuplicatesRule closes tabs whose URL equals the trigger's URL.
type DuplicatesRule struct {
	IsActivated bool `yaml:"is_activated" json:"is_activated"`
}

// GroupRule chooses the grouping key used by HostRule.
type GroupRule struct {
	IsActivated bool      `yaml:"is_activated" json:"is_activated"`
	Type        GroupType `yaml:"type" json:"type,omitempty" doc:"FULL_DOMAIN or HOST, case-insensitive; may be empty while the rule is off"`
}

// HostRule caps the number of open tabs sharing the trigger's group key.
type HostRule struct {
	IsActivated    bool `yaml:"is_activated" json:"is_activated"`
	MaxTabsAllowed int  `yaml:"max_tabs_allowed" json:"max_tabs_allowed"`
}

// RulesConfig is the full rule set for one evaluation.
type RulesConfig struct {
	Duplicates DuplicatesRule `yaml:"duplicates" json:"duplicates"`
	Group      GroupRule      `yaml:"group" json:"group"`
	Host       HostRule       `yaml:"host" json:"host"`
}

// QueryInfo filters the open tabs returned by a QueryFunc. The zero value
// matches every open tab.
type QueryInfo struct {
	URL string
}

// QueryFunc returns the open tabs matching q. An empty result is not an error.
type QueryFunc func(ctx context.Context, q QueryInfo) ([]Tab, error)

// RemoveFunc requests closing the tab with the given id. Closing a tab that
// is already gone should succeed.
type RemoveFunc func(ctx context.Context, id int) error

package types

import "github.com/dgnsrekt/tabtrim/internal/trim"

// TabEventKind names a browser tab lifecycle change.
type TabEventKind string

const (
	TabCreated   TabEventKind = "created"
	TabNavigated TabEventKind = "navigated"
	TabDestroyed TabEventKind = "destroyed"
)

// TabEvent is emitted by a browser backend when a page target changes.
type TabEvent struct {
	Kind     TabEventKind
	TargetID string
	Tab      trim.Tab
}

// BrowserIDFromTargetID returns the first 8 chars of a CDP target ID.
func BrowserIDFromTargetID(targetID string) string {
	if len(targetID) >= 8 {
		return targetID[:8]
	}
	return targetID
}

// TabInfo pairs a tab with the CDP target backing it.
type TabInfo struct {
	trim.Tab
	TargetID  string `json:"target_id"`
	BrowserID string `json:"browser_id"` // Short ID from target ID, e.g., "B0D5A8E8"
}


package types

import "time"

// TrimRecord is one removal decision and its outcome, as written to the
// history log and published to event subscribers.
type TrimRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Rule       string    `json:"rule"`
	TriggerID  int       `json:"trigger_id"`
	TriggerURL string    `json:"trigger_url,omitempty"`
	GroupKey   string    `json:"group_key,omitempty"`
	TabID      int       `json:"tab_id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`
	Error      string    `json:"error,omitempty"`
}

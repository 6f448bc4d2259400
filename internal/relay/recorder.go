package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/tabtrim/internal/types"
)

// Feed names published by Recorder.
const (
	FeedTrim = "trim"
	FeedTab  = "tab"
)

// Recorder publishes trim records and tab events to a Broker as JSON.
type Recorder struct {
	broker *Broker
}

func NewRecorder(broker *Broker) *Recorder {
	return &Recorder{broker: broker}
}

func (r *Recorder) RecordTrim(rec types.TrimRecord) {
	r.publish(FeedTrim, rec)
}

func (r *Recorder) RecordTabEvent(ev types.TabEvent) {
	r.publish(FeedTab, struct {
		Kind     types.TabEventKind `json:"kind"`
		TargetID string             `json:"target_id"`
		ID       int                `json:"id"`
		URL      string             `json:"url,omitempty"`
		WindowID int                `json:"window_id"`
	}{ev.Kind, ev.TargetID, ev.Tab.ID, ev.Tab.URL, ev.Tab.WindowID})
}

func (r *Recorder) publish(feed string, v any) {
	if r.broker.ClientCount() == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Debug("relay marshal failed", "feed", feed, "error", err)
		return
	}
	r.broker.Publish(Event{Feed: feed, Payload: string(payload)})
}

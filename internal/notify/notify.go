// Package notify posts a short message to an ntfy topic whenever tabs are
// closed by the trim rules.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/types"
)

const queueSize = 64

// Send posts message to endpoint as text/plain. title is sent as the ntfy
// Title header when set.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Notifier sends one ntfy message per successfully closed tab. Dry runs,
// failed removals and tab events are ignored. Delivery is asynchronous and
// best effort.
type Notifier struct {
	endpoint string
	client   *http.Client
	queue    chan types.TrimRecord
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewNotifier(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	n := &Notifier{
		endpoint: endpoint,
		client:   client,
		queue:    make(chan types.TrimRecord, queueSize),
		done:     make(chan struct{}),
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *Notifier) RecordTrim(rec types.TrimRecord) {
	if rec.DryRun || rec.Error != "" {
		return
	}
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.queue <- rec:
	default:
		slog.Warn("ntfy queue full, dropping notification", "tab_id", rec.TabID)
	}
}

func (n *Notifier) RecordTabEvent(types.TabEvent) {}

// Close stops the sender after delivering queued notifications.
func (n *Notifier) Close() {
	n.once.Do(func() { close(n.done) })
	n.wg.Wait()
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case rec := <-n.queue:
			n.deliver(rec)
		case <-n.done:
			for {
				select {
				case rec := <-n.queue:
					n.deliver(rec)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(rec types.TrimRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Send(ctx, n.client, n.endpoint, Title(rec), Message(rec)); err != nil {
		slog.Debug("ntfy send failed", "endpoint", n.endpoint, "tab_id", rec.TabID, "error", err)
	}
}

// Title names the rule that closed the tab.
func Title(rec types.TrimRecord) string {
	return "tabtrim: " + rec.Rule
}

// Message describes one closed tab.
func Message(rec types.TrimRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Closed tab %d", rec.TabID)
	if rec.URL != "" {
		fmt.Fprintf(&b, " (%s)", rec.URL)
	}
	if rec.GroupKey != "" {
		fmt.Fprintf(&b, ", group %s", rec.GroupKey)
	}
	fmt.Fprintf(&b, ", triggered by tab %d", rec.TriggerID)
	return b.String()
}

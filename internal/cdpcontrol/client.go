package cdpcontrol

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tabtrim/internal/cdp"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

// transientHints are substrings in error causes that indicate a broken
// connection worth one reconnect.
var transientHints = []string{
	"not connected",
	"connection closed",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
}

// Client is the raw CDP browser backend: one browser-level WebSocket with
// target discovery, no page sessions.
type Client struct {
	cdpURL   string
	registry *cdp.TabRegistry
	tracker  *cdp.Tracker

	mu            sync.Mutex // serialises connect/cleanup
	cdp           atomic.Pointer[rawCDP]
	unregisterFns []func()
}

func NewClient(cdpURL string, registry *cdp.TabRegistry) *Client {
	c := &Client{cdpURL: cdpURL, registry: registry}
	c.tracker = cdp.NewTracker(registry, c.windowForTarget)
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return types.NewError(types.CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	raw := newRawCDP(c.cdpURL)
	raw.onDisconnect = func(err error) {
		slog.Warn("cdpcontrol connection lost", "error", err)
	}
	if err := raw.connect(ctx); err != nil {
		return types.NewError(types.CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.cdp.Store(raw)

	for _, method := range []string{"Target.targetCreated", "Target.targetInfoChanged", "Target.targetDestroyed"} {
		c.unregisterFns = append(c.unregisterFns, raw.registerEventHandler(method, c.eventDecoder(method)))
	}

	if err := raw.setDiscoverTargets(ctx, true); err != nil {
		c.cleanupLocked()
		return types.NewError(types.CodeCDPUnavailable, "enable target discovery failed", err)
	}

	mark := c.registry.Mark()
	infos, err := raw.getTargets(ctx)
	if err != nil {
		slog.Debug("cdpcontrol Target.getTargets failed, falling back to /json/list", "error", err)
		if infos, err = raw.listTargets(ctx); err != nil {
			c.cleanupLocked()
			return types.NewError(types.CodeCDPUnavailable, "failed to list targets", err)
		}
	}

	c.tracker.Sync(ctx, mark, infos)

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", c.registry.Count())
	return nil
}

// eventDecoder turns raw Target domain params into cdproto events for the tracker.
func (c *Client) eventDecoder(method string) func(json.RawMessage) {
	return func(params json.RawMessage) {
		var ev any
		switch method {
		case "Target.targetCreated":
			ev = new(target.EventTargetCreated)
		case "Target.targetInfoChanged":
			ev = new(target.EventTargetInfoChanged)
		case "Target.targetDestroyed":
			ev = new(target.EventTargetDestroyed)
		default:
			return
		}
		if err := json.Unmarshal(params, ev); err != nil {
			slog.Debug("cdpcontrol event decode failed", "method", method, "error", err)
			return
		}
		c.tracker.HandleEvent(ev)
	}
}

func (c *Client) Close() error {
	c.tracker.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	for _, fn := range c.unregisterFns {
		fn()
	}
	c.unregisterFns = nil
	if raw := c.cdp.Swap(nil); raw != nil {
		raw.close()
	}
}

func (c *Client) Events() <-chan types.TabEvent { return c.tracker.Events() }

// ListTabs lists page targets via /json/list and returns every tab.
func (c *Client) ListTabs(ctx context.Context) ([]types.TabInfo, error) {
	raw, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	mark := c.registry.Mark()
	infos, err := raw.listTargets(ctx)
	if err != nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "failed to list targets", err)
	}
	c.tracker.Sync(ctx, mark, infos)
	tabs := c.registry.Tabs()
	slog.Debug("cdpcontrol list tabs", "count", len(tabs))
	return tabs, nil
}

// CloseTab closes the tab with the given id. A tab that is already gone
// counts as closed.
func (c *Client) CloseTab(ctx context.Context, id int) error {
	targetID, ok := c.registry.TargetID(id)
	if !ok {
		slog.Debug("cdpcontrol close skipped, tab not tracked", "tab_id", id)
		return nil
	}

	err := c.withReconnect(ctx, func(raw *rawCDP) error {
		return raw.closeTarget(ctx, targetID)
	})
	if err != nil && !cdp.IsTargetGone(err) {
		return types.NewError(types.CodeCloseFailed, "close target failed", err)
	}
	c.registry.Remove(targetID)
	slog.Info("cdpcontrol tab closed", "tab_id", id, "target_id", targetID, "already_gone", err != nil)
	return nil
}

func (c *Client) windowForTarget(ctx context.Context, targetID target.ID) (int, error) {
	raw := c.cdp.Load()
	if raw == nil {
		return 0, types.NewError(types.CodeCDPUnavailable, "not connected", nil)
	}
	return raw.windowForTarget(ctx, targetID)
}

func (c *Client) ensureConnected(ctx context.Context) (*rawCDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if raw := c.cdp.Load(); raw != nil && raw.connected() {
		return raw, nil
	}
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.cdp.Load(), nil
}

// withReconnect runs fn and, on a transient connection error, reconnects
// once and retries.
func (c *Client) withReconnect(ctx context.Context, fn func(*rawCDP) error) error {
	raw, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}
	err = fn(raw)
	if err == nil || !isTransient(err) {
		return err
	}
	slog.Warn("cdpcontrol transient error, reconnecting", "error", err)
	c.mu.Lock()
	reconnErr := c.connectLocked(ctx)
	raw = c.cdp.Load()
	c.mu.Unlock()
	if reconnErr != nil {
		return reconnErr
	}
	return fn(raw)
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

package cdp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/browser"
	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

// Client is the chromedp browser backend. It attaches to the browser
// session only, so connecting never opens or attaches to a tab.
type Client struct {
	cdpURL   string
	registry *TabRegistry
	tracker  *Tracker

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewClient(cdpURL string, registry *TabRegistry) *Client {
	c := &Client{cdpURL: cdpURL, registry: registry}
	c.tracker = NewTracker(registry, c.windowForTarget)
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	mark, targets, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.tracker.Sync(ctx, mark, targets)
	slog.Info("Found browser tabs", "count", c.registry.Count())
	return nil
}

func (c *Client) connect(ctx context.Context) (uint64, []*target.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slog.Info("Connecting to Chromium", "url", c.cdpURL, "backend", "chromedp")
	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)
	chromedp.ListenBrowser(c.browserCtx, c.tracker.HandleEvent)

	mark := c.registry.Mark()
	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		c.cancelLocked()
		return 0, nil, types.NewError(types.CodeCDPUnavailable, "failed to enumerate targets", err)
	}

	execCtx, err := c.execLocked(ctx)
	if err != nil {
		c.cancelLocked()
		return 0, nil, err
	}
	if err := target.SetDiscoverTargets(true).Do(execCtx); err != nil {
		c.cancelLocked()
		return 0, nil, types.NewError(types.CodeCDPUnavailable, "failed to enable target discovery", err)
	}
	return mark, targets, nil
}

// ListTabs refreshes the registry from the browser and returns every tab.
func (c *Client) ListTabs(ctx context.Context) ([]types.TabInfo, error) {
	c.mu.Lock()
	execCtx, err := c.execLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	mark := c.registry.Mark()
	infos, err := target.GetTargets().Do(execCtx)
	if err != nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "failed to list targets", err)
	}
	c.tracker.Sync(ctx, mark, infos)
	return c.registry.Tabs(), nil
}

// CloseTab closes the tab with the given id. A tab that is already gone
// counts as closed.
func (c *Client) CloseTab(ctx context.Context, id int) error {
	targetID, ok := c.registry.TargetID(id)
	if !ok {
		slog.Debug("close skipped, tab not tracked", "tab_id", id)
		return nil
	}

	c.mu.Lock()
	execCtx, err := c.execLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := target.CloseTarget(targetID).Do(execCtx); err != nil {
		if IsTargetGone(err) {
			c.registry.Remove(targetID)
			return nil
		}
		return types.NewError(types.CodeCloseFailed, "close target failed", err)
	}
	c.registry.Remove(targetID)
	slog.Info("tab closed", "tab_id", id, "target_id", targetID)
	return nil
}

func (c *Client) Events() <-chan types.TabEvent { return c.tracker.Events() }

func (c *Client) Close() error {
	c.tracker.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	slog.Info("CDP client closed")
	return nil
}

func (c *Client) windowForTarget(ctx context.Context, targetID target.ID) (int, error) {
	c.mu.Lock()
	execCtx, err := c.execLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	windowID, _, err := browser.GetWindowForTarget().WithTargetID(targetID).Do(execCtx)
	if err != nil {
		return 0, err
	}
	return int(windowID), nil
}

// execLocked binds ctx to the browser-level executor.
func (c *Client) execLocked(ctx context.Context) (context.Context, error) {
	if c.browserCtx == nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "browser not connected", nil)
	}
	cc := chromedp.FromContext(c.browserCtx)
	if cc == nil || cc.Browser == nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "browser not connected", nil)
	}
	return cdproto.WithExecutor(ctx, cc.Browser), nil
}

func (c *Client) cancelLocked() {
	if c.browserCancel != nil {
		c.browserCancel()
		c.browserCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.browserCtx = nil
}

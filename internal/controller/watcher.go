package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tabtrim/internal/types"
)

// Run consumes tab events until ctx is done. Created and navigated tabs are
// evaluated as triggers once the debounce window passes without another
// event for the same tab.
func (s *Service) Run(ctx context.Context) error {
	events := s.browser.Events()
	slog.Info("tab watcher started", "debounce", s.opts.Debounce, "same_window_only", s.opts.SameWindowOnly)
	defer func() {
		s.cancelPending()
		s.wg.Wait()
		slog.Info("tab watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			for _, r := range s.recorders {
				r.RecordTabEvent(ev)
			}
			switch ev.Kind {
			case types.TabCreated, types.TabNavigated:
				s.schedule(ctx, ev.Tab.ID)
			case types.TabDestroyed:
				s.cancel(ev.Tab.ID)
			}
		}
	}
}

func (s *Service) schedule(ctx context.Context, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.opts.Debounce, func() {
		s.mu.Lock()
		if s.pending[id] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.wg.Add(1)
		s.mu.Unlock()

		defer s.wg.Done()
		if ctx.Err() != nil {
			return
		}
		if _, err := s.TrimTab(ctx, id, false); err != nil {
			slog.Warn("trim on tab event failed", "tab_id", id, "error", err)
		}
	})
	s.pending[id] = timer
}

func (s *Service) cancel(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
}

func (s *Service) cancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

package storage

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/tabtrim/internal/types"
)

// History writes trim records and tab events under one base directory. Trim
// records are split per rule (trim/<rule>), tab events go to tabs/. Writers
// are created on first use.
type History struct {
	baseDir    string
	session    string
	maxSizeMB  int
	bufferSize int

	writers map[string]*JSONLWriter
	mu      sync.RWMutex
}

// NewHistory creates a History. session names the files written during this
// process lifetime; empty means the start time.
func NewHistory(baseDir, session string, bufferSize, maxSizeMB int) *History {
	return &History{
		baseDir:    baseDir,
		session:    session,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]*JSONLWriter),
	}
}

func (h *History) RecordTrim(rec types.TrimRecord) {
	if err := h.writer("trim/" + SafeSegment(rec.Rule)).Write(rec); err != nil {
		slog.Debug("trim history write failed", "rule", rec.Rule, "tab_id", rec.TabID, "error", err)
	}
}

func (h *History) RecordTabEvent(ev types.TabEvent) {
	line := struct {
		Kind      types.TabEventKind `json:"kind"`
		TargetID  string             `json:"target_id"`
		BrowserID string             `json:"browser_id"`
		ID        int                `json:"id"`
		URL       string             `json:"url,omitempty"`
		WindowID  int                `json:"window_id"`
	}{ev.Kind, ev.TargetID, types.BrowserIDFromTargetID(ev.TargetID), ev.Tab.ID, ev.Tab.URL, ev.Tab.WindowID}
	if err := h.writer("tabs").Write(line); err != nil {
		slog.Debug("tab history write failed", "kind", ev.Kind, "error", err)
	}
}

func (h *History) writer(subDir string) *JSONLWriter {
	h.mu.RLock()
	w, ok := h.writers[subDir]
	h.mu.RUnlock()
	if ok {
		return w
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.writers[subDir]; ok {
		return w
	}
	w = NewJSONLWriter(h.baseDir, subDir, h.session, h.bufferSize, h.maxSizeMB)
	h.writers[subDir] = w
	slog.Info("Created new JSONL writer", "subdir", subDir)
	return w
}

// Close flushes and closes every writer.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for subDir, w := range h.writers {
		if err := w.Close(); err != nil {
			slog.Error("Failed to close writer", "subdir", subDir, "error", err)
			errs = append(errs, err)
		}
	}
	h.writers = make(map[string]*JSONLWriter)
	return errors.Join(errs...)
}

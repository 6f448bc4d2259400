package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrWriterClosed = errors.New("writer is closed")
	ErrBufferFull   = errors.New("buffer full")
)

// JSONLWriter appends JSON lines asynchronously to
// baseDir/<date>/<subDir>/<fileBase>.jsonl, opening a new file when the
// UTC date changes. Files are size-rotated by lumberjack.
type JSONLWriter struct {
	baseDir   string
	subDir    string // e.g. "trim/host" or "tabs"
	fileBase  string
	maxSizeMB int

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	now         func() time.Time
}

// NewJSONLWriter starts a writer. fileBase names the file inside each date
// directory; empty means the start time in Unix seconds.
func NewJSONLWriter(baseDir, subDir, fileBase string, bufferSize, maxSizeMB int) *JSONLWriter {
	if fileBase == "" {
		fileBase = fmt.Sprintf("%d", time.Now().Unix())
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	w := &JSONLWriter{
		baseDir:   baseDir,
		subDir:    subDir,
		fileBase:  fileBase,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}

	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues a record. It never blocks; a full buffer drops the record.
func (w *JSONLWriter) Write(record any) error {
	select {
	case <-w.done:
		return ErrWriterClosed
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("JSONL write buffer full, dropping record", "subdir", w.subDir)
		return ErrBufferFull
	}
}

// Close stops the writer after flushing queued records.
func (w *JSONLWriter) Close() error {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *JSONLWriter) drain() {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("JSONL writer close timeout, some records may be lost", "subdir", w.subDir)
			return
		default:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal record", "error", err, "subdir", w.subDir)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.openForDate(date); err != nil {
			slog.Error("Failed to open JSONL file", "error", err, "subdir", w.subDir)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write record", "error", err, "subdir", w.subDir)
	}
}

func (w *JSONLWriter) openForDate(date string) error {
	if w.logger != nil {
		w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, w.subDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, w.fileBase+".jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("Opened new JSONL file", "file", filename, "subdir", w.subDir)
	return nil
}

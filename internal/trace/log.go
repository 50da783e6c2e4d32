// Package trace implements the append-only run trace: one JSON event per
// line, written in order, synced per event.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// Sink receives trace events. Components depend on Sink rather than on the
// file-backed Log so tests can substitute a recorder.
type Sink interface {
	Emit(eventType string, payload map[string]any)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(string, map[string]any) {}

// Log is the file-backed trace for a single run. Appends are serialized by
// a mutex so a single event's bytes never interleave with another's.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	runID  string
	seq    int64
	last   time.Time
	closed bool

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithRunID stamps every event with the run identifier.
func WithRunID(id string) Option {
	return func(l *Log) {
		l.runID = id
	}
}

// WithLogger sets the logger used for best-effort emit failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// Open opens (or creates) the trace file at path for appending.
// Complete events are never rewritten; an unterminated final line left by
// an interrupted write is cut off so the next event starts on its own line.
func Open(path string, opts ...Option) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("trace path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	dropped, err := trimPartialTail(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("repair trace file: %w", err)
	}
	// Writes continue from the end; Append serializes them.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek trace file: %w", err)
	}

	l := &Log{
		file:   f,
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if dropped > 0 {
		l.logger.Warn("dropped incomplete trace line",
			slog.String("path", path),
			slog.Int64("bytes", dropped),
		)
	}

	// A resumed run continues the existing sequence and clock.
	existing, err := ReadEvents(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read existing trace: %w", err)
	}
	if n := len(existing); n > 0 {
		l.seq = existing[n-1].Seq
		l.last = existing[n-1].Timestamp
	}
	return l, nil
}

// Path returns the trace file location.
func (l *Log) Path() string {
	return l.path
}

// RunID returns the run identifier stamped on events.
func (l *Log) RunID() string {
	return l.runID
}

// Append writes one event and syncs it to disk before returning.
func (l *Log) Append(eventType string, payload map[string]any) (domain.TraceEvent, error) {
	if eventType == "" {
		return domain.TraceEvent{}, fmt.Errorf("event type is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.TraceEvent{}, fmt.Errorf("trace log %s is closed", l.path)
	}

	ts := l.now().UTC()
	if ts.Before(l.last) {
		ts = l.last
	}

	event := domain.TraceEvent{
		Timestamp: ts,
		Seq:       l.seq + 1,
		RunID:     l.runID,
		EventType: eventType,
		Payload:   maps.Clone(payload),
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.TraceEvent{}, fmt.Errorf("marshal event %s: %w", eventType, err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return domain.TraceEvent{}, fmt.Errorf("append event %s: %w", eventType, err)
	}
	if err := l.file.Sync(); err != nil {
		return domain.TraceEvent{}, fmt.Errorf("sync trace file: %w", err)
	}

	l.seq = event.Seq
	l.last = ts
	return event, nil
}

// Emit appends an event, logging instead of returning any failure.
func (l *Log) Emit(eventType string, payload map[string]any) {
	if _, err := l.Append(eventType, payload); err != nil {
		l.logger.Error("failed to append trace event",
			slog.String("event_type", eventType),
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the underlying file. Further appends fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Sink = (*Log)(nil)

// tailChunk is how far trimPartialTail reads backwards per step.
const tailChunk = 4096

// trimPartialTail truncates f just after its last newline and returns the
// number of bytes removed.
func trimPartialTail(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := fi.Size()
	if size == 0 {
		return 0, nil
	}

	buf := make([]byte, tailChunk)
	end := size
	for end > 0 {
		start := max(end-tailChunk, 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return 0, nil
			}
			return size - keep, f.Truncate(keep)
		}
		end = start
	}
	// No newline at all: the only line is incomplete.
	return size, f.Truncate(0)
}

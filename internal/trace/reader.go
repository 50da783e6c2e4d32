package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// ReadEvents reads every complete event from the trace file at path.
func ReadEvents(path string) ([]domain.TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads newline-delimited events from r in order. A final line
// without a terminating newline is an incomplete write and is discarded.
// A malformed complete line is an error.
func Decode(r io.Reader) ([]domain.TraceEvent, error) {
	events := []domain.TraceEvent{}
	err := Scan(r, func(event domain.TraceEvent) error {
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Scan calls fn for each complete event read from r.
func Scan(r io.Reader, fn func(domain.TraceEvent) error) error {
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read trace: %w", err)
		}
		if errors.Is(err, io.EOF) {
			// Unterminated tail: a partial write, never a complete event.
			return nil
		}
		lineNo++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var event domain.TraceEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("parse trace line %d: %w", lineNo, err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// Filter returns the events whose type is eventType, preserving order.
func Filter(events []domain.TraceEvent, eventType string) []domain.TraceEvent {
	out := make([]domain.TraceEvent, 0, len(events))
	for _, e := range events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

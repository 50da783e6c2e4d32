package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

func TestLog_AppendPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "trace.jsonl")
	log, err := Open(path, WithRunID("run-1"))
	require.NoError(t, err)

	for i, typ := range []string{"e1", "e2", "e3"} {
		_, err := log.Append(typ, map[string]any{"i": i})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, want := range []string{"e1", "e2", "e3"} {
		assert.Equal(t, want, events[i].EventType)
		assert.Equal(t, int64(i+1), events[i].Seq)
		assert.Equal(t, "run-1", events[i].RunID)
		assert.EqualValues(t, i, events[i].Payload["i"])
	}
}

func TestLog_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	log, err := Open(path)
	require.NoError(t, err)
	defer log.Close()

	const writers, perWriter = 8, 50
	big := strings.Repeat("x", 8192)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				log.Emit("write", map[string]any{"writer": w, "i": i, "blob": big})
			}
		}(w)
	}
	wg.Wait()

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, writers*perWriter)

	last := map[float64]float64{}
	for idx, e := range events {
		assert.Equal(t, int64(idx+1), e.Seq)
		assert.Len(t, e.Payload["blob"], len(big))

		w := e.Payload["writer"].(float64)
		i := e.Payload["i"].(float64)
		if prev, ok := last[w]; ok {
			assert.Greater(t, i, prev, "writer %v events out of order", w)
		}
		last[w] = i
	}
}

func TestLog_TimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	n := 0

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	log, err := Open(path, WithClock(func() time.Time {
		ts := clock[n]
		n++
		return ts
	}))
	require.NoError(t, err)
	defer log.Close()

	var got []time.Time
	for range clock {
		ev, err := log.Append("tick", nil)
		require.NoError(t, err)
		got = append(got, ev.Timestamp)
	}

	assert.Equal(t, base, got[0])
	assert.Equal(t, base, got[1])
	assert.Equal(t, base.Add(time.Second), got[2])
}

func TestLog_ReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	first, err := Open(path)
	require.NoError(t, err)
	_, err = first.Append("a", nil)
	require.NoError(t, err)
	_, err = first.Append("b", nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	ev, err := second.Append("c", nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.Equal(t, int64(3), ev.Seq)

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].EventType)
	assert.Equal(t, "c", events[2].EventType)
}

func TestLog_AppendAfterClose(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "trace.jsonl"))
	require.NoError(t, err)
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	_, err = log.Append("late", nil)
	assert.Error(t, err)
}

func TestLog_AppendRejectsEmptyType(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "trace.jsonl"))
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Append("", nil)
	assert.Error(t, err)
}

func TestDecode_DiscardsTruncatedTail(t *testing.T) {
	input := `{"timestamp":"2025-01-01T00:00:00Z","seq":1,"event_type":"a","data":{}}` + "\n" +
		`{"timestamp":"2025-01-01T00:00:01Z","seq":2,"event_type":"b","data":{}}` + "\n" +
		`{"timestamp":"2025-01-01T00:00:02Z","seq":3,"event_ty`

	events, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1].EventType)
}

func TestDecode_MalformedLineNamesLine(t *testing.T) {
	input := `{"seq":1,"event_type":"a","data":{}}` + "\n" + "not json\n"

	_, err := Decode(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadEvents_TruncatedFileOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	log, err := Open(path)
	require.NoError(t, err)
	_, err = log.Append(domain.EventSystemInit, map[string]any{"model": "llama3.1"})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fmt.Fprint(f, `{"event_type":"crash`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSystemInit, events[0].EventType)
}

func TestLog_ReopenDropsIncompleteLine(t *testing.T) {
	tests := []struct {
		name    string
		partial string
	}{
		{"short fragment", `{"timestamp":"2025-01-01T00:00:02Z","seq":2,"event_ty`},
		{"fragment longer than a read chunk", `{"event_type":"llm_interaction","data":{"prompt_preview":"` + strings.Repeat("p", 3*tailChunk)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "trace.jsonl")
			first, err := Open(path)
			require.NoError(t, err)
			_, err = first.Append("e1", map[string]any{"papers": 3})
			require.NoError(t, err)
			require.NoError(t, first.Close())

			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			require.NoError(t, err)
			_, err = fmt.Fprint(f, tt.partial)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			second, err := Open(path)
			require.NoError(t, err)
			ev, err := second.Append("e2", nil)
			require.NoError(t, err)
			require.NoError(t, second.Close())
			assert.Equal(t, int64(2), ev.Seq)

			events, err := ReadEvents(path)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "e1", events[0].EventType)
			assert.Equal(t, "e2", events[1].EventType)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, 2, strings.Count(string(data), "\n"))
			assert.True(t, strings.HasSuffix(string(data), "\n"))
		})
	}
}

func TestLog_ReopenFileWithOnlyIncompleteLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"seq":1,"event_ty`), 0o644))

	log, err := Open(path)
	require.NoError(t, err)
	ev, err := log.Append(domain.EventSystemInit, nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())
	assert.Equal(t, int64(1), ev.Seq)

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSystemInit, events[0].EventType)
}

func TestFilter(t *testing.T) {
	events := []domain.TraceEvent{
		{EventType: "a"}, {EventType: "b"}, {EventType: "a"},
	}
	assert.Len(t, Filter(events, "a"), 2)
	assert.Empty(t, Filter(events, "c"))
}

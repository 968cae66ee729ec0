package qlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndRead(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "query_log.json"))

	require.NoError(t, l.Append(Record{
		QueryText:        "what is indexed?",
		Response:         "three documents",
		Sources:          []string{"a.pdf:0:0"},
		TotalTimeSeconds: 1.23456,
		FirstRequest:     true,
	}))
	require.NoError(t, l.Append(Record{QueryText: "second", Error: "model timeout"}))

	records, err := l.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "what is indexed?", records[0].QueryText)
	assert.Equal(t, 1.235, records[0].TotalTimeSeconds)
	assert.True(t, records[0].FirstRequest)
	// Absent error is normalized, explicit error is kept.
	assert.Equal(t, "None", records[0].Error)
	assert.Equal(t, "model timeout", records[1].Error)
}

func TestLog_MissingFileIsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nope.json"))

	records, err := l.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLog_FileIsJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_log.json")
	l := New(path)
	require.NoError(t, l.Append(Record{QueryText: "q"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)

	for _, key := range []string{
		"query_text", "response", "sources", "total_time_seconds",
		"search_time_seconds", "model_time_seconds", "first_request",
		"change_made", "error",
	} {
		assert.Contains(t, raw[0], key)
	}
	assert.Equal(t, []any{}, raw[0]["sources"])
}

func TestLog_NoStrayTempFile(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "query_log.json"))
	require.NoError(t, l.Append(Record{QueryText: "q"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "query_log.json", entries[0].Name())
}

func TestLog_ConcurrentAppendsLoseNothing(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "query_log.json"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Append(Record{QueryText: "concurrent"})
		}()
	}
	wg.Wait()

	n, err := l.Len()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestLog_CreatesParentDirectory(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nested", "deeper", "query_log.json"))
	require.NoError(t, l.Append(Record{QueryText: "q"}))

	n, err := l.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return fs
}

func TestSaveAndLoadJSON(t *testing.T) {
	fs := newStorage(t)

	require.NoError(t, fs.SaveJSONFile("sessions", "a.json", record{ID: 1, Name: "pip"}))
	assert.True(t, fs.FileExists("sessions", "a.json"))
	assert.True(t, fs.DirExists("sessions"))
	assert.False(t, fs.FileExists("sessions", "a.json.tmp"))

	var got record
	require.NoError(t, fs.LoadJSONFile("sessions", "a.json", &got))
	assert.Equal(t, record{ID: 1, Name: "pip"}, got)

	// 覆盖写入
	require.NoError(t, fs.SaveJSONFile("sessions", "a.json", record{ID: 2}))
	require.NoError(t, fs.LoadJSONFile("sessions", "a.json", &got))
	assert.Equal(t, 2, got.ID)
}

func TestLoadMissingFile(t *testing.T) {
	fs := newStorage(t)
	_, err := fs.LoadTextFile("sessions", "missing.json")
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestDeleteFile(t *testing.T) {
	fs := newStorage(t)
	require.NoError(t, fs.SaveTextFile("x", "f.txt", []byte("hi")))
	require.NoError(t, fs.DeleteFile("x", "f.txt"))
	assert.False(t, fs.FileExists("x", "f.txt"))
	assert.NoError(t, fs.DeleteFile("x", "f.txt"))
}

func TestRejectsPathEscape(t *testing.T) {
	fs := newStorage(t)
	assert.Error(t, fs.SaveTextFile("../outside", "f.txt", []byte("x")))
	_, err := fs.LoadTextFile("..", "secret")
	assert.Error(t, err)
}

func TestAppendAndReadJSONLines(t *testing.T) {
	fs := newStorage(t)
	for i := 1; i <= 3; i++ {
		require.NoError(t, fs.AppendJSONLine("audit", "day.jsonl", record{ID: i}))
	}

	// 混入一行损坏数据
	path := filepath.Join(fs.BaseDir, "audit", "day.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, fs.AppendJSONLine("audit", "day.jsonl", record{ID: 4}))

	var ids []int
	skipped, err := fs.ReadJSONLines("audit", "day.jsonl", func(raw json.RawMessage) bool {
		var r record
		require.NoError(t, json.Unmarshal(raw, &r))
		ids = append(ids, r.ID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []int{1, 2, 3, 4}, ids)

	// 提前停止
	count := 0
	_, err = fs.ReadJSONLines("audit", "day.jsonl", func(json.RawMessage) bool {
		count++
		return count < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConcurrentAppend(t *testing.T) {
	fs := newStorage(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, fs.AppendJSONLine("audit", "c.jsonl", record{ID: i}))
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	skipped, err := fs.ReadJSONLines("audit", "c.jsonl", func(raw json.RawMessage) bool {
		var r record
		require.NoError(t, json.Unmarshal(raw, &r))
		seen[r.ID] = true
		return true
	})
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, seen, 50)
}

func TestListFiles(t *testing.T) {
	fs := newStorage(t)

	files, err := fs.ListFiles("audit", ".jsonl")
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, fs.AppendJSONLine("audit", "2026-01-02.jsonl", record{}))
	require.NoError(t, fs.AppendJSONLine("audit", "2026-01-01.jsonl", record{}))
	require.NoError(t, fs.SaveTextFile("audit", "notes.txt", []byte("x")))

	files, err = fs.ListFiles("audit", ".jsonl")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-01.jsonl", "2026-01-02.jsonl"}, files)

	all, err := fs.ListFiles("audit", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

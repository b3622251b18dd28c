package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instagram-dispatcher/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func readResults(t *testing.T, path string) []*types.ActionResult {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var results []*types.ActionResult
	require.NoError(t, json.Unmarshal(data, &results))
	return results
}

func TestJSONFileRecordsResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "out.json")
	jf, err := NewJSONFile(path, testLogger())
	require.NoError(t, err)
	defer jf.Close()

	first := &types.ActionResult{
		Target:    "alice",
		Mode:      "profile",
		Backend:   "web",
		Profile:   &types.Profile{Username: "alice", FollowerCount: 10},
		ScrapedAt: time.Now(),
	}
	require.NoError(t, jf.Record(context.Background(), first))

	second := &types.ActionResult{
		Target:  "bob",
		Mode:    "profile",
		Backend: "browser",
		Error:   "rate limited",
	}
	require.NoError(t, jf.Record(context.Background(), second))

	results := readResults(t, path)
	require.Len(t, results, 2)
	assert.Equal(t, "alice", results[0].Target)
	require.NotNil(t, results[0].Profile)
	assert.Equal(t, 10, results[0].Profile.FollowerCount)
	assert.Equal(t, "rate limited", results[1].Error)
}

func TestJSONFileWritesAfterEveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	jf, err := NewJSONFile(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, jf.Record(context.Background(), &types.ActionResult{Target: "alice"}))

	// The file is complete on disk before Close, so a crash loses nothing.
	results := readResults(t, path)
	assert.Len(t, results, 1)

	require.NoError(t, jf.Close())
}

func TestJSONFileLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	jf, err := NewJSONFile(path, testLogger())
	require.NoError(t, err)
	defer jf.Close()

	require.NoError(t, jf.Record(context.Background(), &types.ActionResult{Target: "alice"}))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONFileCarriesForwardExistingResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	jf, err := NewJSONFile(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, jf.Record(context.Background(), &types.ActionResult{Target: "alice"}))
	require.NoError(t, jf.Close())

	jf2, err := NewJSONFile(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, jf2.Record(context.Background(), &types.ActionResult{Target: "bob"}))
	require.NoError(t, jf2.Close())

	results := readResults(t, path)
	require.Len(t, results, 2)
	assert.Equal(t, "alice", results[0].Target)
	assert.Equal(t, "bob", results[1].Target)
}

func TestJSONFileIgnoresCorruptExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	jf, err := NewJSONFile(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, jf.Record(context.Background(), &types.ActionResult{Target: "alice"}))

	results := readResults(t, path)
	assert.Len(t, results, 1)
}

package site

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, doc document) string {
	t.Helper()
	path := filepath.Join(dir, "site.json")
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadConfigBuildsChecksAndActions(t *testing.T) {
	dir := t.TempDir()
	doc := document{
		Actions: map[string]actionDoc{"notify": {Type: "console"}},
		Checks: map[string]checkDoc{
			"disk-root": {Type: "disk", Options: map[string]any{"path": "/", "maxpercent": float64(99)}, Actions: []string{"notify"}},
		},
	}
	path := writeConfig(t, dir, doc)

	s := New(path)
	require.NoError(t, s.LoadConfig())

	c, ok := s.Check("disk-root")
	require.True(t, ok)
	assert.Equal(t, "disk", c.Type())
}

func TestAddUpdateDeleteCheckPersist(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{})
	s := New(path)
	require.NoError(t, s.LoadConfig())

	require.NoError(t, s.AddCheck("remote1", checkDoc{Type: "remote"}))
	_, ok := s.Check("remote1")
	require.True(t, ok)

	require.NoError(t, s.UpdateCheck("remote1", "remote1", checkDoc{Type: "remote", Threshold: 2}))
	c, _ := s.Check("remote1")
	assert.Equal(t, 2, c.Threshold())

	require.NoError(t, s.DeleteCheck("remote1"))
	_, ok = s.Check("remote1")
	assert.False(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	_, exists := doc.Checks["remote1"]
	assert.False(t, exists)
}

func TestRunCheckForcesImmediateTick(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{})
	s := New(path)
	require.NoError(t, s.LoadConfig())
	require.NoError(t, s.AddCheck("remote1", checkDoc{Type: "remote", Options: map[string]any{"timeout": 60}}))

	st, err := s.RunCheck(context.Background(), "remote1")
	require.NoError(t, err)
	assert.False(t, st.Failing, "a remote check that has never received an update isn't stale yet")
}

func TestGetStatusReportsEveryCheckWithNoFailures(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{})
	s := New(path)
	require.NoError(t, s.LoadConfig())

	require.NoError(t, s.AddCheck("zzz", checkDoc{Type: "remote", Priority: 1}))
	require.NoError(t, s.AddCheck("aaa", checkDoc{Type: "remote", Priority: 0}))

	st := s.GetStatus()
	require.Len(t, st.Checks, 2)
	assert.Contains(t, st.Checks, "aaa")
	assert.Contains(t, st.Checks, "zzz")
	assert.False(t, st.Fail)
	assert.Empty(t, st.Info)
}

func TestUpdateCheckRenameLeavesNoDanglingReferences(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{})
	s := New(path)
	require.NoError(t, s.LoadConfig())

	require.NoError(t, s.AddCheck("leaf", checkDoc{Type: "remote"}))
	require.NoError(t, s.AddCheck("dependent", checkDoc{Type: "remote", Depends: []string{"leaf"}}))
	require.NoError(t, s.AddCheck("outer", checkDoc{Type: "sequence", Checks: []string{"leaf"}}))
	require.NoError(t, s.AddCheck("watcher", checkDoc{Type: "remote", Options: map[string]any{"checks": []any{"leaf"}}}))

	require.NoError(t, s.UpdateCheck("leaf", "leaf2", checkDoc{Type: "remote"}))

	_, ok := s.Check("leaf")
	assert.False(t, ok)
	_, ok = s.Check("leaf2")
	require.True(t, ok)

	dependent, _ := s.Check("dependent")
	assert.Equal(t, []string{"leaf2"}, dependent.Depends())

	watcher, _ := s.Check("watcher")
	watcherChecks, _ := watcher.Options()["checks"].([]any)
	require.Len(t, watcherChecks, 1)
	assert.Equal(t, "leaf2", watcherChecks[0])
}

func TestSequenceWiresSubChecksOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{
		Checks: map[string]checkDoc{
			"leaf":  {Type: "remote"},
			"outer": {Type: "sequence", Checks: []string{"leaf"}},
		},
	})
	s := New(path)
	require.NoError(t, s.LoadConfig())

	_, err := s.RunCheck(context.Background(), "outer")
	require.NoError(t, err)
}

func TestAtomicWriteProducesBackupOnSecondSave(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{})
	s := New(path)
	require.NoError(t, s.LoadConfig())
	require.NoError(t, s.SaveConfig())

	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err)
}

func TestShutdownStopsRun(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, document{})
	s := New(path)
	require.NoError(t, s.LoadConfig())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

package localsource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/botsync/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func flowNames(t *testing.T, src Source) []string {
	t.Helper()
	flows, err := src.ListFlows(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(flows))
	for _, flow := range flows {
		out = append(out, flow.Name())
	}
	return out
}

func TestDirSourceListsFlowsInFileNameOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "flows", "b.json"), `{"name":"second"}`)
	writeFile(t, filepath.Join(root, "flows", "a.json"), `{"name":"first","steps":[]}`)
	writeFile(t, filepath.Join(root, "flows", ".hidden.json"), `{"name":"hidden"}`)
	writeFile(t, filepath.Join(root, "flows", "notes.txt"), `not a flow`)
	writeFile(t, filepath.Join(root, "flows", "nested", "c.json"), `{"name":"nested"}`)

	assert.Equal(t, []string{"first", "second"}, flowNames(t, NewDirSource(root)))
}

func TestDirSourceMissingFoldersAreEmpty(t *testing.T) {
	src := NewDirSource(t.TempDir())

	flows, err := src.ListFlows(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, flows)
	assert.Empty(t, flows)

	rules, err := src.Airules(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rules, "missing airules still replace the studio's")
	assert.Empty(t, rules)
}

func TestDirSourceAirulesFolderWithoutDocumentFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "airules"), 0o755))

	rules, err := NewDirSource(root).Airules(context.Background())

	assert.Nil(t, rules)
	require.ErrorIs(t, err, ErrSource)
	var sourceErr *SourceError
	require.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, filepath.Join(root, "airules", "airules.json"), sourceErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDirSourceLogsSkippedFlowEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "flows", "a.json"), `{"name":"a"}`)
	writeFile(t, filepath.Join(root, "flows", "welcome.jsn"), `{"name":"typo"}`)
	writeFile(t, filepath.Join(root, "flows", ".draft.json"), `{"name":"draft"}`)
	var buf bytes.Buffer
	logger, err := logging.New("debug", "text", &buf)
	require.NoError(t, err)

	src, err := Open(root, WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, flowNames(t, src))
	out := buf.String()
	assert.Contains(t, out, "welcome.jsn")
	assert.Contains(t, out, `reason="not a .json file"`)
	assert.Contains(t, out, ".draft.json")
	assert.Contains(t, out, "reason=hidden")
}

func TestDirSourceAirules(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "airules", "airules.json")
	src := NewDirSource(root)

	writeFile(t, path, `[{"flow":"a"},{"flow":"b"}]`)
	rules, err := src.Airules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	writeFile(t, path, `null`)
	rules, err = src.Airules(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rules)

	writeFile(t, path, `{"flow":"a"}`)
	_, err = src.Airules(context.Background())
	assert.ErrorIs(t, err, ErrSource)
}

func TestDirSourceRejectsInvalidFlows(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"name":`,
		"no name":      `{"steps":[]}`,
		"empty name":   `{"name":""}`,
		"numeric name": `{"name":7}`,
		"array":        `[{"name":"a"}]`,
	}
	for label, doc := range cases {
		t.Run(label, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, "flows", "bad.json")
			writeFile(t, path, doc)

			_, err := NewDirSource(root).ListFlows(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSource)
			var sourceErr *SourceError
			require.ErrorAs(t, err, &sourceErr)
			assert.Equal(t, path, sourceErr.Path)
		})
	}
}

func TestDirSourceAllowsLocalIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "flows", "a.json"), `{"name":"a","id":"stale"}`)

	flows, err := NewDirSource(root).ListFlows(context.Background())

	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "stale", flows[0].ID())
}

func TestDirSourceWatchPaths(t *testing.T) {
	src := NewDirSource("/srv/bot/")
	assert.Equal(t, []string{"/srv/bot", "/srv/bot/flows", "/srv/bot/airules"}, src.WatchPaths())
}

package localhost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDefs(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "splits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleYAML = `
flags:
  - name: demo
    trafficTypeName: user
    seed: 1
    status: ACTIVE
    defaultTreatment: "off"
    changeNumber: 1
    algo: 2
    trafficAllocation: 100
segments:
  - name: beta
    keys: ["k1", "k2"]
`

func TestLoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	snap, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, snap.Checksum)
	assert.Empty(t, snap.Definitions.Flags)
}

func TestLoadParsesFlagsAndSegments(t *testing.T) {
	dir := t.TempDir()
	path := writeDefs(t, dir, sampleYAML)

	snap, err := Load(path)
	require.NoError(t, err)
	require.Len(t, snap.Definitions.Flags, 1)
	assert.Equal(t, "demo", snap.Definitions.Flags[0].Name)
	require.Len(t, snap.Definitions.Segments, 1)
	assert.Equal(t, []string{"k1", "k2"}, snap.Definitions.Segments[0].Keys)
	assert.NotEmpty(t, snap.Checksum)
}

func TestSourceReloadDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := writeDefs(t, dir, sampleYAML)

	src, err := NewSource(path)
	require.NoError(t, err)

	changed, err := src.Reload()
	require.NoError(t, err)
	assert.False(t, changed, "re-reading identical content should not report a change")

	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"\n"), 0644))
	changed, err = src.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
}

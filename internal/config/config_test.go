package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default("/tmp/project")

	assert.True(t, cfg.Search.IncludeFiles)
	assert.True(t, cfg.Search.IncludeSymbols)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, 3, cfg.Search.MinTrigramLength)
	assert.True(t, cfg.Search.EnableCamelCase)
	assert.False(t, cfg.Search.Debug)
	assert.Equal(t, StoragePersistent, cfg.Search.Storage)
	assert.Equal(t, 10000, cfg.Index.BatchSize)
	assert.False(t, cfg.Index.CaseSensitive)
}

func TestEffectiveExclude_UnionsDefaultsAndDeduplicates(t *testing.T) {
	cfg := Default("/tmp/project")
	cfg.Exclude = []string{"**/node_modules/**", "**/custom/**"}

	eff := cfg.EffectiveExclude()
	assert.Contains(t, eff, "**/custom/**")
	assert.Contains(t, eff, "**/.git/**")

	seen := map[string]int{}
	for _, p := range eff {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, "pattern %q should appear once", p)
	}
}

func TestMerge_ExclusionsUnionNotReplace(t *testing.T) {
	base := Default("/tmp/base")
	base.Exclude = []string{"**/special/**"}
	project := Default("/tmp/project")
	project.Exclude = []string{"**/dist/**"}

	merged := merge(base, project)
	assert.Contains(t, merged.Exclude, "**/special/**")
	assert.Contains(t, merged.Exclude, "**/dist/**")
}

func TestLoad_NoFilePresentReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Search.MaxResults)
}

func TestLoad_ParsesProjectFile(t *testing.T) {
	dir := t.TempDir()
	content := `
search {
    max_results 25
    min_trigram_length 4
    enable_camelcase false
    storage "memory"
}
exclude {
    "**/testdata/**"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, 4, cfg.Search.MinTrigramLength)
	assert.False(t, cfg.Search.EnableCamelCase)
	assert.Equal(t, StorageMemory, cfg.Search.Storage)
	assert.Contains(t, cfg.Exclude, "**/testdata/**")
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package criticality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePydeps(t *testing.T, dir, name string, data map[string]ModuleInfo) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestLoadPydepsFile(t *testing.T) {
	dir := t.TempDir()
	path := writePydeps(t, dir, "deps.json", map[string]ModuleInfo{
		"pkg.a": {Name: "pkg.a", Imports: []string{"pkg.b"}},
		"pkg.b": {Name: "pkg.b"},
	})

	data, err := LoadPydepsFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Equal(t, []string{"pkg.b"}, data["pkg.a"].Imports)
}

func TestLoadPydepsFilesMergesAndLaterWins(t *testing.T) {
	dir := t.TempDir()
	p1 := writePydeps(t, dir, "a.json", map[string]ModuleInfo{
		"pkg.a": {Name: "pkg.a", Imports: []string{"pkg.b"}},
	})
	p2 := writePydeps(t, dir, "b.json", map[string]ModuleInfo{
		"pkg.a": {Name: "pkg.a", Imports: []string{"pkg.c"}},
		"pkg.c": {Name: "pkg.c"},
	})

	merged, err := LoadPydepsFiles([]string{p1, p2})
	require.NoError(t, err)
	assert.Len(t, merged, 2)
	assert.Equal(t, []string{"pkg.c"}, merged["pkg.a"].Imports)
}

func TestBuildGraphFiltersByPrefix(t *testing.T) {
	data := map[string]ModuleInfo{
		"proj.core":     {Imports: []string{"proj.util", "thirdparty.x"}},
		"proj.util":     {Imports: nil},
		"thirdparty.x":  {Imports: nil},
	}
	g := BuildGraph(data, "repo1", []string{"proj."})

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, 1, g.InDegree("repo1:proj.util"))
	assert.Equal(t, 1, g.OutDegree("repo1:proj.core"))
}

func TestPageRankRanksHeavilyDependedOnModuleHighest(t *testing.T) {
	data := map[string]ModuleInfo{
		"proj.a": {Imports: []string{"proj.shared"}},
		"proj.b": {Imports: []string{"proj.shared"}},
		"proj.c": {Imports: []string{"proj.shared"}},
		"proj.shared": {Imports: nil},
	}
	g := BuildGraph(data, "repo1", []string{"proj."})
	scores := PageRank(g)

	require.Len(t, scores, 4)
	shared := scores["repo1:proj.shared"]
	for _, node := range []string{"repo1:proj.a", "repo1:proj.b", "repo1:proj.c"} {
		assert.Greater(t, shared, scores[node])
	}
}

func TestPageRankHandlesEmptyGraph(t *testing.T) {
	g := BuildGraph(map[string]ModuleInfo{}, "repo1", []string{"proj."})
	scores := PageRank(g)
	assert.Empty(t, scores)
}

func TestAnalyzeProducesDescendingPercentiles(t *testing.T) {
	data := map[string]ModuleInfo{
		"proj.a":      {Imports: []string{"proj.shared"}},
		"proj.b":      {Imports: []string{"proj.shared"}},
		"proj.shared": {Imports: nil},
	}
	g := BuildGraph(data, "repo1", []string{"proj."})
	scores := PageRank(g)
	analysis := Analyze(g, scores)

	require.Len(t, analysis.Scores, 3)
	assert.Equal(t, "repo1:proj.shared", analysis.Scores[0].Node)
	assert.Equal(t, 100.0, analysis.Scores[0].Percentile)
	assert.Equal(t, 1.0, analysis.Scores[0].NormalizedScore)
	assert.Equal(t, 0.0, analysis.Scores[len(analysis.Scores)-1].Percentile)
}

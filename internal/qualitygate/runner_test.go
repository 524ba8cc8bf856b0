package qualitygate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllPass(t *testing.T) {
	gates := []NamedGate{
		{Name: "lint", Gate: Gate{Command: "exit 0"}},
		{Name: "test", Gate: Gate{Command: "exit 0"}},
	}
	result := Run(context.Background(), gates, nil, t.TempDir())

	assert.True(t, result.AllPassed)
	assert.Equal(t, 2, result.PassedGates)
	assert.Empty(t, result.FailedGates)
}

func TestRun_RunsAndReportsEveryGateAfterAFailure(t *testing.T) {
	gates := []NamedGate{
		{Name: "lint", Gate: Gate{Command: "exit 1"}},
		{Name: "test", Gate: Gate{Command: "exit 0"}},
	}
	result := Run(context.Background(), gates, nil, t.TempDir())

	assert.False(t, result.AllPassed)
	assert.Equal(t, []string{"lint"}, result.FailedGates)
	require.Len(t, result.Results, 2)
	assert.False(t, result.Results[0].Passed)
	assert.True(t, result.Results[1].Passed)
}

func TestFailureSummary(t *testing.T) {
	result := RunResult{TotalGates: 3, FailedGates: []string{"lint", "typecheck"}}
	summary := result.FailureSummary()
	assert.Contains(t, summary, "lint, typecheck")
	assert.Contains(t, summary, "2 of 3 gates failed")
}

func TestWorkingDirectory_ExplicitWins(t *testing.T) {
	dir := workingDirectory(Gate{WorkingDirectory: "/explicit"}, []string{"src/a.go"}, "/root")
	assert.Equal(t, "/explicit", dir)
}

func TestWorkingDirectory_FallsBackToProjectRootWithNoFiles(t *testing.T) {
	dir := workingDirectory(Gate{}, nil, "/root")
	assert.Equal(t, "/root", dir)
}

func TestWorkingDirectory_NonPackageManagerCommandUsesFirstFileDir(t *testing.T) {
	dir := workingDirectory(Gate{Command: "go test ./..."}, []string{"pkg/sub/file.go"}, "/root")
	assert.Equal(t, filepath.Join("/root", "pkg", "sub"), dir)
}

func TestWorkingDirectory_NpmCommandWalksUpToPackageJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "package.json"), []byte("{}"), 0o644))

	dir := workingDirectory(Gate{Command: "npm run lint"}, []string{"pkg/sub/file.js"}, root)
	assert.Equal(t, filepath.Join(root, "pkg"), dir)
}

func TestWorkingDirectory_NpmCommandFallsBackWhenNoPackageJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0o755))

	dir := workingDirectory(Gate{Command: "npm test"}, []string{"pkg/sub/file.js"}, root)
	assert.Equal(t, filepath.Join(root, "pkg", "sub"), dir)
}

func TestIsPackageManagerCommand(t *testing.T) {
	assert.True(t, isPackageManagerCommand("npm run build"))
	assert.True(t, isPackageManagerCommand("yarn test"))
	assert.False(t, isPackageManagerCommand("go test ./..."))
}

package resolver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindModuleRootInTree_AtRoot(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("module test\n"), 0o644))

	got, err := findModuleRootInTree(tmp)
	require.NoError(t, err)
	assert.Equal(t, tmp, got)
}

func TestFindModuleRootInTree_InSubdirectory(t *testing.T) {
	tmp := t.TempDir()
	subdir := filepath.Join(tmp, "backend")
	require.NoError(t, os.MkdirAll(subdir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subdir, "go.mod"), []byte("module test/backend\n"), 0o644))

	got, err := findModuleRootInTree(tmp)
	require.NoError(t, err)
	assert.Equal(t, subdir, got)
}

func TestFindModuleRootInTree_NoGoMod(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "src"), 0o755))

	_, err := findModuleRootInTree(tmp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no go.mod found")
}

func TestFindModuleRootInTree_SkipsGitDir(t *testing.T) {
	tmp := t.TempDir()
	// Put go.mod in .git (should be skipped)
	gitDir := filepath.Join(tmp, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "go.mod"), []byte("module fake\n"), 0o644))

	// Put go.mod in a real directory
	realDir := filepath.Join(tmp, "real")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(realDir, "go.mod"), []byte("module real\n"), 0o644))

	got, err := findModuleRootInTree(tmp)
	require.NoError(t, err)
	assert.Equal(t, realDir, got)
}

func TestFindModuleRootInTree_PicksShallowest(t *testing.T) {
	tmp := t.TempDir()

	// Deeper go.mod at a/b/
	deep := filepath.Join(tmp, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "go.mod"), []byte("module deep\n"), 0o644))

	// Shallower go.mod at a/
	shallow := filepath.Join(tmp, "a")
	require.NoError(t, os.WriteFile(filepath.Join(shallow, "go.mod"), []byte("module shallow\n"), 0o644))

	got, err := findModuleRootInTree(tmp)
	require.NoError(t, err)
	assert.Equal(t, shallow, got)
}

func TestFindModuleRootInTree_SameDepthSorted(t *testing.T) {
	tmp := t.TempDir()

	// Two go.mod files at the same depth
	dirA := filepath.Join(tmp, "alpha")
	dirB := filepath.Join(tmp, "beta")
	require.NoError(t, os.MkdirAll(dirA, 0o755))
	require.NoError(t, os.MkdirAll(dirB, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "go.mod"), []byte("module alpha\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "go.mod"), []byte("module beta\n"), 0o644))

	got, err := findModuleRootInTree(tmp)
	require.NoError(t, err)
	// Should pick alphabetically first
	assert.Equal(t, dirA, got)
}

func TestFindModuleRootInTree_SkipsVendorAndNodeModules(t *testing.T) {
	tmp := t.TempDir()

	// go.mod only in vendor/ and node_modules/ (both should be skipped)
	for _, skip := range []string{"vendor", "node_modules"} {
		d := filepath.Join(tmp, skip)
		require.NoError(t, os.MkdirAll(d, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(d, "go.mod"), []byte("module skip\n"), 0o644))
	}

	_, err := findModuleRootInTree(tmp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no go.mod found")
}

func TestFindModuleRootInTree_SkipsTestdata(t *testing.T) {
	tmp := t.TempDir()
	fixture := filepath.Join(tmp, "testdata", "mod")
	require.NoError(t, os.MkdirAll(fixture, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fixture, "go.mod"), []byte("module fixture\n"), 0o644))

	_, err := findModuleRootInTree(tmp)
	require.Error(t, err)
}

func TestReadModulePath(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("module example.com/shop\n\ngo 1.22\n"), 0o644))

	got, err := ReadModulePath(tmp)
	require.NoError(t, err)
	assert.Equal(t, "example.com/shop", got)
}

func TestReadModulePath_Errors(t *testing.T) {
	_, err := ReadModulePath(t.TempDir())
	assert.Error(t, err)

	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("go 1.22\n"), 0o644))
	_, err = ReadModulePath(tmp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no module declaration")
}

func TestExpandIdentifier(t *testing.T) {
	tests := []struct {
		module, id, want string
	}{
		{"example.com/shop", "./orders.Order", "example.com/shop/orders.Order"},
		{"example.com/shop", ".Order", "example.com/shop.Order"},
		{"example.com/shop", "io.Reader", "io.Reader"},
		{"example.com/shop", "../x.T", "../x.T"},
		{"", "./orders.Order", "./orders.Order"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandIdentifier(tt.module, tt.id), tt.id)
	}
}

func TestResolve_Local(t *testing.T) {
	downloads := 0
	orig := downloadModules
	downloadModules = func(context.Context, string, *slog.Logger) error {
		downloads++
		return nil
	}
	t.Cleanup(func() { downloadModules = orig })

	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("module example.com/shop\n"), 0o644))
	sub := filepath.Join(tmp, "orders")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	mod, cleanup, err := Resolve(context.Background(), sub, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, tmp, mod.Dir)
	assert.Equal(t, "example.com/shop", mod.Path)
	assert.Equal(t, 1, downloads)
}

func TestResolve_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	_, cleanup, err := Resolve(context.Background(), file, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.NotNil(t, cleanup)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestIsGitHubURL(t *testing.T) {
	assert.True(t, isGitHubURL("https://github.com/olehluchkiv/gosignature"))
	assert.False(t, isGitHubURL("github.com/olehluchkiv/gosignature"))
	assert.False(t, isGitHubURL("./testdata"))
}

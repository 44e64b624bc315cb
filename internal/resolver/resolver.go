package resolver

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// Module is a resolved Go module on local disk.
type Module struct {
	Dir  string // directory holding go.mod
	Path string // module path declared in go.mod
}

// downloadModules fetches module dependencies. Tests replace it.
var downloadModules = goModDownload

// Resolve takes an input (local dir, sub-package path, or GitHub URL) and returns
// the module ready for loading, plus a cleanup function.
func Resolve(ctx context.Context, input string, logger *slog.Logger) (mod *Module, cleanup func(), err error) {
	cleanup = func() {} // default no-op

	var dir string
	if isGitHubURL(input) {
		dir, err = fetchRepo(ctx, input, logger)
	} else {
		dir, err = resolveLocal(input)
	}
	if err != nil {
		return nil, cleanup, err
	}

	path, err := ReadModulePath(dir)
	if err != nil {
		return nil, cleanup, err
	}
	logger.Info("resolved module", "input", input, "module_root", dir, "module", path)

	if err := downloadModules(ctx, dir, logger); err != nil {
		logger.Warn("go mod download failed", "error", err)
	}

	return &Module{Dir: dir, Path: path}, cleanup, nil
}

func resolveLocal(input string) (string, error) {
	absPath, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", absPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", absPath)
	}

	return findModuleRoot(absPath)
}

// ReadModulePath returns the module path declared by dir/go.mod.
func ReadModulePath(dir string) (string, error) {
	goMod := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(goMod)
	if err != nil {
		return "", fmt.Errorf("reading go.mod: %w", err)
	}
	f, err := modfile.ParseLax(goMod, data, nil)
	if err != nil {
		return "", fmt.Errorf("parsing go.mod: %w", err)
	}
	if f.Module == nil {
		return "", fmt.Errorf("%s has no module declaration", goMod)
	}
	return f.Module.Mod.Path, nil
}

// ExpandIdentifier qualifies module-relative identifiers: "./pkg.Type"
// becomes "<module>/pkg.Type" and ".Type" names a type of the root package.
// Other identifiers are returned unchanged.
func ExpandIdentifier(modulePath, id string) string {
	switch {
	case modulePath == "":
		return id
	case strings.HasPrefix(id, "./"):
		return modulePath + "/" + strings.TrimPrefix(id, "./")
	case strings.HasPrefix(id, ".") && len(id) > 1 && id[1] != '.' && id[1] != '/':
		return modulePath + id
	default:
		return id
	}
}

func isGitHubURL(input string) bool {
	return strings.Contains(input, "github.com") &&
		(strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://"))
}

// cacheDir returns a stable directory for caching a cloned repo.
// Uses ~/.cache/gosignature/repos/<hash> where hash is derived from the URL.
func cacheDir(url string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	h := sha256.Sum256([]byte(url))
	name := fmt.Sprintf("%x", h[:8])
	return filepath.Join(home, ".cache", "gosignature", "repos", name), nil
}

// fetchRepo either refreshes an existing cached clone or does a fresh clone,
// and returns the module root inside it. The cache is persistent.
func fetchRepo(ctx context.Context, url string, logger *slog.Logger) (string, error) {
	dir, err := cacheDir(url)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return cloneRepo(ctx, url, dir, logger)
	}

	logger.Info("updating cached repository", "url", url, "dir", dir)
	for _, args := range [][]string{
		{"fetch", "--depth=1", "origin"},
		{"reset", "--hard", "origin/HEAD"},
	} {
		if err := git(ctx, dir, args...); err != nil {
			logger.Warn("git "+args[0]+" failed, will re-clone", "error", err)
			_ = os.RemoveAll(dir)
			return cloneRepo(ctx, url, dir, logger)
		}
	}
	logger.Info("repository updated", "dir", dir)

	modRoot, err := findModuleRootInTree(dir)
	if err != nil {
		return "", fmt.Errorf("no go.mod found in cached repo: %w", err)
	}
	return modRoot, nil
}

func cloneRepo(ctx context.Context, url, dir string, logger *slog.Logger) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	logger.Info("cloning repository", "url", url, "dest", dir)
	if err := git(ctx, "", "clone", "--depth=1", url, dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("git clone: %w", err)
	}
	logger.Info("clone complete", "dest", dir)

	// go.mod may not be at the repo root
	modRoot, err := findModuleRootInTree(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("no go.mod found in cloned repo: %w", err)
	}
	return modRoot, nil
}

func git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func findModuleRoot(dir string) (string, error) {
	current := dir
	for {
		if _, err := os.Stat(filepath.Join(current, "go.mod")); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no go.mod found in %s or any parent directory", dir)
		}
		current = parent
	}
}

// skipDirs never hold the module of interest.
var skipDirs = map[string]bool{".git": true, "vendor": true, "node_modules": true, "testdata": true}

// findModuleRootInTree returns the shallowest directory under root holding a
// go.mod. Ties at the same depth go to the lexically first path.
func findModuleRootInTree(root string) (string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "go.mod" {
			found = append(found, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", root, err)
	}
	if len(found) == 0 {
		return "", errors.New("no go.mod found in " + root)
	}

	sort.Slice(found, func(i, j int) bool {
		di, dj := depth(root, found[i]), depth(root, found[j])
		if di != dj {
			return di < dj
		}
		return found[i] < found[j]
	})
	return found[0], nil
}

func depth(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func goModDownload(ctx context.Context, dir string, logger *slog.Logger) error {
	logger.Debug("running go mod download", "dir", dir)
	cmd := exec.CommandContext(ctx, "go", "mod", "download")
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

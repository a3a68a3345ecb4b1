package convert

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/pytestify/internal/parser"
)

// Filter selects which files under a directory are converted.
type Filter struct {
	// Include patterns match the base name.
	Include []string
	// Exclude patterns use .gitignore syntax against the path relative to
	// the walked root: "**" spans directories, a pattern without a slash
	// matches at any depth and a leading "!" re-includes.
	Exclude []string
	// Tracked, when non-nil, limits discovery to these absolute paths.
	Tracked map[string]bool
}

// Discover expands paths into the Python files to convert. Files named
// directly are always taken when they are Python files; directories are
// walked and filtered.
func Discover(paths []string, f Filter) ([]string, error) {
	seen := map[string]bool{}
	ignore := newExcludeMatcher(f.Exclude)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if parser.IsPythonFile(abs) && f.tracked(abs) {
				add(abs)
			}
			continue
		}

		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == abs {
				return nil
			}
			rel, _ := filepath.Rel(abs, p)
			parts := strings.Split(filepath.ToSlash(rel), "/")
			if d.IsDir() {
				if skipDir(d.Name()) || ignore.Match(parts, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if !parser.IsPythonFile(p) || !f.included(d.Name()) || ignore.Match(parts, false) || !f.tracked(p) {
				return nil
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	log.Debug().Int("files", len(files)).Msg("discovered files")
	return files, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__" || name == "node_modules"
}

func (f Filter) included(base string) bool {
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (f Filter) tracked(abs string) bool {
	return f.Tracked == nil || f.Tracked[abs]
}

func newExcludeMatcher(patterns []string) gitignore.Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" || strings.HasPrefix(p, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	return gitignore.NewMatcher(ps)
}

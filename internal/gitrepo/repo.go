// Package gitrepo answers the questions the converter asks of a git
// checkout: which files are tracked and whether the worktree is clean.
package gitrepo

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog/log"
)

// ErrNotRepository is returned when no repository encloses the path.
var ErrNotRepository = errors.New("not a git repository")

// Repo is an opened local repository
type Repo struct {
	root string
	repo *git.Repository
}

// Open finds the repository enclosing path, walking up parent directories.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", abs, ErrNotRepository)
		}
		return nil, fmt.Errorf("failed to open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	return &Repo{root: worktree.Filesystem.Root(), repo: repo}, nil
}

// Root is the absolute worktree directory.
func (r *Repo) Root() string { return r.root }

// TrackedFiles returns the absolute paths of every file in the index.
func (r *Repo) TrackedFiles() (map[string]bool, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	files := make(map[string]bool, len(idx.Entries))
	for _, e := range idx.Entries {
		files[filepath.Join(r.root, filepath.FromSlash(e.Name))] = true
	}
	log.Debug().Str("root", r.root).Int("tracked", len(files)).Msg("read git index")
	return files, nil
}

// DirtyFiles lists worktree paths (relative, slash separated) with staged,
// unstaged or untracked changes.
func (r *Repo) DirtyFiles() ([]string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	var dirty []string
	for path, s := range status {
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			dirty = append(dirty, path)
		}
	}
	sort.Strings(dirty)
	return dirty, nil
}

// RequireClean fails when the worktree has uncommitted changes.
func (r *Repo) RequireClean() error {
	dirty, err := r.DirtyFiles()
	if err != nil {
		return err
	}
	if len(dirty) > 0 {
		return fmt.Errorf("worktree %s has %d uncommitted change(s), first: %s", r.root, len(dirty), dirty[0])
	}
	return nil
}

// Head returns the HEAD commit hash, or "" for a repository without
// commits.
func (r *Repo) Head() string {
	head, err := r.repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

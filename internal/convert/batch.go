package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/pytestify/internal/gitrepo"
)

// BatchOptions controls a multi-file run
type BatchOptions struct {
	Filter   Filter
	Parallel int

	// Suffix is inserted before ".py" in the output name; empty rewrites
	// in place.
	Suffix string
	// Backup keeps <file>.bak when rewriting in place.
	Backup bool
	// DryRun computes diffs and writes nothing.
	DryRun bool
	// Fallback uses the text-level setUp/tearDown rewrite for files the
	// parser rejects.
	Fallback bool

	TrackedOnly  bool
	RequireClean bool
}

// ConvertPaths discovers, converts and writes every file under paths.
// Per-file failures are recorded in the report; the returned error is for
// failures that stop the run.
func (c *Converter) ConvertPaths(ctx context.Context, paths []string, opts BatchOptions) (*Report, error) {
	report := NewReport()

	if opts.TrackedOnly || (opts.RequireClean && !opts.DryRun) {
		if len(paths) == 0 {
			return nil, fmt.Errorf("no paths given")
		}
		repo, err := gitrepo.Open(paths[0])
		if err != nil {
			return nil, err
		}
		report.Commit = repo.Head()
		if opts.RequireClean && !opts.DryRun {
			if err := repo.RequireClean(); err != nil {
				return nil, err
			}
		}
		if opts.TrackedOnly {
			tracked, err := repo.TrackedFiles()
			if err != nil {
				return nil, err
			}
			opts.Filter.Tracked = tracked
		}
	}

	files, err := Discover(paths, opts.Filter)
	if err != nil {
		return nil, err
	}

	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}
	results := make([]FileReport, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallel)
	for i, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			results[i] = c.convertFile(groupCtx, file, opts)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("conversion interrupted: %w", err)
	}

	for _, fr := range results {
		report.Add(fr)
	}
	report.Finish()
	log.Info().
		Str("run_id", report.RunID).
		Int("files", report.Summary.Total).
		Int("converted", report.Summary.Converted).
		Int("failed", report.Summary.Failed).
		Msg("conversion finished")
	return report, nil
}

func (c *Converter) convertFile(ctx context.Context, file string, opts BatchOptions) FileReport {
	fr := FileReport{Path: file, Status: StatusUnchanged}

	content, err := os.ReadFile(file)
	if err != nil {
		fr.Status = StatusFailed
		fr.Error = fmt.Sprintf("failed to read file: %v", err)
		return fr
	}
	text := string(content)

	res := c.ConvertSource(ctx, file, text)
	if res.Err != nil && opts.Fallback && !res.Changed {
		log.Warn().Str("file", file).Err(res.Err).Msg("using text fallback")
		if fb := c.ConvertFallback(file, text); fb.Changed {
			res = fb
			fr.Fallback = true
		}
	}
	fr.Imports = res.Imports.Names()
	if res.Err != nil {
		fr.Status = StatusFailed
		fr.Error = res.Err.Error()
		log.Warn().Str("file", file).Err(res.Err).Msg("conversion failed")
		return fr
	}
	if !res.Changed {
		log.Debug().Str("file", file).Msg("unchanged")
		return fr
	}

	fr.Status = StatusConverted
	fr.Output = OutputPath(file, opts.Suffix)
	if opts.DryRun {
		diff, err := UnifiedDiff(file, fr.Output, text, res.Output)
		if err != nil {
			fr.Status = StatusFailed
			fr.Error = err.Error()
			return fr
		}
		fr.Diff = diff
		return fr
	}

	if err := writeOutput(file, fr.Output, content, res.Output, opts.Backup && opts.Suffix == ""); err != nil {
		fr.Status = StatusFailed
		fr.Error = err.Error()
		log.Warn().Str("file", file).Err(err).Msg("write failed")
		return fr
	}
	log.Info().Str("file", file).Str("output", fr.Output).Msg("converted")
	return fr
}

// OutputPath inserts suffix before the ".py" extension.
func OutputPath(file, suffix string) string {
	if suffix == "" {
		return file
	}
	ext := filepath.Ext(file)
	return strings.TrimSuffix(file, ext) + suffix + ext
}

func writeOutput(src, dst string, original []byte, code string, backup bool) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(src); err == nil {
		mode = info.Mode().Perm()
	}
	if backup {
		if err := os.WriteFile(src+".bak", original, mode); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
	}
	if err := os.WriteFile(dst, []byte(code), mode); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// UnifiedDiff renders the change from before to after with three lines of
// context.
func UnifiedDiff(fromFile, toFile, before, after string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff: %w", err)
	}
	return text, nil
}

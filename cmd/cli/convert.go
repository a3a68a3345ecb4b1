package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/pytestify/internal/config"
	"github.com/QTest-hq/pytestify/internal/convert"
)

// errWouldChange makes "check" exit non-zero.
var errWouldChange = errors.New("files would be converted")

// runFlags are shared by convert, check and diff
type runFlags struct {
	configDir     string
	include       []string
	exclude       []string
	suffix        string
	backup        bool
	fallback      bool
	parallel      int
	trackedOnly   bool
	requireClean  bool
	noParametrize bool
	reportPath    string
	reportFormat  string
}

func (f *runFlags) register(cmd *cobra.Command, writes bool) {
	cmd.Flags().StringVar(&f.configDir, "config", "", "Directory holding .pytestify.yaml (default: first path)")
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "File name patterns to convert")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Relative path patterns to skip (.gitignore syntax)")
	cmd.Flags().BoolVar(&f.fallback, "fallback", false, "Use the text-level setUp/tearDown rewrite for files that do not parse")
	cmd.Flags().IntVarP(&f.parallel, "parallel", "j", 0, "Files converted concurrently (default: PYTESTIFY_PARALLEL)")
	cmd.Flags().BoolVar(&f.trackedOnly, "tracked-only", false, "Only convert files tracked by git")
	cmd.Flags().BoolVar(&f.noParametrize, "no-parametrize", false, "Keep subTest loops instead of parametrizing")
	cmd.Flags().StringVar(&f.reportPath, "report", "", "Write a run report to this file")
	cmd.Flags().StringVar(&f.reportFormat, "report-format", "json", "Report format (json, yaml)")
	if writes {
		cmd.Flags().StringVar(&f.suffix, "suffix", "", "Write <name><suffix>.py instead of rewriting in place")
		cmd.Flags().BoolVar(&f.backup, "backup", false, "Keep <file>.bak when rewriting in place")
		cmd.Flags().BoolVar(&f.requireClean, "require-clean", false, "Refuse to run on a dirty git worktree")
	}
}

// project loads the project config for paths and applies flag overrides.
func (f *runFlags) project(paths []string) (*config.ProjectConfig, error) {
	dir := f.configDir
	if dir == "" {
		dir = configDirFor(paths[0])
	}
	pc, err := config.LoadProjectConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}

	override := &config.ProjectConfig{
		Include: f.include,
		Exclude: f.exclude,
		Output:  config.OutputConfig{Suffix: f.suffix, Backup: f.backup},
		Git:     config.GitConfig{TrackedOnly: f.trackedOnly, RequireClean: f.requireClean},
	}
	if f.noParametrize {
		off := false
		override.Transform.Parametrize = &off
	}
	pc.Merge(override)
	return pc, nil
}

// configDirFor is the directory a project config is looked up in.
func configDirFor(path string) string {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

func (f *runFlags) run(ctx context.Context, paths []string, dryRun bool) (*convert.Report, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	pc, err := f.project(paths)
	if err != nil {
		return nil, err
	}
	parallel := f.parallel
	if parallel <= 0 {
		parallel = cfg.Parallel
	}

	c := convert.NewConverter(convert.OptionsFromProject(pc, cfg.RaiseErrors))
	report, err := c.ConvertPaths(ctx, paths, convert.BatchOptions{
		Filter:       convert.Filter{Include: pc.Include, Exclude: pc.Exclude},
		Parallel:     parallel,
		Suffix:       pc.Output.Suffix,
		Backup:       pc.Output.Backup,
		DryRun:       dryRun,
		Fallback:     f.fallback,
		TrackedOnly:  pc.Git.TrackedOnly,
		RequireClean: pc.Git.RequireClean,
	})
	if err != nil {
		return nil, err
	}

	if f.reportPath != "" {
		data, err := report.Encode(f.reportFormat)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(f.reportPath, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
	}
	return report, nil
}

func defaultPaths(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}

func convertCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "convert [paths...]",
		Short: "Convert unittest files to pytest style in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := flags.run(cmd.Context(), defaultPaths(args), false)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), report)
			if report.HasFailures() {
				return fmt.Errorf("%d file(s) failed to convert", report.Summary.Failed)
			}
			return nil
		},
	}
	flags.register(cmd, true)

	return cmd
}

func checkCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "List files that would be converted; exits non-zero if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := flags.run(cmd.Context(), defaultPaths(args), true)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, fr := range report.Files {
				switch fr.Status {
				case convert.StatusConverted:
					fmt.Fprintf(out, "would convert %s\n", fr.Path)
				case convert.StatusFailed:
					fmt.Fprintf(out, "error %s: %s\n", fr.Path, fr.Error)
				}
			}
			if report.Summary.Converted > 0 || report.HasFailures() {
				return fmt.Errorf("%d file(s): %w", report.Summary.Converted+report.Summary.Failed, errWouldChange)
			}
			fmt.Fprintf(out, "%d file(s) already pytest style\n", report.Summary.Total)
			return nil
		},
	}
	flags.register(cmd, false)

	return cmd
}

func diffCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Print unified diffs of the conversion without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := flags.run(cmd.Context(), defaultPaths(args), true)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, fr := range report.Files {
				if fr.Diff != "" {
					fmt.Fprint(out, fr.Diff)
				}
				if fr.Status == convert.StatusFailed {
					fmt.Fprintf(cmd.ErrOrStderr(), "error %s: %s\n", fr.Path, fr.Error)
				}
			}
			return nil
		},
	}
	flags.register(cmd, false)

	return cmd
}

func printSummary(w io.Writer, report *convert.Report) {
	fmt.Fprint(w, renderReportTable(report))
	fmt.Fprintf(w, "\n%d converted, %d unchanged, %d failed (run %s)\n",
		report.Summary.Converted, report.Summary.Unchanged, report.Summary.Failed, report.RunID)
}

// renderReportTable lists converted and failed files.
func renderReportTable(report *convert.Report) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Status", "Detail"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})

	rows := 0
	for _, fr := range report.Files {
		var detail string
		switch fr.Status {
		case convert.StatusConverted:
			detail = strings.Join(fr.Imports, ", ")
			if fr.Output != fr.Path {
				detail = "-> " + fr.Output
			}
			if fr.Fallback {
				detail = strings.TrimSpace(detail + " (text fallback)")
			}
		case convert.StatusFailed:
			detail = fr.Error
		default:
			continue
		}
		table.Append([]string{fr.Path, string(fr.Status), detail})
		rows++
	}
	if rows == 0 {
		return ""
	}

	table.Render()

	return tableBuffer.String()
}

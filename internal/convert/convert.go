// Package convert drives the rewrite passes over source text and files.
package convert

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/pytestify/internal/config"
	"github.com/QTest-hq/pytestify/internal/parser"
	"github.com/QTest-hq/pytestify/internal/transform"
	"github.com/QTest-hq/pytestify/pkg/cst"
)

// ErrInvalidOutput means the rewritten text no longer parsed, so the
// original was kept.
var ErrInvalidOutput = errors.New("converted output does not parse")

// FileResult is the outcome of converting one source text
type FileResult struct {
	Path    string
	Changed bool
	// Output is the converted text, or the input when unchanged or failed.
	Output  string
	Imports transform.ImportSet
	Err     error
}

// Converter converts unittest sources to pytest style
type Converter struct {
	opts transform.Options
}

// NewConverter creates a converter running the given passes
func NewConverter(opts transform.Options) *Converter {
	return &Converter{opts: opts}
}

// OptionsFromProject maps project toggles to transform options. strict
// comes from the debug toggle.
func OptionsFromProject(pc *config.ProjectConfig, strict bool) transform.Options {
	opts := transform.Options{
		Assertions:           config.Enabled(pc.Transform.Assertions),
		Fixtures:             config.Enabled(pc.Transform.Fixtures),
		Decorators:           config.Enabled(pc.Transform.Decorators),
		Subtests:             config.Enabled(pc.Transform.Subtests),
		Parametrize:          config.Enabled(pc.Transform.Parametrize),
		RemoveUnittestImport: config.Enabled(pc.Transform.RemoveUnittestImport),
		RemoveMainBlock:      config.Enabled(pc.Transform.RemoveMainBlock),
		MaxParamValues:       pc.Parametrize.MaxValues,
		Strict:               strict,
	}
	if opts.MaxParamValues <= 0 {
		opts.MaxParamValues = transform.DefaultMaxParamValues
	}
	return opts
}

// ConvertSource parses, rewrites and regenerates text. Unchanged sources
// come back byte for byte.
func (c *Converter) ConvertSource(ctx context.Context, path, text string) FileResult {
	res := FileResult{Path: path, Output: text}

	m, err := parser.Parse(ctx, text)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}

	out, err := transform.NewTransformer(c.opts).Transform(m)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}
	if out.Node == m {
		return res
	}

	code := cst.Generate(out.Node)
	if _, err := parser.Parse(ctx, code); err != nil {
		log.Debug().Str("file", path).Err(err).Msg("generated code failed to parse")
		res.Err = fmt.Errorf("%s: %w: %v", path, ErrInvalidOutput, err)
		return res
	}

	res.Changed = code != text
	res.Output = code
	res.Imports = out.Imports
	return res
}

// ConvertFallback applies only the text-level setUp/tearDown rewrite. It
// works on sources the parser rejects.
func (c *Converter) ConvertFallback(path, text string) FileResult {
	res := FileResult{Path: path, Output: text}
	code := transform.TransformFixturesText(text)
	if code == text {
		return res
	}
	res.Imports = res.Imports.With(transform.ImportPytest)
	res.Output = insertImportText(code, "pytest")
	res.Changed = true
	return res
}

var (
	topImport    = regexp.MustCompile(`^(?:import|from)[ \t]`)
	futureImport = regexp.MustCompile(`^from[ \t]+__future__[ \t]`)
)

// insertImportText adds "import name" before the first top-level import,
// after any __future__ imports.
func insertImportText(src, name string) string {
	if regexp.MustCompile(`(?m)^import[ \t]+` + regexp.QuoteMeta(name) + `[ \t]*(?:#.*)?\r?$`).MatchString(src) {
		return src
	}
	lines := strings.SplitAfter(src, "\n")
	at, lastFuture := -1, -1
	for i, l := range lines {
		switch {
		case futureImport.MatchString(l):
			lastFuture = i
		case at < 0 && topImport.MatchString(l):
			at = i
		}
	}
	if at < 0 || at < lastFuture {
		at = lastFuture + 1
	}
	line := "import " + name + "\n"
	if at < len(lines) && strings.TrimSpace(lines[at]) != "" && !topImport.MatchString(lines[at]) {
		line += "\n"
	}
	if at > 0 && !strings.HasSuffix(lines[at-1], "\n") {
		line = "\n" + line
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, line)
	out = append(out, lines[at:]...)
	return strings.Join(out, "")
}

package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/pytestify/internal/parser"
	"github.com/QTest-hq/pytestify/pkg/cst"
)

func parseModule(t *testing.T, src string) *cst.Module {
	t.Helper()
	m, err := parser.Parse(context.Background(), src)
	require.NoError(t, err)
	return m
}

func parseStmt(t *testing.T, src string) cst.Stmt {
	t.Helper()
	s, err := parser.NewParser().ParseStatement(context.Background(), src).Unwrap()
	require.NoError(t, err)
	return s
}

func parseFunc(t *testing.T, src string) *cst.FunctionDef {
	t.Helper()
	fn, ok := parseStmt(t, src).(*cst.FunctionDef)
	require.True(t, ok, "not a function: %s", src)
	return fn
}

// convert runs the full transformer and renders the result.
func convert(t *testing.T, opts Options, src string) string {
	t.Helper()
	res, err := NewTransformer(opts).Transform(parseModule(t, src))
	require.NoError(t, err)
	return cst.Generate(res.Node)
}

// requireParses checks that generated code is valid Python.
func requireParses(t *testing.T, src string) {
	t.Helper()
	_, err := parser.Parse(context.Background(), src)
	require.NoError(t, err, "generated code does not parse:\n%s", src)
}

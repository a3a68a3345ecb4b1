package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

func TestNewParser(t *testing.T) {
	p := NewParser()
	assert.NotNil(t, p)
	assert.NotNil(t, p.pyParser)
}

func TestIsPythonFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"test_app.py", true},
		{"/path/to/TEST.PY", true},
		{"app.pyi", false},
		{"main.go", false},
		{"Makefile", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPythonFile(tt.path))
		})
	}
}

const sampleModule = `"""Docstring."""
import unittest  # testing


class TestMath(unittest.TestCase):
    # setup
    def setUp(self):
        self.x = 1; self.y = 2

    @unittest.skip("later")
    def test_add(self):  # header
        self.assertEqual(
            self.x + self.y,
            3,
        )
        for i in range(3):
            if i:
                pass
            elif i > 10:
                break
            else:
                continue
        with open("f") as fh, ctx():
            data = fh.read()
        try:
            risky()
        except (ValueError, KeyError) as exc:
            raise
        finally:
            cleanup()


if __name__ == "__main__":
    unittest.main()
`

func TestParser_RoundTripVerbatim(t *testing.T) {
	p := NewParser()
	m, err := p.Parse(context.Background(), sampleModule)
	require.NoError(t, err)

	assert.False(t, m.Edited())
	assert.Equal(t, sampleModule, cst.Generate(m))
	assert.Equal(t, "    ", m.IndentUnit)
}

func TestParser_StructuralRegenerate(t *testing.T) {
	p := NewParser()
	m, err := p.Parse(context.Background(), sampleModule)
	require.NoError(t, err)

	// Forcing structural regeneration of the module keeps statements that
	// were not touched byte-identical.
	regenerated := cst.Generate(m.WithBody(m.Body))
	assert.Equal(t, sampleModule, regenerated)
}

func TestParser_ModuleShape(t *testing.T) {
	p := NewParser()
	m, err := p.Parse(context.Background(), sampleModule)
	require.NoError(t, err)
	require.Len(t, m.Body, 4)

	_, isDoc := m.Body[0].(*cst.ExprStmt)
	assert.True(t, isDoc)

	imp, ok := m.Body[1].(*cst.Import)
	require.True(t, ok)
	assert.Equal(t, "unittest", imp.Names[0].Name)
	assert.Equal(t, "  # testing", imp.Trailing)

	cls, ok := m.Body[2].(*cst.ClassDef)
	require.True(t, ok)
	assert.Equal(t, "TestMath", cls.Name)
	require.Len(t, cls.Bases, 1)
	assert.True(t, cst.IsDotted(cls.Bases[0].Value, "unittest.TestCase"))
	assert.Len(t, cls.Leading, 2)

	require.Len(t, cls.Body.Stmts, 2)
	setUp := cls.Body.Stmts[0].(*cst.FunctionDef)
	assert.Equal(t, "setUp", setUp.Name)
	assert.Equal(t, []cst.Line{{Comment: "# setup"}}, setUp.Leading)
	assert.Equal(t, []string{"self"}, setUp.ParamNames())
	require.Len(t, setUp.Body.Stmts, 2)
	assert.True(t, cst.TriviaOf(setUp.Body.Stmts[1]).SameLine)

	test := cls.Body.Stmts[1].(*cst.FunctionDef)
	assert.Equal(t, "test_add", test.Name)
	assert.Equal(t, "  # header", test.Trailing)
	require.Len(t, test.Decorators, 1)
	assert.Equal(t, `unittest.skip("later")`, cst.Code(test.Decorators[0].Value))

	body := test.Body.Stmts
	require.Len(t, body, 4)
	call := body[0].(*cst.ExprStmt).Value.(*cst.Call)
	assert.True(t, cst.IsDotted(call.Func, "self.assertEqual"))
	assert.Len(t, call.Args, 2)

	loop := body[1].(*cst.For)
	assert.Equal(t, "i", cst.Code(loop.Target))
	cond := loop.Body.Stmts[0].(*cst.If)
	assert.Len(t, cond.Elifs, 1)
	assert.NotNil(t, cond.Else)

	with := body[2].(*cst.With)
	require.Len(t, with.Items, 2)
	assert.Equal(t, "fh", cst.Code(with.Items[0].Alias))
	assert.Nil(t, with.Items[1].Alias)

	try := body[3].(*cst.Try)
	require.Len(t, try.Handlers, 1)
	assert.Equal(t, "except (ValueError, KeyError) as exc", try.Handlers[0].Header)
	assert.NotNil(t, try.Finally)

	main, ok := m.Body[3].(*cst.If)
	require.True(t, ok)
	assert.Len(t, main.Leading, 2)
}

func TestParser_Expressions(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		code string
		kind cst.Kind
	}{
		{"name", "x", cst.KindName},
		{"attribute", "a.b.c", cst.KindAttribute},
		{"call", "f(1, *rest, key=2, **kw)", cst.KindCall},
		{"subscript", "d[1:2]", cst.KindSubscript},
		{"binary", "a + b * c", cst.KindBinaryOp},
		{"bool", "a and b", cst.KindBoolOp},
		{"not", "not a", cst.KindUnaryOp},
		{"negative", "-a", cst.KindUnaryOp},
		{"comparison", "a is not None", cst.KindComparison},
		{"list", "[1, 2]", cst.KindList},
		{"tuple", "(1, 2)", cst.KindTuple},
		{"bare tuple", "1, 2", cst.KindTuple},
		{"set", "{1, 2}", cst.KindSet},
		{"dict", "{1: 2, **rest}", cst.KindDict},
		{"float", "1.5", cst.KindFloat},
		{"string", `"a" "b"`, cst.KindString},
		{"paren", "(a)", cst.KindParen},
		{"lambda", "lambda: 1", cst.KindRawExpr},
		{"comprehension", "[x for x in y]", cst.KindRawExpr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := p.ParseExpression(context.Background(), tt.code).Unwrap()
			require.NoError(t, err)
			assert.Equal(t, tt.kind, e.Kind())
			assert.Equal(t, tt.code, cst.Code(e))
		})
	}
}

func TestParser_CallArguments(t *testing.T) {
	p := NewParser()
	e, err := p.ParseExpression(context.Background(), "f(1, *rest, key=2, **kw)").Unwrap()
	require.NoError(t, err)

	call := e.(*cst.Call)
	require.Len(t, call.Args, 4)
	assert.Equal(t, "", call.Args[0].Keyword)
	assert.Equal(t, "*", call.Args[1].Star)
	assert.Equal(t, "key", call.Args[2].Keyword)
	assert.Equal(t, "**", call.Args[3].Star)
}

func TestParser_ComparisonOperators(t *testing.T) {
	p := NewParser()
	e, err := p.ParseExpression(context.Background(), "a not  in b < c").Unwrap()
	require.NoError(t, err)

	cmp := e.(*cst.Comparison)
	require.Len(t, cmp.Comparisons, 2)
	assert.Equal(t, "not in", cmp.Comparisons[0].Op)
	assert.Equal(t, "<", cmp.Comparisons[1].Op)
}

func TestParser_ParseStatementDedents(t *testing.T) {
	p := NewParser()
	s, err := p.ParseStatement(context.Background(), "    if x:\n        y = 1\n").Unwrap()
	require.NoError(t, err)

	cond, ok := s.(*cst.If)
	require.True(t, ok)
	assign := cond.Body.Stmts[0].(*cst.Assign)
	assert.Equal(t, "y", cst.Code(assign.Targets[0]))
}

func TestParser_ParseStatementRejectsMany(t *testing.T) {
	p := NewParser()
	res := p.ParseStatement(context.Background(), "a = 1\nb = 2\n")
	assert.False(t, res.IsOk())

	res = p.ParseStatement(context.Background(), "")
	assert.False(t, res.IsOk())
}

func TestParser_ParseExpressionRejectsStatement(t *testing.T) {
	p := NewParser()
	res := p.ParseExpression(context.Background(), "x = 1")
	assert.Error(t, res.Err())
}

func TestParser_Statements(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		code string
		kind cst.Kind
	}{
		{"assign chain", "a = b = 1", cst.KindAssign},
		{"annotated", "a: int = 1", cst.KindRawStmt},
		{"augmented", "a += 1", cst.KindAugAssign},
		{"return", "return", cst.KindReturn},
		{"assert", "assert x, 'msg'", cst.KindAssert},
		{"import", "import os.path as p, sys", cst.KindImport},
		{"from import", "from . import a as b", cst.KindImportFrom},
		{"star import", "from os import *", cst.KindImportFrom},
		{"future import", "from __future__ import annotations", cst.KindImportFrom},
		{"raise", "raise ValueError()", cst.KindRawStmt},
		{"async def", "async def f():\n    await g()", cst.KindFunctionDef},
		{"while", "while x:\n    pass\nelse:\n    pass", cst.KindWhile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := p.ParseStatement(context.Background(), tt.code).Unwrap()
			require.NoError(t, err)
			assert.Equal(t, tt.kind, s.Kind())
			assert.Equal(t, tt.code+"\n", cst.GenerateStmt(s, ""))
		})
	}
}

func TestParser_Params(t *testing.T) {
	p := NewParser()
	s, err := p.ParseStatement(context.Background(), "def f(self, a: int, b=1, *args, c: str = '', **kw):\n    pass").Unwrap()
	require.NoError(t, err)

	fn := s.(*cst.FunctionDef)
	assert.Equal(t, []string{"self", "a", "b", "args", "c", "kw"}, fn.ParamNames())
	assert.Equal(t, "*args", fn.Params[3].Code)
}

func TestParser_ImportAlias(t *testing.T) {
	p := NewParser()
	s, err := p.ParseStatement(context.Background(), "from unittest import TestCase as TC, main").Unwrap()
	require.NoError(t, err)

	im := s.(*cst.ImportFrom)
	assert.Equal(t, "unittest", im.Module)
	assert.Equal(t, []cst.ImportAlias{{Name: "TestCase", AsName: "TC"}, {Name: "main"}}, im.Names)
}

func TestParser_FutureImport(t *testing.T) {
	p := NewParser()
	s, err := p.ParseStatement(context.Background(), "from __future__ import annotations, division as d").Unwrap()
	require.NoError(t, err)

	im := s.(*cst.ImportFrom)
	assert.Equal(t, "__future__", im.Module)
	assert.Equal(t, []cst.ImportAlias{{Name: "annotations"}, {Name: "division", AsName: "d"}}, im.Names)
}

func TestParser_EditedStatementRegenerates(t *testing.T) {
	p := NewParser()
	src := "def test_a(self):\n    # note\n    x = 1  # one\n\n    y = 2\n"
	m, err := p.Parse(context.Background(), src)
	require.NoError(t, err)

	fn := m.Body[0].(*cst.FunctionDef)
	renamed := fn.WithName("test_b")
	out := cst.Generate(m.WithBody([]cst.Stmt{renamed}))

	assert.Equal(t, "def test_b(self):\n    # note\n    x = 1  # one\n\n    y = 2\n", out)
}

func TestParser_ParseError(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		code string
		line int
	}{
		{"unclosed paren", "x = (1,\n", 1},
		{"bad def", "def f(:\n    pass\n", 1},
		{"second line", "a = 1\nb = = 2\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(context.Background(), tt.code)
			require.Error(t, err)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.GreaterOrEqual(t, perr.Line, tt.line)
			assert.Contains(t, perr.Error(), "parse error at line")
		})
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_sample.py")
	require.NoError(t, os.WriteFile(path, []byte(sampleModule), 0644))

	p := NewParser()
	m, err := p.ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sampleModule, cst.Generate(m))

	_, err = p.ParseFile(context.Background(), filepath.Join(dir, "missing.py"))
	assert.Error(t, err)
}

func TestParse_EmptyModule(t *testing.T) {
	m, err := Parse(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, m.Body)
	assert.Equal(t, "", cst.Generate(m))
}

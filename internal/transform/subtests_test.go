package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

func TestMaterializeRange(t *testing.T) {
	tests := []struct {
		call    string
		want    []string
		wantErr bool
	}{
		{"range(3)", []string{"0", "1", "2"}, false},
		{"range(1, 4)", []string{"1", "2", "3"}, false},
		{"range(0, 6, 2)", []string{"0", "2", "4"}, false},
		{"range(3, 0, -1)", []string{"3", "2", "1"}, false},
		{"range(0x2)", []string{"0", "1"}, false},
		{"range(0)", nil, false},
		{"range(0, 50)", nil, true},
		{"range(0, 5, 0)", nil, true},
		{"range(n)", nil, true},
		{"range(stop=3)", nil, true},
		{"range()", nil, true},
		{"xrange(3)", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			call := parseStmt(t, tt.call).(*cst.ExprStmt).Value.(*cst.Call)
			got, err := materializeRange(call, DefaultMaxParamValues)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			codes := make([]string, len(got))
			for i, e := range got {
				codes[i] = cst.Code(e)
			}
			if tt.want == nil {
				assert.Empty(t, codes)
				return
			}
			assert.Equal(t, tt.want, codes)
		})
	}
}

func TestParametrizeSubtests(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name: "list literal",
			input: `def test_even(self):
    for n in [2, 4, 6]:
        with self.subTest(n):
            self.assertEqual(n % 2, 0)
`,
			want: `@pytest.mark.parametrize("n", [2, 4, 6])
def test_even(self, n):
    self.assertEqual(n % 2, 0)
`,
		},
		{
			name: "keyword argument",
			input: `def test_even(self):
    for n in (2, 4):
        with self.subTest(n=n):
            check(n)
`,
			want: `@pytest.mark.parametrize("n", [2, 4])
def test_even(self, n):
    check(n)
`,
		},
		{
			name: "range",
			input: `def test_index(self):
    for i in range(3):
        with self.subTest(i):
            self.assertTrue(items[i])
`,
			want: `@pytest.mark.parametrize("i", [0, 1, 2])
def test_index(self, i):
    self.assertTrue(items[i])
`,
		},
		{
			name: "name reference",
			input: `def test_words(self):
    words = ["a", "b"]
    for w in words:
        with self.subTest(w):
            self.assertTrue(w.isalpha())
`,
			want: `@pytest.mark.parametrize("w", ["a", "b"])
def test_words(self, w):
    words = ["a", "b"]
    self.assertTrue(w.isalpha())
`,
		},
		{
			name: "module constant values",
			input: `def test_cases(self):
    for c in [CASE_A, CASE_B]:
        with self.subTest(c):
            run(c)
`,
			want: `@pytest.mark.parametrize("c", [CASE_A, CASE_B])
def test_cases(self, c):
    run(c)
`,
		},
		{
			name: "existing decorators and comments",
			input: `@slow
def test_even(self):
    setup()
    # each value
    for n in [2, 4]:
        with self.subTest(n):
            if n:
                check(n)
`,
			want: `@pytest.mark.parametrize("n", [2, 4])
@slow
def test_even(self, n):
    setup()
    # each value
    if n:
        check(n)
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRewriter(DefaultOptions())
			res, ok := r.ParametrizeSubtests(parseFunc(t, tt.input))
			require.True(t, ok)
			assert.Equal(t, tt.want, cst.GenerateStmt(res.Node, ""))
			assert.True(t, res.Imports.Has(ImportPytest))
		})
	}
}

func TestParametrizeSubtests_Declines(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no loop", "def test_x(self):\n    with self.subTest(1):\n        pass\n"},
		{"statements after loop", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n    done()\n"},
		{"async function", "async def test_x(self):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"loop else", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n    else:\n        g()\n"},
		{"tuple target", "def test_x(self):\n    for a, b in [(1, 2)]:\n        with self.subTest(a):\n            f(a, b)\n"},
		{"two statements in loop", "def test_x(self):\n    for v in [1]:\n        prep(v)\n        with self.subTest(v):\n            f(v)\n"},
		{"with alias", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v) as st:\n            f(v)\n"},
		{"not a subtest", "def test_x(self):\n    for v in [1]:\n        with open(v):\n            f(v)\n"},
		{"subtest without argument", "def test_x(self):\n    for v in [1]:\n        with self.subTest():\n            f(v)\n"},
		{"subtest other argument", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v + 1):\n            f(v)\n"},
		{"subtest mismatched keyword", "def test_x(self):\n    for v in [1]:\n        with self.subTest(value=v):\n            f(v)\n"},
		{"loop control in body", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v):\n            if v:\n                continue\n"},
		{"return in body", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v):\n            return\n"},
		{"nested loop in body", "def test_x(self):\n    for v in [1]:\n        with self.subTest(v):\n            for w in v:\n                f(w)\n"},
		{"empty values", "def test_x(self):\n    for v in []:\n        with self.subTest(v):\n            f(v)\n"},
		{"too many values", "def test_x(self):\n    for v in range(100):\n        with self.subTest(v):\n            f(v)\n"},
		{"computed iterable", "def test_x(self):\n    for v in load():\n        with self.subTest(v):\n            f(v)\n"},
		{"local value", "def test_x(self):\n    base = 1\n    for v in [base, 2]:\n        with self.subTest(v):\n            f(v)\n"},
		{"name without assignment", "def test_x(self):\n    for v in CASES:\n        with self.subTest(v):\n            f(v)\n"},
		{"name assigned twice", "def test_x(self):\n    xs = [1]\n    xs = [2]\n    for v in xs:\n        with self.subTest(v):\n            f(v)\n"},
		{"name mutated", "def test_x(self):\n    xs = [1]\n    xs.append(2)\n    for v in xs:\n        with self.subTest(v):\n            f(v)\n"},
		{"name not a literal", "def test_x(self):\n    xs = make()\n    for v in xs:\n        with self.subTest(v):\n            f(v)\n"},
		{"loop variable used before", "def test_x(self):\n    v = 0\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"loop variable is a parameter", "def test_x(self, v):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"default parameter", "def test_x(self, flag=True):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"star parameter", "def test_x(self, *args):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"already parametrized", "@pytest.mark.parametrize(\"a\", [1])\ndef test_x(self, a):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"bare parametrize decorator", "@parametrize(\"a\", [1])\ndef test_x(self, a):\n    for v in [1]:\n        with self.subTest(v):\n            f(v)\n"},
		{"splat value", "def test_x(self):\n    for v in [*BASE, 2]:\n        with self.subTest(v):\n            f(v)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRewriter(DefaultOptions())
			fn := parseFunc(t, tt.input)
			res, ok := r.ParametrizeSubtests(fn)
			assert.False(t, ok)
			assert.Nil(t, res.Node)
			assert.Empty(t, r.Failures())
		})
	}
}

func TestParametrizeSubtests_MaxValues(t *testing.T) {
	src := "def test_x(self):\n    for v in range(5):\n        with self.subTest(v):\n            f(v)\n"

	opts := DefaultOptions()
	opts.MaxParamValues = 4
	_, ok := NewRewriter(opts).ParametrizeSubtests(parseFunc(t, src))
	assert.False(t, ok)

	opts.MaxParamValues = 5
	_, ok = NewRewriter(opts).ParametrizeSubtests(parseFunc(t, src))
	assert.True(t, ok)
}

func TestParametrizeMethod_ClassScope(t *testing.T) {
	tests := []struct {
		name  string
		class string
		want  bool
	}{
		{"class attribute shadows global", "class TestT:\n    X = 2\n\n    def test_x(self):\n        for v in [X]:\n            with self.subTest(v):\n                f(v)\n", false},
		{"annotated class attribute", "class TestT:\n    X: int = 2\n\n    def test_x(self):\n        for v in [X]:\n            with self.subTest(v):\n                f(v)\n", false},
		{"method name", "class TestT:\n    def X(self):\n        pass\n\n    def test_x(self):\n        for v in [X]:\n            with self.subTest(v):\n                f(v)\n", false},
		{"names inside methods do not count", "class TestT:\n    def setup(self):\n        X = 2\n\n    def test_x(self):\n        for v in [X]:\n            with self.subTest(v):\n                f(v)\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, ok := parseStmt(t, tt.class).(*cst.ClassDef)
			require.True(t, ok)
			fn := cls.Body.Stmts[len(cls.Body.Stmts)-1].(*cst.FunctionDef)

			r := NewRewriter(DefaultOptions())
			_, ok = r.ParametrizeMethod(fn, cls.Body.Stmts)
			assert.Equal(t, tt.want, ok)

			// Without the class body the module global is assumed.
			_, ok = r.ParametrizeSubtests(fn)
			assert.True(t, ok)
		})
	}
}

func TestRewriteSubtestBlock(t *testing.T) {
	fn := parseFunc(t, `def test_x(self):
    for v in load():
        with self.subTest(v=v), other():
            check(v)
            with self.subTest("inner"):
                pass
`)
	r := NewRewriter(DefaultOptions())
	body, ok := r.RewriteSubtestBlock(fn.Body.Stmts)
	require.True(t, ok)
	assert.True(t, HasSubtestsCall(body))
	assert.False(t, HasSubtestsCall(fn.Body.Stmts))

	out := EnsureSubtestsParam(fn.WithBody(fn.Body.WithStmts(body)))
	assert.Equal(t, `def test_x(self, subtests):
    for v in load():
        with subtests.test(v=v), other():
            check(v)
            with subtests.test("inner"):
                pass
`, cst.GenerateStmt(out, ""))
}

func TestRewriteSubtestBlock_NoSubtests(t *testing.T) {
	fn := parseFunc(t, "def test_x(self):\n    with open(p):\n        pass\n")
	r := NewRewriter(DefaultOptions())
	body, ok := r.RewriteSubtestBlock(fn.Body.Stmts)
	assert.False(t, ok)
	assert.True(t, sameStmts(fn.Body.Stmts, body))
}

func TestEnsureSubtestsParam(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"appends", "def test_x(self):\n    pass\n", []string{"self", "subtests"}},
		{"before default", "def test_x(self, flag=True):\n    pass\n", []string{"self", "subtests", "flag=True"}},
		{"before star", "def test_x(self, *args, **kw):\n    pass\n", []string{"self", "subtests", "*args", "**kw"}},
		{"idempotent", "def test_x(self, subtests):\n    pass\n", []string{"self", "subtests"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := EnsureSubtestsParam(parseFunc(t, tt.input))
			var codes []string
			for _, p := range fn.Params {
				codes = append(codes, p.Code)
			}
			assert.Equal(t, tt.want, codes)
		})
	}
}

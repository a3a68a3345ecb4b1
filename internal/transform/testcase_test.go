package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

func parseClass(t *testing.T, src string) *cst.ClassDef {
	t.Helper()
	cls, ok := parseStmt(t, src).(*cst.ClassDef)
	require.True(t, ok, "not a class: %s", src)
	return cls
}

func TestIsTestCaseClass(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"class TestA(unittest.TestCase):\n    pass\n", true},
		{"class TestA(TestCase):\n    pass\n", true},
		{"class TestA:\n    pass\n", false},
		{"class TestA(Base):\n    pass\n", false},
		{"class TestA(Mixin, unittest.TestCase):\n    pass\n", false},
		{"class TestA(unittest.TestCase, metaclass=Meta):\n    pass\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTestCaseClass(parseClass(t, tt.src)))
		})
	}
}

func TestConvertClass(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		subclassed bool
		want       string
	}{
		{
			name: "teardown only",
			input: `class TestA(unittest.TestCase):
    def tearDown(self):
        self.reset()

    def test_a(self):
        pass
`,
			want: `class TestA:
    @pytest.fixture(autouse=True)
    def setup_method(self):
        yield
        self.reset()

    def test_a(self):
        pass
`,
		},
		{
			name: "global declarations",
			input: `class TestA(unittest.TestCase):
    def setUp(self):
        global COUNTER
        COUNTER += 1

    def tearDown(self):
        global COUNTER
        COUNTER -= 1
`,
			want: `class TestA:
    @pytest.fixture(autouse=True)
    def setup_method(self):
        global COUNTER
        COUNTER += 1
        yield
        COUNTER -= 1
`,
		},
		{
			name: "comments of the dropped hook move on",
			input: `class TestA(unittest.TestCase):
    def setUp(self):
        self.x = 1

    # cleanup
    def tearDown(self):
        self.x = None

    def test_a(self):
        pass
`,
			want: `class TestA:
    @pytest.fixture(autouse=True)
    def setup_method(self):
        self.x = 1
        yield
        self.x = None

    # cleanup
    def test_a(self):
        pass
`,
		},
		{
			name: "explicit base hook call",
			input: `class TestA(unittest.TestCase):
    def setUp(self):
        unittest.TestCase.setUp(self)
        self.x = 1
`,
			want: `class TestA:
    @pytest.fixture(autouse=True)
    def setup_method(self):
        self.x = 1
        yield
`,
		},
		{
			name: "shared local keeps hooks",
			input: `class TestA(unittest.TestCase):
    def setUp(self):
        conn = connect()
        self.conn = conn

    def tearDown(self):
        conn.close()

    def test_a(self):
        self.assertTrue(self.conn)
`,
			want: `class TestA(unittest.TestCase):
    def setUp(self):
        conn = connect()
        self.conn = conn

    def tearDown(self):
        conn.close()

    def test_a(self):
        assert self.conn
`,
		},
		{
			name: "early return keeps hooks",
			input: `class TestA(unittest.TestCase):
    def setUp(self):
        if SKIP:
            return
        self.x = 1

    def test_a(self):
        self.assertTrue(self.x)
`,
			want: `class TestA(unittest.TestCase):
    def setUp(self):
        if SKIP:
            return
        self.x = 1

    def test_a(self):
        assert self.x
`,
		},
		{
			name: "init keeps base",
			input: `class TestA(unittest.TestCase):
    def __init__(self, *args):
        super().__init__(*args)

    def test_a(self):
        self.assertTrue(True)
`,
			want: `class TestA(unittest.TestCase):
    def __init__(self, *args):
        super().__init__(*args)

    def test_a(self):
        assert True
`,
		},
		{
			name: "not collected by name",
			input: `class Helpers(unittest.TestCase):
    def check(self):
        self.assertTrue(True)
`,
			want: `class Helpers(unittest.TestCase):
    def check(self):
        assert True
`,
		},
		{
			name:       "subclassed",
			subclassed: true,
			input: `class TestBase(unittest.TestCase):
    def test_a(self):
        self.assertTrue(True)
`,
			want: `class TestBase(unittest.TestCase):
    def test_a(self):
        assert True
`,
		},
		{
			name: "class decorator",
			input: `@unittest.skip("broken")
class TestA(unittest.TestCase):
    def test_a(self):
        pass
`,
			want: `@pytest.mark.skip("broken")
class TestA:
    def test_a(self):
        pass
`,
		},
		{
			name: "plain class",
			input: `class Checker:
    def check(self):
        self.assertEqual(a, b)
`,
			want: `class Checker:
    def check(self):
        assert a == b
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRewriter(DefaultOptions())
			res := r.ConvertClass(parseClass(t, tt.input), tt.subclassed)
			assert.Equal(t, tt.want, cst.GenerateStmt(res.Node, ""))
			assert.Empty(t, r.Failures())
		})
	}
}

func TestConvertClass_Unchanged(t *testing.T) {
	cls := parseClass(t, "class TestA(Base):\n    def test_a(self):\n        assert True\n")
	r := NewRewriter(DefaultOptions())
	res := r.ConvertClass(cls, false)
	assert.Same(t, cls, res.Node)
	assert.True(t, res.Imports.Empty())
}

func TestUsesTestCaseAPI(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"self.assertEqual(a, b)", true},
		{"self.addCleanup(f)", true},
		{"x = self.id()", true},
		{"self.maxDiff = None", true},
		{"super().helper()", true},
		{"self.value = 1", false},
		{"helper.assertEqual(a, b)", false},
		{"assert self.client.get('/')", false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, usesTestCaseAPI(parseStmt(t, tt.src)))
		})
	}
}

func TestEarlyExit(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"def f():\n    return 1\n", true},
		{"def f():\n    yield\n", true},
		{"def f():\n    x = yield 1\n", true},
		{"def f():\n    if a:\n        return\n", true},
		{"def f():\n    def g():\n        return 1\n", false},
		{"def f():\n    x = 1\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, earlyExit(parseFunc(t, tt.src).Body.Stmts))
		})
	}
}

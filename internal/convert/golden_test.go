package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/pytestify/internal/transform"
)

// TestGolden converts testdata/<name>.input.py and compares the result
// with testdata/<name>.golden.py.
func TestGolden(t *testing.T) {
	inputs, err := filepath.Glob(filepath.Join("testdata", "*.input.py"))
	require.NoError(t, err)
	require.NotEmpty(t, inputs)

	c := NewConverter(transform.DefaultOptions())
	for _, input := range inputs {
		name := strings.TrimSuffix(filepath.Base(input), ".input.py")
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(input)
			require.NoError(t, err)
			want, err := os.ReadFile(filepath.Join("testdata", name+".golden.py"))
			require.NoError(t, err)

			res := c.ConvertSource(context.Background(), input, string(src))
			require.NoError(t, res.Err)
			assert.Equal(t, string(want), res.Output)

			again := c.ConvertSource(context.Background(), input, res.Output)
			require.NoError(t, again.Err)
			assert.False(t, again.Changed, "conversion is not idempotent")
		})
	}
}

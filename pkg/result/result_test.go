package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOk(t *testing.T) {
	r := Ok(42)
	assert.True(t, r.IsOk())
	assert.NoError(t, r.Err())
	v, err := r.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 42, r.Or(7))
}

func TestFail(t *testing.T) {
	boom := errors.New("boom")
	r := Fail[string](boom)
	assert.False(t, r.IsOk())
	assert.ErrorIs(t, r.Err(), boom)
	assert.Equal(t, "fallback", r.Or("fallback"))
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, "info", lvl.String())

	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "debug", lvl.String())

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	l, err := New("dev", "info")
	require.NoError(t, err)

	require.NoError(t, l.SetLevel("warn"))
	assert.Equal(t, "warn", l.Level())

	child := l.With("component", "test")
	require.NoError(t, child.SetLevel("error"))
	assert.Equal(t, "error", l.Level(), "children share the parent's atomic level")

	assert.Error(t, l.SetLevel("loud"))
}

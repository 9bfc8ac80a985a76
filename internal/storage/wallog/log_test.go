package wallog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	N int `json:"n"`
}

func TestLog_LastTracksAppends(t *testing.T) {
	l, err := Open[entry](t.TempDir(), "test_", "entry_")
	require.NoError(t, err)
	defer l.Close()

	_, ok, err := l.Last()
	require.NoError(t, err)
	assert.False(t, ok)

	for n := 1; n <= 3; n++ {
		_, err := l.Append(fmt.Sprint(n), entry{N: n})
		require.NoError(t, err)

		last, ok, err := l.Last()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, n, last.Value.N)
		assert.Equal(t, uint64(n), last.Index)
	}
}

func TestLog_LastAfterReopen(t *testing.T) {
	dir := t.TempDir()
	l, err := Open[entry](dir, "test_", "entry_")
	require.NoError(t, err)
	for n := 1; n <= 50; n++ {
		_, err := l.Append(fmt.Sprint(n), entry{N: n})
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	reopened, err := Open[entry](dir, "test_", "entry_")
	require.NoError(t, err)
	defer reopened.Close()

	last, ok, err := reopened.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50, last.Value.N)
	assert.Equal(t, reopened.CurrentIndex(), last.Index)

	records, err := reopened.After(48)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 49, records[0].Value.N)
}

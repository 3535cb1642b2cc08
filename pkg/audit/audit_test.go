package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	l, err := Open(":memory:")
	require.NoError(t, err)
	defer l.Close()

	l.Record("admin", "addCheck", "disk-root", map[string]any{"type": "disk"})
	l.Record("admin", "login", "admin", nil)

	events, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "login", events[0].Action)
	assert.Equal(t, "addCheck", events[1].Action)
}

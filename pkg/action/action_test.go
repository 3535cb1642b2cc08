package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleActionRecords(t *testing.T) {
	a, err := New("console", "c1", nil)
	require.NoError(t, err)
	err = a.Trigger(context.Background(), Message{CheckName: "svc", Failing: true, Text: "down"})
	require.NoError(t, err)

	ca := a.(*consoleAction)
	assert.Equal(t, []string{"svc: down"}, ca.Log())
}

func TestEmailActionRequiresConfig(t *testing.T) {
	a, err := New("email", "e1", nil)
	require.NoError(t, err)
	err = a.Trigger(context.Background(), Message{CheckName: "svc", Text: "down"})
	assert.Error(t, err)
}

func TestSMSActionIsNoOp(t *testing.T) {
	a, err := New("sms", "s1", nil)
	require.NoError(t, err)
	assert.NoError(t, a.Trigger(context.Background(), Message{CheckName: "svc"}))
}

func TestUnknownActionType(t *testing.T) {
	_, err := New("carrier-pigeon", "p1", nil)
	assert.Error(t, err)
}

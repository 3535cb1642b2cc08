package check

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []FailState
}

func (r *recordingNotifier) Notify(ctx context.Context, checkName string, newState FailState, actionNames []string) {
	r.calls = append(r.calls, newState)
}

func newTestCheck(threshold, retries int, prober Prober) *BaseCheck {
	return NewBaseCheck(Config{
		Name:       "t1",
		CheckType:  "test",
		Threshold:  threshold,
		Retries:    retries,
		FailAction: true,
		PassAction: true,
	}, prober)
}

func TestThresholdHysteresis(t *testing.T) {
	failing := true
	c := newTestCheck(3, 1, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		if failing {
			return Fail("down")
		}
		return Pass()
	}))
	n := &recordingNotifier{}
	c.Bind(n, nil)

	// Below threshold: public state should stay Pass.
	st := c.Update(context.Background())
	assert.False(t, st.Failing)
	st = c.Update(context.Background())
	assert.False(t, st.Failing)
	// Third consecutive failure reaches threshold.
	st = c.Update(context.Background())
	require.True(t, st.Failing)
	assert.Len(t, n.calls, 1)

	failing = false
	st = c.Update(context.Background())
	assert.False(t, st.Failing)
	assert.Len(t, n.calls, 2)
}

func TestRetriesShortCircuitOnPass(t *testing.T) {
	attempts := 0
	c := newTestCheck(1, 3, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		attempts++
		if attempts == 1 {
			return Fail("blip")
		}
		return Pass()
	}))
	c.Bind(&recordingNotifier{}, nil)
	st := c.Update(context.Background())
	assert.False(t, st.Failing)
	assert.Equal(t, 2, attempts)
}

func TestSoftFailFromDependency(t *testing.T) {
	dep := newTestCheck(1, 1, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		return Fail("dep down")
	}))
	dep.Bind(&recordingNotifier{}, nil)
	dep.Update(context.Background())

	lookup := func(name string) (FailState, bool) {
		if name == "dep" {
			return dep.State(), true
		}
		return FailState{}, false
	}

	c := NewBaseCheck(Config{Name: "c1", CheckType: "test", Depends: []string{"dep"}}, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		t.Fatal("prober should not run when a dependency is failing")
		return Pass()
	}))
	c.Bind(&recordingNotifier{}, lookup)

	st := c.Update(context.Background())
	require.False(t, st.Failing, "soft-fail must not mutate this check's own public failState")
	assert.Equal(t, "dep", c.SoftFail())
	assert.Equal(t, []string{"SOFTFAIL (depends=dep)"}, c.Log())
}

func TestSequenceRunsEveryCheckAndAggregatesFailures(t *testing.T) {
	a := NewBaseCheck(Config{Name: "a", CheckType: "test"}, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		return Pass()
	}))
	b := NewBaseCheck(Config{Name: "b", CheckType: "test"}, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		return Fail("boom")
	}))
	z := NewBaseCheck(Config{Name: "z", CheckType: "test"}, ProberFunc(func(ctx context.Context, c *BaseCheck) FailState {
		return Fail("bust")
	}))
	a.Bind(&recordingNotifier{}, nil)
	b.Bind(&recordingNotifier{}, nil)
	z.Bind(&recordingNotifier{}, nil)

	seq, err := New(Config{Name: "seq", CheckType: "sequence"})
	require.NoError(t, err)
	sc := seq.(*SequenceCheck)
	sc.Bind(&recordingNotifier{}, nil)
	sc.AddCheck(a)
	sc.AddCheck(b)
	sc.AddCheck(z)

	st := sc.Update(context.Background())
	require.True(t, st.Failing)
	assert.Equal(t, "b,z", st.Reason)
	assert.Contains(t, sc.GetSummary(), "a -> b -> z")
}

func TestRemoteCheckStalenessAndUpdate(t *testing.T) {
	c, err := New(Config{
		Name:      "r1",
		CheckType: "remote",
		Options:   map[string]any{"timeout": 1},
	})
	require.NoError(t, err)
	rc := c.(*RemoteCheck)
	rc.Bind(&recordingNotifier{}, nil)

	st := rc.Update(context.Background())
	assert.False(t, st.Failing, "a check that has never received an update isn't stale yet")

	rc.RemoteUpdate("ping", map[string]any{"failState": false, "failCount": 0, "threshold": 1})
	st = rc.Update(context.Background())
	assert.False(t, st.Failing)

	rc.RemoteUpdate("ping", map[string]any{"failState": true, "reason": "timeout", "failCount": 1, "threshold": 1})
	st = rc.Update(context.Background())
	assert.True(t, st.Failing)
	assert.Equal(t, "timeout", st.Reason)
}

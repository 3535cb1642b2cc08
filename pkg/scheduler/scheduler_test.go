package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeep/watchkeep/pkg/trigger"
)

func TestRegisterFiresOnInterval(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var count int32
	trig := trigger.Trigger{Kind: trigger.KindInterval, Interval: trigger.IntervalSpec{Seconds: 1}}
	err := s.Register("probe1", trig, func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	})
	require.NoError(t, err)

	time.Sleep(2200 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(2))
}

func TestRegisterReplacesPriorJob(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var firstCount, secondCount int32
	trig := trigger.Trigger{Kind: trigger.KindInterval, Interval: trigger.IntervalSpec{Seconds: 1}}
	require.NoError(t, s.Register("probe1", trig, func(ctx context.Context) {
		atomic.AddInt32(&firstCount, 1)
	}))
	require.NoError(t, s.Register("probe1", trig, func(ctx context.Context) {
		atomic.AddInt32(&secondCount, 1)
	}))

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&firstCount))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&secondCount), int32(1))
}

func TestUnregisterStopsFiring(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var count int32
	trig := trigger.Trigger{Kind: trigger.KindInterval, Interval: trigger.IntervalSpec{Seconds: 1}}
	require.NoError(t, s.Register("probe1", trig, func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}))
	time.Sleep(1200 * time.Millisecond)
	s.Unregister("probe1")
	after := atomic.LoadInt32(&count)
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&count))
}

func TestReentranceIsCoalesced(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	var running int32
	var overlapDetected int32
	trig := trigger.Trigger{Kind: trigger.KindInterval, Interval: trigger.IntervalSpec{Seconds: 1}}
	require.NoError(t, s.Register("slow", trig, func(ctx context.Context) {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			atomic.StoreInt32(&overlapDetected, 1)
			return
		}
		time.Sleep(1500 * time.Millisecond)
		atomic.StoreInt32(&running, 0)
	}))

	time.Sleep(3500 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapDetected))
}

func TestCronSpecForRejectsZeroInterval(t *testing.T) {
	_, err := cronSpecFor(trigger.Trigger{Kind: trigger.KindInterval})
	assert.Error(t, err)
}

package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripInterval(t *testing.T) {
	cases := []Trigger{
		{Kind: KindInterval, Interval: IntervalSpec{Minutes: 5}},
		{Kind: KindInterval, Interval: IntervalSpec{Hours: 2, Minutes: 30}},
		{Kind: KindInterval, Interval: IntervalSpec{Days: 1, Start: "08:00", End: "18:00"}},
		{Kind: KindInterval, Interval: IntervalSpec{Weeks: 1, TZ: "AEST", Delay: 30}},
	}
	for _, tc := range cases {
		text := Trigger2Text(tc)
		got, err := Text2Trigger(text)
		require.NoError(t, err)
		assert.Equal(t, tc, got, "round trip of %q", text)
	}
}

func TestRoundTripCron(t *testing.T) {
	cases := []Trigger{
		{Kind: KindCron, Cron: CronSpec{Hour: "9", Minute: "0"}},
		{Kind: KindCron, Cron: CronSpec{Weekday: "mon-fri", Hour: "6"}},
		{Kind: KindCron, Cron: CronSpec{Month: "1", Day: "1", Start: "2025-01-01", TZ: "ACDT"}},
	}
	for _, tc := range cases {
		text := Trigger2Text(tc)
		got, err := Text2Trigger(text)
		require.NoError(t, err)
		assert.Equal(t, tc, got, "round trip of %q", text)
	}
}

func TestEmptyTrigger(t *testing.T) {
	got, err := Text2Trigger("")
	require.NoError(t, err)
	assert.Equal(t, Trigger{}, got)
	assert.Equal(t, "", Trigger2Text(Trigger{}))
}

func TestCanonicalFormRoundTrips(t *testing.T) {
	got, err := Text2Trigger("interval 5 min")
	require.NoError(t, err)
	assert.Equal(t, Trigger{Kind: KindInterval, Interval: IntervalSpec{Minutes: 5}}, got)
	assert.Equal(t, "interval 5 min", Trigger2Text(got))
}

func TestDuplicateUnitTokenOverwrites(t *testing.T) {
	got, err := Text2Trigger("interval 5 min 10 min")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Interval.Minutes)
}

func TestUnitlessTrailingAssumesMinutes(t *testing.T) {
	got, err := Text2Trigger("5")
	require.NoError(t, err)
	require.Equal(t, KindInterval, got.Kind)
	assert.Equal(t, 5, got.Interval.Minutes)
}

func TestCronSpecString(t *testing.T) {
	s := CronSpec{Hour: "9", Minute: "30"}
	assert.Equal(t, "* 30 9 * * *", s.CronSpecString())
}

func TestBadTokenErrors(t *testing.T) {
	_, err := Text2Trigger("banana")
	assert.Error(t, err)
}

package check

import (
	"context"
	"strings"
	"time"

	"github.com/watchkeep/watchkeep/pkg/defaults"
)

func init() {
	Register("remote", newRemoteCheck)
}

// localZoneOffsets maps the handful of abbreviated timezone names the
// original deployment's remote agents stamp their reports with to a fixed
// UTC offset in seconds, since neither Python's dateutil nor Go's time
// package can resolve an ambiguous three/four-letter zone abbreviation on
// its own (original_source/fletchck/check.py's LOCALZONES).
var localZoneOffsets = map[string]int{
	"AEST": 36000,
	"AEDT": 39600,
	"ACST": 34200,
	"ACDT": 37800,
}

// remoteTimeLayout matches timeString()'s "%d %b %Y %H:%M %Z" format.
const remoteTimeLayout = "02 Jan 2006 15:04 MST"

// parseRemoteTime parses a timestamp stamped by a remote agent, trying the
// known local-zone aliases before falling back to a plain layout parse.
// An unparseable or empty string reports ok=false.
func parseRemoteTime(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	fields := strings.Fields(s)
	if len(fields) > 1 {
		if off, aliased := localZoneOffsets[fields[len(fields)-1]]; aliased {
			stripped := strings.Join(fields[:len(fields)-1], " ")
			if parsed, err := time.Parse("02 Jan 2006 15:04", stripped); err == nil {
				return parsed.Add(-time.Duration(off) * time.Second), true
			}
		}
	}
	if parsed, err := time.Parse(remoteTimeLayout, s); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// RemoteCheck never runs its own network probe. Instead an external agent
// (the mqttremote bridge) calls RemoteUpdate with the result it observed.
// The scheduler still ticks it on its trigger, but the tick's only job is
// to notice staleness: if options.timeout seconds pass with no accepted
// RemoteUpdate, the check reports failing on its own.
type RemoteCheck struct {
	*BaseCheck

	timeout int
}

func newRemoteCheck(cfg Config) (Check, error) {
	timeout := GetIntOpt(cfg.Options, "timeout", int(defaults.RemoteStaleAfter.Seconds()))
	r := &RemoteCheck{timeout: timeout}
	bc := NewBaseCheck(cfg, nil)
	bc.prober = ProberFunc(func(ctx context.Context, _ *BaseCheck) FailState {
		return r.BaseCheck.Stale(r.timeout)
	})
	r.BaseCheck = bc
	return r, nil
}

// RemoteUpdate records an out-of-band transition pushed in by an external
// agent, replicating baseCheck.update()'s transition/notify logic against
// the fields carried in data (spec §4.4, check.py:635-678). Recognized
// keys: failState (bool), reason (string), failCount/threshold (int),
// log ([]string), softFail (string), lastCheck/lastFail/lastPass
// (timestamp strings).
func (r *RemoteCheck) RemoteUpdate(checkType string, data map[string]any) {
	failing, _ := data["failState"].(bool)
	reason, _ := data["reason"].(string)
	next := FailState{Failing: failing, Reason: reason}

	failCount := getMapInt(data, "failCount", 0)
	threshold := getMapInt(data, "threshold", r.Threshold())
	logLines := getMapStringSlice(data, "log")
	softFail := getMapString(data, "softFail", "")

	now := time.Now()
	lastCheck, ok := parseRemoteTime(getMapString(data, "lastCheck", ""))
	if !ok {
		lastCheck = now
	}
	lastFail, _ := parseRemoteTime(getMapString(data, "lastFail", ""))
	lastPass, _ := parseRemoteTime(getMapString(data, "lastPass", ""))

	doNotify, actionNames, name := r.BaseCheck.ApplyRemote(checkType, next, failCount, threshold, logLines, softFail, lastCheck, lastFail, lastPass, lastCheck)
	if doNotify {
		if notify := r.notifier(); notify != nil {
			notify.Notify(context.Background(), name, next, actionNames)
		}
	}
}

func (r *RemoteCheck) notifier() Notifier {
	r.BaseCheck.mu.Lock()
	defer r.BaseCheck.mu.Unlock()
	return r.BaseCheck.notify
}

func getMapInt(data map[string]any, key string, def int) int {
	if v, ok := data[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func getMapString(data map[string]any, key, def string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func getMapStringSlice(data map[string]any, key string) []string {
	v, ok := data[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

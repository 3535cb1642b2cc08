// Package check implements the probe contract: the uniform state machine
// every probe type shares (threshold/retries hysteresis, dependency
// soft-fail, transition notification), plus the registry of concrete probe
// types.
package check

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/watchkeep/watchkeep/pkg/defaults"
	"github.com/watchkeep/watchkeep/pkg/trigger"
)

// FailState is the sum type described by the site's data model: either a
// pass (Failing == false, Reason == "") or a fail carrying a reason.
// Comparing two FailState values by == is meaningful and is how the state
// machine detects a transition.
type FailState struct {
	Failing bool
	Reason  string
}

// Pass is the canonical passing FailState.
func Pass() FailState { return FailState{} }

// Fail builds a failing FailState with the given reason.
func Fail(reason string) FailState { return FailState{Failing: true, Reason: reason} }

func (f FailState) String() string {
	if !f.Failing {
		return ""
	}
	if f.Reason == "" {
		return "fail"
	}
	return f.Reason
}

// Prober is the part a concrete probe type supplies: a single test attempt.
// It must not itself apply retries or threshold logic; BaseCheck owns that.
type Prober interface {
	Probe(ctx context.Context, c *BaseCheck) FailState
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, c *BaseCheck) FailState

func (f ProberFunc) Probe(ctx context.Context, c *BaseCheck) FailState { return f(ctx, c) }

// Notifier dispatches a check's pass/fail transition to the site's
// configured actions. Site implements this; check never imports site,
// breaking the import cycle the original's single-module design didn't
// have to worry about.
type Notifier interface {
	Notify(ctx context.Context, checkName string, newState FailState, actionNames []string)
}

// DependencyLookup resolves a dependency name to its current FailState.
type DependencyLookup func(name string) (FailState, bool)

// Check is the public interface every probe type satisfies. Sequence and
// remote checks wrap a *BaseCheck the same as the leaf probe types.
type Check interface {
	Name() string
	Type() string
	Update(ctx context.Context) FailState
	State() FailState
	SoftFail() string
	Trigger() trigger.Trigger
	Depends() []string
	Threshold() int
	Priority() int
	Log() []string
	Options() map[string]any
	Actions() []string
	AddDepend(name string)
	DelDepend(name string)
	Snapshot() RestoreData
	LastTimestamps() (check, pass, fail, update time.Time)
	Publish() string
	FailAction() bool
	PassAction() bool
}

// BaseCheck implements the uniform contract (spec §4.1): threshold and
// retries hysteresis, dependency soft-fail, and transition notification.
// Concrete probe types embed it and supply a Prober.
type BaseCheck struct {
	mu sync.Mutex

	name      string
	checkType string
	subType   string
	options   map[string]any

	trig      trigger.Trigger
	threshold int
	retries   int
	priority  int

	failAction bool
	passAction bool
	publish    string // optional MQTT-style publish topic
	actions    []string
	depends    []string

	prober Prober
	notify Notifier
	lookup DependencyLookup

	state     FailState
	failCount int
	softFail  string

	log    []string
	oldLog []string

	lastCheck, lastPass, lastFail, lastUpdate time.Time
}

// Config bundles BaseCheck's construction-time fields.
type Config struct {
	Name       string
	CheckType  string
	SubType    string
	Options    map[string]any
	Trigger    trigger.Trigger
	Threshold  int
	Retries    int
	Priority   int
	FailAction bool
	PassAction bool
	Publish    string
	Actions    []string
	Depends    []string

	// Restore, when non-nil, seeds the new BaseCheck's runtime state from
	// a previously persisted data block instead of a fresh Pass().
	Restore *RestoreData
}

// NewBaseCheck constructs a BaseCheck wired to the given Prober. Threshold
// and Retries default to 1 when zero, matching the original's "must be at
// least 1" invariant.
func NewBaseCheck(cfg Config, prober Prober) *BaseCheck {
	threshold := cfg.Threshold
	if threshold < 1 {
		threshold = defaults.DefaultThreshold
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = defaults.DefaultRetries
	}
	opts := cfg.Options
	if opts == nil {
		opts = map[string]any{}
	}
	bc := &BaseCheck{
		name:       cfg.Name,
		checkType:  cfg.CheckType,
		subType:    cfg.SubType,
		options:    opts,
		trig:       cfg.Trigger,
		threshold:  threshold,
		retries:    retries,
		priority:   cfg.Priority,
		failAction: cfg.FailAction,
		passAction: cfg.PassAction,
		publish:    cfg.Publish,
		actions:    append([]string{}, cfg.Actions...),
		depends:    append([]string{}, cfg.Depends...),
		state:      Pass(),
	}
	if cfg.Restore != nil {
		bc.restore(*cfg.Restore)
	}
	return bc
}

// Bind attaches the runtime collaborators a check needs once it is owned
// by a site: where to send transition notifications and how to resolve
// its dependencies.
func (c *BaseCheck) Bind(notify Notifier, lookup DependencyLookup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = notify
	c.lookup = lookup
}

func (c *BaseCheck) Name() string              { return c.name }
func (c *BaseCheck) Type() string               { return c.checkType }
func (c *BaseCheck) SubType() string            { return c.subType }
func (c *BaseCheck) Trigger() trigger.Trigger   { return c.trig }
func (c *BaseCheck) Threshold() int             { return c.threshold }
func (c *BaseCheck) Retries() int               { return c.retries }
func (c *BaseCheck) Priority() int              { return c.priority }
func (c *BaseCheck) Depends() []string          { return append([]string{}, c.depends...) }
func (c *BaseCheck) Actions() []string          { return append([]string{}, c.actions...) }
func (c *BaseCheck) Options() map[string]any    { return c.options }
func (c *BaseCheck) Publish() string            { return c.publish }
func (c *BaseCheck) FailAction() bool           { return c.failAction }
func (c *BaseCheck) PassAction() bool           { return c.passAction }

func (c *BaseCheck) State() FailState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *BaseCheck) SoftFail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.softFail
}

func (c *BaseCheck) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.log...)
}

func (c *BaseCheck) appendLog(line string) {
	c.log = append(c.log, line)
	if len(c.log) > defaults.LogMaxLines {
		c.log = c.log[defaults.LogPruneBlock:]
	}
}

// AddDepend and DelDepend mutate the dependency set while the
// site is running, matching spec §4.7's live-editing requirement.
func (c *BaseCheck) AddDepend(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.depends {
		if d == name {
			return
		}
	}
	c.depends = append(c.depends, name)
}

func (c *BaseCheck) DelDepend(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.depends[:0]
	for _, d := range c.depends {
		if d != name {
			out = append(out, d)
		}
	}
	c.depends = out
}

func (c *BaseCheck) AddAction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.actions {
		if a == name {
			return
		}
	}
	c.actions = append(c.actions, name)
}

func (c *BaseCheck) DelAction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.actions[:0]
	for _, a := range c.actions {
		if a != name {
			out = append(out, a)
		}
	}
	c.actions = out
}

// Update runs one tick of the probe contract: dependency soft-fail check,
// then up to Retries probe attempts, then threshold hysteresis, then
// transition notification. It returns the check's public FailState after
// the tick.
func (c *BaseCheck) Update(ctx context.Context) FailState {
	c.mu.Lock()
	lookup := c.lookup
	depends := append([]string{}, c.depends...)
	c.mu.Unlock()

	if lookup != nil {
		for _, dep := range depends {
			if st, ok := lookup(dep); ok && st.Failing {
				return c.applySoftFail(ctx, dep)
			}
		}
	}

	c.mu.Lock()
	c.softFail = ""
	c.mu.Unlock()

	var last FailState
	for attempt := 0; attempt < c.retries; attempt++ {
		last = c.prober.Probe(ctx, c)
		if !last.Failing {
			break
		}
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	if !last.Failing {
		c.lastPass = c.lastCheck
		c.failCount = 0
	} else {
		c.lastFail = c.lastCheck
		c.failCount++
	}

	prev := c.state
	var next FailState
	switch {
	case !last.Failing:
		next = Pass()
	case c.failCount >= c.threshold:
		next = last
	default:
		next = prev // below threshold: hold the previous public state
	}
	changed := next != prev
	if changed {
		c.state = next
		c.lastUpdate = c.lastCheck
		c.appendLog(fmt.Sprintf("%s -> %s", prev, next))
	}
	notify := c.notify
	actionNames := append([]string{}, c.actions...)
	failAction, passAction := c.failAction, c.passAction
	name := c.name
	c.mu.Unlock()

	// failAction/passAction gate whether this transition dispatches the
	// check's own attached actions at all; they never add extra targets.
	dispatch := changed && ((next.Failing && failAction) || (!next.Failing && passAction))
	if dispatch && notify != nil {
		notify.Notify(ctx, name, next, actionNames)
	}

	return next
}

// applySoftFail implements the dependency soft-fail path: a failing
// dependency makes this check's own probe a no-op. It must not mutate
// failState, lastPass, lastFail, or failCount, and must never notify --
// only softFail and log change. On entering soft-fail the prior log is
// kept in oldLog so Stale can restore it once the dependency clears.
func (c *BaseCheck) applySoftFail(_ context.Context, dependency string) FailState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.softFail == "" {
		c.oldLog = c.log
	}
	c.softFail = dependency
	c.log = []string{fmt.Sprintf("SOFTFAIL (depends=%s)", dependency)}
	return c.state
}

// LastTimestamps returns the four timestamps the status object reports.
func (c *BaseCheck) LastTimestamps() (check, pass, fail, update time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCheck, c.lastPass, c.lastFail, c.lastUpdate
}

// FailCount returns the number of consecutive failing ticks observed so
// far, for persistence.
func (c *BaseCheck) FailCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failCount
}

// RestoreData carries a check's persisted runtime state, applied to a
// freshly constructed BaseCheck so reloading the document doesn't discard
// prior failState/log/timestamp history (spec §4.7's data round-trip).
type RestoreData struct {
	Failing    bool
	Reason     string
	FailCount  int
	Log        []string
	SoftFail   string
	LastCheck  time.Time
	LastUpdate time.Time
	LastFail   time.Time
	LastPass   time.Time
}

// Snapshot returns the runtime state SaveConfig persists into a check
// document's data block.
func (c *BaseCheck) Snapshot() RestoreData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RestoreData{
		Failing:    c.state.Failing,
		Reason:     c.state.Reason,
		FailCount:  c.failCount,
		Log:        append([]string{}, c.log...),
		SoftFail:   c.softFail,
		LastCheck:  c.lastCheck,
		LastUpdate: c.lastUpdate,
		LastFail:   c.lastFail,
		LastPass:   c.lastPass,
	}
}

func (c *BaseCheck) restore(d RestoreData) {
	c.state = FailState{Failing: d.Failing, Reason: d.Reason}
	c.failCount = d.FailCount
	if d.Log != nil {
		c.log = append([]string{}, d.Log...)
	}
	c.softFail = d.SoftFail
	c.lastCheck = d.LastCheck
	c.lastUpdate = d.LastUpdate
	c.lastFail = d.LastFail
	c.lastPass = d.LastPass
}

// Stale evaluates a remote check's staleness tick: if timeoutSeconds have
// elapsed since the last accepted remote update, it reports failing and
// logs the timeout; otherwise it restores the pre-softfail log (if any)
// and returns the check's current public state unchanged. A zero timeout
// or a check that has never been updated skips the staleness test
// entirely, matching the original's "only stale once we've heard from it
// at least once" behaviour.
func (c *BaseCheck) Stale(timeoutSeconds int) FailState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeoutSeconds <= 0 || c.lastUpdate.IsZero() {
		return c.state
	}
	et := time.Since(c.lastUpdate)
	if et > time.Duration(timeoutSeconds)*time.Second {
		msg := fmt.Sprintf("Timeout waiting for update %d sec (%s)", int(et.Seconds()), c.lastUpdate.Format(defaults.TimestampFormat))
		c.appendLog(msg)
		return Fail(msg)
	}
	if len(c.oldLog) > 0 {
		c.log = append([]string{}, c.oldLog...)
		c.oldLog = nil
	}
	return c.state
}

// ApplyRemote overwrites runtime state from an externally reported
// transition, replicating Update()'s notify-gating against the prior
// state without running a probe (spec §4.4's remoteUpdate contract).
func (c *BaseCheck) ApplyRemote(subType string, next FailState, failCount, threshold int, logLines []string, softFail string, lastCheck, lastFail, lastPass, lastUpdate time.Time) (doNotify bool, actionNames []string, name string) {
	c.mu.Lock()
	prev := c.state
	if next.Failing {
		if failCount >= threshold && next != prev && c.failAction {
			doNotify = true
		}
	} else if prev.Failing && c.passAction {
		doNotify = true
	}

	c.subType = subType
	c.state = next
	c.failCount = failCount
	c.threshold = threshold
	if logLines != nil {
		c.log = logLines
	}
	c.softFail = softFail
	c.lastCheck = lastCheck
	c.lastFail = lastFail
	c.lastPass = lastPass
	c.lastUpdate = lastUpdate

	actionNames = append([]string{}, c.actions...)
	name = c.name
	c.mu.Unlock()
	return doNotify, actionNames, name
}

// Registry maps a checkType string to a factory building a Check from its
// name, options and shared BaseCheck config. This mirrors the original's
// CHECK_TYPES dict as a Go init-time registry (design notes §9).
type Factory func(cfg Config) (Check, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds a checkType factory. Called from each probe-variant file's
// init().
func Register(checkType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[checkType] = f
}

// New builds a Check of the given type via the registry.
func New(cfg Config) (Check, error) {
	registryMu.Lock()
	f, ok := registry[cfg.CheckType]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("check: unknown check type %q", cfg.CheckType)
	}
	return f(cfg)
}

// Types lists every registered checkType, sorted is left to the caller.
func Types() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// GetStrOpt, GetBoolOpt, GetIntOpt read typed options out of the options
// map, matching the original's getStrOpt/getBoolOpt/getIntOpt helpers.
func GetStrOpt(opts map[string]any, key, def string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func GetBoolOpt(opts map[string]any, key string, def bool) bool {
	if v, ok := opts[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func GetIntOpt(opts map[string]any, key string, def int) int {
	if v, ok := opts[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

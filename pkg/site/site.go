// Package site owns the running monitor: the loaded set of checks and
// actions, the scheduler driving them, the persisted JSON document, and
// the status/lifecycle operations the CLI and web surface call into.
package site

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/watchkeep/watchkeep/pkg/action"
	"github.com/watchkeep/watchkeep/pkg/check"
	"github.com/watchkeep/watchkeep/pkg/defaults"
	"github.com/watchkeep/watchkeep/pkg/scheduler"
	"github.com/watchkeep/watchkeep/pkg/trigger"
)

// AuditRecorder is satisfied by pkg/audit.Log; Site only ever calls it
// fire-and-forget, matching the error-handling taxonomy's persistence
// class (log, never propagate).
type AuditRecorder interface {
	Record(actor, action, subject string, detail map[string]any)
}

// Site is the top-level owner described by spec §3/§4.7.
type Site struct {
	configFile string

	mu      sync.RWMutex
	actions map[string]action.Action
	checks  map[string]check.Check
	order   []string // insertion order, for stable listing
	timezone string
	web      *webDoc

	sched  *scheduler.Scheduler
	audit  AuditRecorder

	logMu  sync.Mutex
	log    []string
	oldLog []string

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds an empty Site bound to configFile; call LoadConfig (or seed
// checks manually) before Run.
func New(configFile string) *Site {
	return &Site{
		configFile: configFile,
		actions:    map[string]action.Action{},
		checks:     map[string]check.Check{},
		sched:      scheduler.New(),
		shutdown:   make(chan struct{}),
	}
}

// SetAuditor wires an optional audit log; nil disables auditing.
func (s *Site) SetAuditor(a AuditRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = a
}

func (s *Site) record(actor, act, subject string, detail map[string]any) {
	s.mu.RLock()
	a := s.audit
	s.mu.RUnlock()
	if a != nil {
		a.Record(actor, act, subject, detail)
	}
}

func (s *Site) appendLog(line string) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.log = append(s.log, fmt.Sprintf("%s %s", time.Now().Format(defaults.TimestampFormat), line))
	if len(s.log) > defaults.LogMaxLines {
		s.oldLog = append(s.oldLog, s.log[:defaults.LogPruneBlock]...)
		s.log = s.log[defaults.LogPruneBlock:]
	}
}

// Log returns the retained log lines, oldest first.
func (s *Site) Log() []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return append([]string{}, s.log...)
}

// Notify implements check.Notifier: a check transitioned and wants its
// configured actions run.
func (s *Site) Notify(ctx context.Context, checkName string, newState check.FailState, actionNames []string) {
	text := "pass"
	if newState.Failing {
		text = "fail: " + newState.Reason
	}
	s.appendLog(fmt.Sprintf("%s -> %s", checkName, text))

	s.mu.RLock()
	var acts []action.Action
	for _, name := range actionNames {
		if a, ok := s.actions[name]; ok {
			acts = append(acts, a)
		}
	}
	s.mu.RUnlock()

	msg := action.Message{CheckName: checkName, Failing: newState.Failing, Reason: newState.Reason, Text: text}
	for _, a := range acts {
		if err := a.Trigger(ctx, msg); err != nil {
			log.Printf("⚠️  action %s for %s: %v", a.Name(), checkName, err)
		}
	}
}

// lookupDependency implements check.DependencyLookup against the site's
// current check set.
func (s *Site) lookupDependency(name string) (check.FailState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checks[name]
	if !ok {
		return check.FailState{}, false
	}
	return c.State(), true
}

// LoadConfig reads and parses the persisted document, building every
// action and check. Checks are built in two passes: first every leaf and
// sequence check is constructed, then sequence sub-check lists are wired,
// matching the original loader's two-pass approach (spec §4.7, design
// notes on cyclic refs via names).
func (s *Site) LoadConfig() error {
	data, err := os.ReadFile(s.configFile)
	if err != nil {
		return fmt.Errorf("site: read config: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("site: parse config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timezone = doc.Timezone
	s.web = doc.Web
	s.actions = map[string]action.Action{}
	for name, ad := range doc.Actions {
		a, err := action.New(ad.Type, name, ad.Options)
		if err != nil {
			return fmt.Errorf("site: action %s: %w", name, err)
		}
		s.actions[name] = a
	}

	s.checks = map[string]check.Check{}
	s.order = nil
	for name, cd := range doc.Checks {
		c, err := s.buildCheck(name, cd)
		if err != nil {
			return fmt.Errorf("site: check %s: %w", name, err)
		}
		s.checks[name] = c
		s.order = append(s.order, name)
	}

	for name, cd := range doc.Checks {
		if cd.Type != "sequence" || len(cd.Checks) == 0 {
			continue
		}
		seq, ok := s.checks[name].(*check.SequenceCheck)
		if !ok {
			continue
		}
		for _, sub := range cd.Checks {
			if c, ok := s.checks[sub]; ok {
				seq.AddCheck(c)
			}
		}
	}

	return nil
}

func (s *Site) buildCheck(name string, cd checkDoc) (check.Check, error) {
	trig, err := trigger.Text2Trigger(cd.Trigger)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	var restore *check.RestoreData
	if cd.Data != nil {
		restore = &check.RestoreData{
			Failing:    cd.Data.Failing,
			Reason:     cd.Data.Reason,
			FailCount:  cd.Data.FailCount,
			Log:        cd.Data.Log,
			SoftFail:   cd.Data.SoftFail,
			LastCheck:  parseTimestamp(cd.Data.LastCheck),
			LastUpdate: parseTimestamp(cd.Data.LastUpdate),
			LastFail:   parseTimestamp(cd.Data.LastFail),
			LastPass:   parseTimestamp(cd.Data.LastPass),
		}
	}
	c, err := check.New(check.Config{
		Name:       name,
		CheckType:  cd.Type,
		SubType:    cd.SubType,
		Options:    cd.Options,
		Trigger:    trig,
		Threshold:  cd.Threshold,
		Retries:    cd.Retries,
		Priority:   cd.Priority,
		FailAction: cd.FailAction,
		PassAction: cd.PassAction,
		Publish:    cd.Publish,
		Actions:    cd.Actions,
		Depends:    cd.Depends,
		Restore:    restore,
	})
	if err != nil {
		return nil, err
	}
	if bc, ok := c.(interface {
		Bind(check.Notifier, check.DependencyLookup)
	}); ok {
		bc.Bind(s, s.lookupDependency)
	}
	return c, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(defaults.TimestampFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sortedNames orders check names by (priority, insertion index), matching
// the original's sortedChecks() ordering (the same algorithm
// SequenceCheck.sorted() applies at the sub-check level).
func sortedNames(checks map[string]check.Check, insertionOrder []string) []string {
	insertionIndex := make(map[string]int, len(insertionOrder))
	for i, n := range insertionOrder {
		insertionIndex[n] = i
	}
	out := append([]string{}, insertionOrder...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, okI := checks[out[i]]
		cj, okJ := checks[out[j]]
		if !okI || !okJ {
			return insertionIndex[out[i]] < insertionIndex[out[j]]
		}
		if ci.Priority() != cj.Priority() {
			return ci.Priority() < cj.Priority()
		}
		return insertionIndex[out[i]] < insertionIndex[out[j]]
	})
	return out
}

// SaveConfig serializes the current actions/checks/web settings back into
// the JSON document, using the atomic link-temp-rename-bak protocol.
func (s *Site) SaveConfig() error {
	s.mu.RLock()
	doc := document{Timezone: s.timezone, Web: s.web}
	doc.Actions = map[string]actionDoc{}
	// Actions are built once at load and never change at runtime, so their
	// entries are carried over from the document already on disk.
	if prev, err := os.ReadFile(s.configFile); err == nil {
		var old document
		if json.Unmarshal(prev, &old) == nil && old.Actions != nil {
			doc.Actions = old.Actions
		}
	}
	doc.Checks = map[string]checkDoc{}
	for name, c := range s.checks {
		doc.Checks[name] = checkDocFromCheck(c)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("site: marshal config: %w", err)
	}
	return atomicWrite(s.configFile, data)
}

func checkDocFromCheck(c check.Check) checkDoc {
	cd := checkDoc{
		Type:      c.Type(),
		Trigger:   trigger.Trigger2Text(c.Trigger()),
		Threshold: c.Threshold(),
		Priority:  c.Priority(),
		Depends:   c.Depends(),
		Options:   c.Options(),
		Actions:    c.Actions(),
		FailAction: c.FailAction(),
		PassAction: c.PassAction(),
		Publish:    c.Publish(),
		Data:       checkDataDocFromSnapshot(c.Snapshot()),
	}
	if bc, ok := c.(interface {
		SubType() string
		Retries() int
	}); ok {
		cd.SubType = bc.SubType()
		cd.Retries = bc.Retries()
	}
	if seq, ok := c.(*check.SequenceCheck); ok {
		cd.Checks = seq.SubNames()
	}
	return cd
}

func checkDataDocFromSnapshot(snap check.RestoreData) *checkDataDoc {
	d := &checkDataDoc{
		Failing:   snap.Failing,
		Reason:    snap.Reason,
		FailCount: snap.FailCount,
		Log:       snap.Log,
		SoftFail:  snap.SoftFail,
	}
	if !snap.LastCheck.IsZero() {
		d.LastCheck = snap.LastCheck.Format(defaults.TimestampFormat)
	}
	if !snap.LastUpdate.IsZero() {
		d.LastUpdate = snap.LastUpdate.Format(defaults.TimestampFormat)
	}
	if !snap.LastFail.IsZero() {
		d.LastFail = snap.LastFail.Format(defaults.TimestampFormat)
	}
	if !snap.LastPass.IsZero() {
		d.LastPass = snap.LastPass.Format(defaults.TimestampFormat)
	}
	return d
}

// AddCheck registers a new check at runtime, schedules it, and persists
// the updated document.
func (s *Site) AddCheck(name string, cd checkDoc) error {
	s.mu.Lock()
	if _, exists := s.checks[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("site: check %s already exists", name)
	}
	c, err := s.buildCheck(name, cd)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.checks[name] = c
	s.order = append(s.order, name)
	s.mu.Unlock()

	if err := s.scheduleCheck(name, c); err != nil {
		return err
	}
	s.record("site", "addCheck", name, nil)
	return s.SaveConfig()
}

// UpdateCheck replaces oldName's definition with cd, registering it under
// newName (a no-op rename when newName == oldName), preserving nothing of
// its own runtime state unless cd carries a restored data block. Every
// other check's dependency list, sequence membership, and raw
// options["checks"] references to oldName are rewritten to newName so a
// rename leaves no dangling reference (spec §4.7).
func (s *Site) UpdateCheck(oldName, newName string, cd checkDoc) error {
	s.mu.Lock()
	if _, exists := s.checks[oldName]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("site: check %s does not exist", oldName)
	}
	if newName != oldName {
		if _, exists := s.checks[newName]; exists {
			s.mu.Unlock()
			return fmt.Errorf("site: check %s already exists", newName)
		}
	}
	c, err := s.buildCheck(newName, cd)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	delete(s.checks, oldName)
	s.checks[newName] = c
	for i, n := range s.order {
		if n == oldName {
			s.order[i] = newName
			break
		}
	}

	for _, other := range s.checks {
		if other.Name() == newName {
			continue
		}
		for _, d := range other.Depends() {
			if d == oldName {
				other.DelDepend(oldName)
				other.AddDepend(newName)
				break
			}
		}
		if seq, ok := other.(*check.SequenceCheck); ok {
			for _, n := range seq.SubNames() {
				if n == oldName {
					seq.ReplaceCheckNamed(oldName, c)
					break
				}
			}
		}
		replaceOptionsChecksEntry(other.Options(), oldName, newName)
	}
	s.mu.Unlock()

	s.sched.Unregister(oldName)
	if err := s.scheduleCheck(newName, c); err != nil {
		return err
	}
	s.record("site", "updateCheck", newName, map[string]any{"renamedFrom": oldName})
	return s.SaveConfig()
}

// replaceOptionsChecksEntry rewrites a raw options["checks"] list entry
// matching oldName to newName in place, for check types (outside
// sequence) that reference other checks by name through a free-form
// options list (util.updateCheck/util.deleteCheck in original_source/).
func replaceOptionsChecksEntry(options map[string]any, oldName, newName string) {
	raw, ok := options["checks"]
	if !ok {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		return
	}
	for i, v := range list {
		if name, ok := v.(string); ok && name == oldName {
			if newName == "" {
				list = append(list[:i], list[i+1:]...)
				options["checks"] = list
				return
			}
			list[i] = newName
		}
	}
}

// DeleteCheck unregisters and unschedules a check, and removes it as a
// dependency, sequence member, or options["checks"] reference wherever it
// was referenced.
func (s *Site) DeleteCheck(name string) error {
	s.mu.Lock()
	if _, exists := s.checks[name]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("site: check %s does not exist", name)
	}
	delete(s.checks, name)
	out := s.order[:0]
	for _, n := range s.order {
		if n != name {
			out = append(out, n)
		}
	}
	s.order = out
	for _, c := range s.checks {
		c.DelDepend(name)
		if seq, ok := c.(*check.SequenceCheck); ok {
			seq.DelCheck(name)
		}
		replaceOptionsChecksEntry(c.Options(), name, "")
	}
	s.mu.Unlock()

	s.sched.Unregister(name)
	s.record("site", "deleteCheck", name, nil)
	return s.SaveConfig()
}

// RunCheck forces an immediate out-of-band tick of the named check,
// independent of its trigger.
func (s *Site) RunCheck(ctx context.Context, name string) (check.FailState, error) {
	s.mu.RLock()
	c, ok := s.checks[name]
	s.mu.RUnlock()
	if !ok {
		return check.FailState{}, fmt.Errorf("site: check %s does not exist", name)
	}
	s.record("site", "runCheck", name, nil)
	return c.Update(ctx), nil
}

func (s *Site) scheduleCheck(name string, c check.Check) error {
	return s.sched.Register(name, c.Trigger(), func(ctx context.Context) {
		c.Update(ctx)
	})
}

// Run starts the scheduler, schedules every loaded check, and blocks
// until the site's shutdown signal fires, then saves the document one
// last time.
func (s *Site) Run(ctx context.Context) error {
	s.mu.RLock()
	checks := make(map[string]check.Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()

	for name, c := range checks {
		if err := s.scheduleCheck(name, c); err != nil {
			return fmt.Errorf("site: schedule %s: %w", name, err)
		}
	}
	s.sched.Start()
	defer s.sched.Stop()

	select {
	case <-ctx.Done():
	case <-s.shutdown:
	}
	return s.SaveConfig()
}

// Shutdown signals Run to stop. Safe to call more than once.
func (s *Site) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// CheckStatus is one entry of the status object (spec §6), keyed by check
// name in Status.Checks the way the original's getStatus() nests its
// per-check dict under the check's name rather than repeating it inline.
type CheckStatus struct {
	Type      string   `json:"checkType"`
	Failing   bool     `json:"failState"`
	Reason    string   `json:"reason,omitempty"`
	Trigger   string   `json:"trigger,omitempty"`
	SoftFail  string   `json:"softFail,omitempty"`
	Threshold int      `json:"threshold"`
	Priority  int      `json:"priority"`
	Depends   []string `json:"depends,omitempty"`
	LastFail  string   `json:"lastFail,omitempty"`
	LastPass  string   `json:"lastPass,omitempty"`
}

// Status is the full status object served over the web surface: a
// top-level fail/info summary plus the name-keyed per-check detail, so a
// caller can render it without any further queries (spec §4.7/§6).
type Status struct {
	Fail     bool                   `json:"fail"`
	Info     string                 `json:"info,omitempty"`
	Timezone string                 `json:"timezone,omitempty"`
	Checks   map[string]CheckStatus `json:"checks"`
	Log      []string               `json:"log"`
}

// GetStatus builds the status object, visiting checks in (priority,
// insertion) order. Checks is a map keyed by name, so that order is not
// carried in the result; encoding/json writes the keys sorted by name.
func (s *Site) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Timezone: s.timezone, Log: s.Log(), Checks: map[string]CheckStatus{}}
	failCount := 0
	for _, name := range sortedNames(s.checks, s.order) {
		c, ok := s.checks[name]
		if !ok {
			continue
		}
		fs := c.State()
		if fs.Failing {
			failCount++
			st.Fail = true
		}
		_, lastPass, lastFail, _ := c.LastTimestamps()
		entry := CheckStatus{
			Type:      c.Type(),
			Failing:   fs.Failing,
			Reason:    fs.Reason,
			Trigger:   trigger.Trigger2Text(c.Trigger()),
			SoftFail:  c.SoftFail(),
			Threshold: c.Threshold(),
			Priority:  c.Priority(),
			Depends:   c.Depends(),
		}
		if !lastFail.IsZero() {
			entry.LastFail = lastFail.Format(defaults.TimestampFormat)
		}
		if !lastPass.IsZero() {
			entry.LastPass = lastPass.Format(defaults.TimestampFormat)
		}
		st.Checks[name] = entry
	}
	if failCount > 0 {
		suffix := "s"
		if failCount == 1 {
			suffix = ""
		}
		st.Info = fmt.Sprintf("%d check%s in fail state", failCount, suffix)
	}
	return st
}

// TestActions dispatches one synthetic failing message, for a check named
// "Notification", through every named action that exists, letting an
// operator verify notification delivery without waiting for a real check
// transition. No passing message is sent. It returns each action's error
// keyed by action name.
func (s *Site) TestActions(ctx context.Context, names []string) map[string]error {
	s.mu.RLock()
	var acts []action.Action
	for _, n := range names {
		if a, ok := s.actions[n]; ok {
			acts = append(acts, a)
		}
	}
	s.mu.RUnlock()

	results := map[string]error{}
	msg := action.Message{CheckName: "Notification", Failing: true, Reason: "test", Text: "test notification"}
	for _, a := range acts {
		results[a.Name()] = a.Trigger(ctx, msg)
	}
	return results
}

// Check returns the named check, primarily for the web handlers.
func (s *Site) Check(name string) (check.Check, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checks[name]
	return c, ok
}

// RemoteCheckByName returns a *check.RemoteCheck by name for the MQTT
// bridge to push updates into, or false if name isn't a remote check.
func (s *Site) RemoteCheckByName(name string) (*check.RemoteCheck, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checks[name]
	if !ok {
		return nil, false
	}
	rc, ok := c.(*check.RemoteCheck)
	return rc, ok
}

// RemoteCheckNames returns the names of every loaded remote check, for
// the MQTT bridge to subscribe to on startup.
func (s *Site) RemoteCheckNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, name := range s.order {
		if _, ok := s.checks[name].(*check.RemoteCheck); ok {
			names = append(names, name)
		}
	}
	return names
}

// RemoteCheckUpdate implements mqttremote.RemoteUpdater: it routes a
// decoded MQTT payload into the named remote check.
func (s *Site) RemoteCheckUpdate(name, checkType string, data map[string]any) error {
	rc, ok := s.RemoteCheckByName(name)
	if !ok {
		return fmt.Errorf("site: %s is not a remote check", name)
	}
	rc.RemoteUpdate(checkType, data)
	return nil
}

// WebConfig returns the web surface's own persisted settings, or ok=false
// if the document never configured one.
func (s *Site) WebConfig() (port int, admin, passwordHash, certFile, keyFile, jwtSecret string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.web == nil {
		return 0, "", "", "", "", "", false
	}
	return s.web.Port, s.web.Admin, s.web.PasswordHash, s.web.CertFile, s.web.KeyFile, s.web.JWTSecret, true
}

// SetWebConfig sets (and persists on the next SaveConfig) the web
// surface's own settings.
func (s *Site) SetWebConfig(port int, admin, passwordHash, certFile, keyFile, jwtSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.web = &webDoc{Port: port, Admin: admin, PasswordHash: passwordHash, CertFile: certFile, KeyFile: keyFile, JWTSecret: jwtSecret}
}

// CheckDocFromRequest builds the internal check document shape from the
// web surface's request fields, for AddCheck/UpdateCheck callers outside
// this package.
func CheckDocFromRequest(
	checkType, subType string,
	options map[string]any,
	trig string,
	threshold, retries, priority int,
	failAction, passAction bool,
	publish string,
	actions, depends, checks []string,
) checkDoc {
	return checkDoc{
		Type:       checkType,
		SubType:    subType,
		Options:    options,
		Trigger:    trig,
		Threshold:  threshold,
		Retries:    retries,
		Priority:   priority,
		FailAction: failAction,
		PassAction: passAction,
		Publish:    publish,
		Actions:    actions,
		Depends:    depends,
		Checks:     checks,
	}
}

// Package scheduler drives probe ticks off the two trigger kinds the
// trigger package knows about, using a single robfig/cron engine for both.
// It is idempotent by probe name (register again to replace a job),
// never re-enters a name while a prior tick is still running, and
// coalesces a backlog of missed firings into at most one make-up run.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watchkeep/watchkeep/pkg/trigger"
)

// Scheduler owns one cron.Cron engine and the bookkeeping needed to
// remove-then-add jobs by name.
type Scheduler struct {
	engine *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running sync.Map // name -> *int32 in-flight flag
}

// New builds a Scheduler. It does not start running until Start is called.
func New() *Scheduler {
	return &Scheduler{
		engine:  cron.New(cron.WithSeconds()),
		entries: map[string]cron.EntryID{},
	}
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() { s.engine.Start() }

// Stop halts firing and waits for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.engine.Stop().Done() }

// Register schedules fn to run on name's trigger, replacing any job
// previously registered under name. A zero-kind trigger (never fires)
// simply removes any existing job and registers nothing.
func (s *Scheduler) Register(name string, trig trigger.Trigger, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.engine.Remove(id)
		delete(s.entries, name)
	}

	if trig.Kind == trigger.KindNone {
		return nil
	}

	spec, err := cronSpecFor(trig)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}

	wrapped := s.wrap(name, trig, fn)
	id, err := s.engine.AddFunc(spec, wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: %s: add %q: %w", name, spec, err)
	}
	s.entries[name] = id
	return nil
}

// Unregister removes name's job, if any.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.engine.Remove(id)
		delete(s.entries, name)
	}
}

// wrap adds reentrance suppression and the start/end/delay window gate
// around fn.
func (s *Scheduler) wrap(name string, trig trigger.Trigger, fn func(ctx context.Context)) func() {
	var delayed bool
	var delayMu sync.Mutex

	return func() {
		flag, _ := s.running.LoadOrStore(name, new(int32))
		box := flag.(*int32)
		if !atomic.CompareAndSwapInt32(box, 0, 1) {
			log.Printf("scheduler: %s still running, coalescing this firing", name)
			return
		}
		defer atomic.StoreInt32(box, 0)

		if !inWindow(trig) {
			return
		}

		delayMu.Lock()
		needDelay := !delayed
		delayed = true
		delayMu.Unlock()
		if needDelay {
			if d := delaySeconds(trig); d > 0 {
				time.Sleep(time.Duration(d) * time.Second)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		fn(ctx)
	}
}

func delaySeconds(trig trigger.Trigger) int {
	switch trig.Kind {
	case trigger.KindInterval:
		return trig.Interval.Delay
	case trigger.KindCron:
		return trig.Cron.Delay
	}
	return 0
}

// inWindow reports whether now falls within the trigger's optional
// start/end time-of-day window. An empty window means unbounded.
func inWindow(trig trigger.Trigger) bool {
	var start, end string
	switch trig.Kind {
	case trigger.KindInterval:
		start, end = trig.Interval.Start, trig.Interval.End
	case trigger.KindCron:
		start, end = trig.Cron.Start, trig.Cron.End
	}
	if start == "" && end == "" {
		return true
	}
	now := time.Now().Format("15:04")
	if start != "" && now < start {
		return false
	}
	if end != "" && now > end {
		return false
	}
	return true
}

// cronSpecFor compiles a Trigger into a robfig/cron v3 spec string.
func cronSpecFor(trig trigger.Trigger) (string, error) {
	switch trig.Kind {
	case trigger.KindInterval:
		total := intervalSeconds(trig.Interval)
		if total <= 0 {
			return "", fmt.Errorf("interval trigger has zero duration")
		}
		return fmt.Sprintf("@every %ds", total), nil
	case trigger.KindCron:
		return trig.Cron.CronSpecString(), nil
	default:
		return "", fmt.Errorf("unsupported trigger kind %q", trig.Kind)
	}
}

func intervalSeconds(s trigger.IntervalSpec) int {
	return s.Seconds + s.Minutes*60 + s.Hours*3600 + s.Days*86400 + s.Weeks*604800
}

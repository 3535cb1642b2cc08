package check

import (
	"context"
	"sort"
	"strings"
	"sync"
)

func init() {
	Register("sequence", newSequenceCheck)
}

// SequenceCheck runs an ordered list of sub-checks as a single probe tick,
// running every sub-check unconditionally and reporting the comma-joined
// names of whichever ones failed. Sub-checks are ordered by priority, then
// by insertion order for ties, matching the original's sortedChecks()
// behaviour.
type SequenceCheck struct {
	*BaseCheck

	mu       sync.Mutex
	names    []string // insertion order
	subs     map[string]Check
	lastRun  []string // names actually attempted on the last tick
}

func newSequenceCheck(cfg Config) (Check, error) {
	s := &SequenceCheck{subs: map[string]Check{}}
	bc := NewBaseCheck(cfg, nil)
	bc.prober = ProberFunc(func(ctx context.Context, _ *BaseCheck) FailState {
		return s.runSequence(ctx)
	})
	s.BaseCheck = bc
	return s, nil
}

// AddCheck appends a sub-check, replacing any existing one of the same
// name in place (matching the original's add_check/replace_check split).
func (s *SequenceCheck) AddCheck(c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[c.Name()]; !exists {
		s.names = append(s.names, c.Name())
	}
	s.subs[c.Name()] = c
}

// DelCheck removes a sub-check by name.
func (s *SequenceCheck) DelCheck(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, name)
	out := s.names[:0]
	for _, n := range s.names {
		if n != name {
			out = append(out, n)
		}
	}
	s.names = out
}

// ReplaceCheck swaps the sub-check registered under name, preserving its
// position in the sequence.
func (s *SequenceCheck) ReplaceCheck(c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[c.Name()]; !exists {
		s.names = append(s.names, c.Name())
	}
	s.subs[c.Name()] = c
}

// ReplaceCheckNamed swaps the sub-check previously registered as oldName
// for newCheck, preserving its position in the sequence. Used by a check
// rename so sequence membership follows the renamed check.
func (s *SequenceCheck) ReplaceCheckNamed(oldName string, newCheck Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, oldName)
	found := false
	for i, n := range s.names {
		if n == oldName {
			s.names[i] = newCheck.Name()
			found = true
			break
		}
	}
	if !found {
		s.names = append(s.names, newCheck.Name())
	}
	s.subs[newCheck.Name()] = newCheck
}

func (s *SequenceCheck) sorted() []Check {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := make([]Check, 0, len(s.names))
	for _, n := range s.names {
		if c, ok := s.subs[n]; ok {
			ordered = append(ordered, c)
		}
	}
	insertionIndex := make(map[string]int, len(s.names))
	for i, n := range s.names {
		insertionIndex[n] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() < ordered[j].Priority()
		}
		return insertionIndex[ordered[i].Name()] < insertionIndex[ordered[j].Name()]
	})
	return ordered
}

func (s *SequenceCheck) runSequence(ctx context.Context) FailState {
	var ran, failing []string
	for _, sub := range s.sorted() {
		ran = append(ran, sub.Name())
		if st := sub.Update(ctx); st.Failing {
			failing = append(failing, sub.Name())
		}
	}
	s.mu.Lock()
	s.lastRun = ran
	s.mu.Unlock()
	if len(failing) == 0 {
		return Pass()
	}
	return Fail(strings.Join(failing, ","))
}

// SubNames returns the sub-check names in their configured insertion
// order, for persistence.
func (s *SequenceCheck) SubNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.names...)
}

// GetSummary joins the names of the sub-checks run on the last tick with
// " -> ", or returns "no checks run" before the first tick. It does not
// mark which of those sub-checks failed.
func (s *SequenceCheck) GetSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lastRun) == 0 {
		return "no checks run"
	}
	return strings.Join(s.lastRun, " -> ")
}

package roomdata

import (
	"sync"
	"time"
)

// IntentEntry is one recorded outcome of an Intent evaluation (spec §3).
type IntentEntry struct {
	Timestamp        time.Time
	Idle             bool
	Willingness      int // 0..5; 0 means untagged/empty
	WillingnessLabel string
	Content          string
}

const intentHistoryCap = 10

// IntentState is the per-target IntentState of spec §3: a capped ring
// buffer of past evaluations plus the sleeping/wake bookkeeping that drives
// Intent's message-arrival-triggered (rather than wall-clock) cadence.
type IntentState struct {
	mu sync.Mutex

	history    []IntentEntry // ring buffer, oldest first, capped at 10
	sleeping   bool
	lastActive time.Time
	lastEval   time.Time
	forceEval  bool
	urgentAtMe bool

	wakeCh chan struct{}
}

func NewIntentState() *IntentState {
	return &IntentState{
		sleeping: true,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Push appends an entry to the capped history ring, dropping the oldest
// when full.
func (s *IntentState) Push(e IntentEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	if len(s.history) > intentHistoryCap {
		s.history = s.history[len(s.history)-intentHistoryCap:]
	}
}

// History returns a copy of the current ring buffer contents, oldest first.
func (s *IntentState) History() []IntentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IntentEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Latest returns the most recent entry, if any.
func (s *IntentState) Latest() (IntentEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return IntentEntry{}, false
	}
	return s.history[len(s.history)-1], true
}

func (s *IntentState) IsSleeping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleeping
}

func (s *IntentState) SetSleeping(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeping = v
}

// MarkActivity records that the buffer changed (including the agent's own
// sends) and wakes Intent if it is sleeping.
func (s *IntentState) MarkActivity(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	wasSleeping := s.sleeping
	s.sleeping = false
	s.mu.Unlock()

	if wasSleeping {
		s.wake()
	}
}

func (s *IntentState) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *IntentState) SetLastEval(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEval = t
}

func (s *IntentState) LastEval() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEval
}

// SetForceEval/ConsumeForceEval implement "force_eval" (set by Reply after a
// successful send) consumed exactly once by the next evaluation.
func (s *IntentState) SetForceEval() {
	s.mu.Lock()
	s.forceEval = true
	s.mu.Unlock()
	s.wake()
}

func (s *IntentState) ConsumeForceEval() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.forceEval
	s.forceEval = false
	return v
}

// SetUrgentAtMe/ConsumeUrgentAtMe implement "urgent_at_me", cleared before
// the urgent evaluation runs so it fires exactly once (spec §4.4).
func (s *IntentState) SetUrgentAtMe() {
	s.mu.Lock()
	s.urgentAtMe = true
	s.mu.Unlock()
	s.wake()
}

func (s *IntentState) ConsumeUrgentAtMe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.urgentAtMe
	s.urgentAtMe = false
	return v
}

// wake interrupts an in-progress interruptible sleep (see Sleep).
func (s *IntentState) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Sleep blocks until d elapses or the state is woken by MarkActivity,
// SetForceEval, or SetUrgentAtMe — whichever comes first. Returns true if
// woken early. This is the "interruptible sleep" of spec §5 that lets
// urgent @me latency approach the Fetcher interval.
func (s *IntentState) Sleep(d time.Duration) (woken bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.wakeCh:
		return true
	case <-timer.C:
		return false
	}
}

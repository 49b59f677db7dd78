package roomdata

import (
	"sync"
	"time"
)

// IntentGate is the per-target latch of spec §3: locked when Reply sends a
// message, unlocked by the next Intent evaluation or a 30 s safety timeout.
type IntentGate struct {
	mu      sync.Mutex
	locked  bool
	lockTS  time.Time
}

// Lock is called by Reply immediately after a successful send.
func (g *IntentGate) Lock(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = true
	g.lockTS = now
}

// Unlock is called unconditionally by Intent at the end of every
// evaluation (spec §4.4 step 6: "Unlock IntentGate unconditionally").
func (g *IntentGate) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
}

// Check reports whether Reply must wait: locked and the safety timeout has
// not yet elapsed. If the timeout has elapsed, this call performs the
// safety-unlock itself and returns false.
func (g *IntentGate) Check(now time.Time, timeout time.Duration) (blocked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.locked {
		return false
	}
	if now.Sub(g.lockTS) >= timeout {
		g.locked = false
		return false
	}
	return true
}

// ReplyWakeFlag is the one-shot flag of spec §3: set by Intent at
// willingness >= 3, consumed and cleared by Reply's first check that sees
// it set.
type ReplyWakeFlag struct {
	mu  sync.Mutex
	set bool
}

func (f *ReplyWakeFlag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = true
}

// ConsumeIfSet atomically reads and clears the flag.
func (f *ReplyWakeFlag) ConsumeIfSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.set
	f.set = false
	return v
}

// Owner names which layer currently holds a ProcessorBusy slot.
type Owner string

const (
	OwnerNone     Owner = ""
	OwnerIntent   Owner = "intent"
	OwnerReply    Owner = "reply"
	OwnerObserver Owner = "observer"
)

// ProcessorBusy is the per-target mutual-exclusion token of spec §3,
// enforcing P5: Intent and Reply (and, per the resolved Open Question,
// Observer) never run LLM calls concurrently within one target.
type ProcessorBusy struct {
	sem chan struct{}

	mu      sync.Mutex
	current Owner
}

func NewProcessorBusy() *ProcessorBusy {
	return &ProcessorBusy{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the slot is free, then marks it held by owner. The
// returned release func must be called exactly once, including on the
// error/cancellation path (spec §5: "the token is always released in a
// finally-style path including on exceptions").
func (p *ProcessorBusy) Acquire(owner Owner) (release func()) {
	p.sem <- struct{}{}
	p.mu.Lock()
	p.current = owner
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.current = OwnerNone
			p.mu.Unlock()
			<-p.sem
		})
	}
}

// TryAcquire attempts a non-blocking acquire, returning ok=false if another
// layer currently holds the slot.
func (p *ProcessorBusy) TryAcquire(owner Owner) (release func(), ok bool) {
	select {
	case p.sem <- struct{}{}:
	default:
		return nil, false
	}
	p.mu.Lock()
	p.current = owner
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.current = OwnerNone
			p.mu.Unlock()
			<-p.sem
		})
	}, true
}

func (p *ProcessorBusy) Current() Owner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

package roomdata

import "sync"

// Kind distinguishes a group chat from a direct one-to-one chat (spec §2).
type Kind string

const (
	KindGroup  Kind = "group"
	KindDirect Kind = "direct"
)

// LurkMode is the per-target behaviour knob of spec §3.
type LurkMode string

const (
	LurkNormal    LurkMode = "normal"
	LurkSemi      LurkMode = "semi-lurk"
	LurkFull      LurkMode = "full-lurk"
)

// Target identifies one watched chat room or direct-message counterpart.
type Target struct {
	ID   string
	Kind Kind
}

// PausedFlag is a per-target bool, not persisted across restarts, that
// makes Observer and Reply skip entirely while true (spec §3).
type PausedFlag struct {
	mu     sync.Mutex
	paused bool
}

func (p *PausedFlag) Set(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = v
}

func (p *PausedFlag) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// LurkState holds the persisted lurk mode for a target.
type LurkState struct {
	mu   sync.Mutex
	mode LurkMode
}

func NewLurkState() *LurkState {
	return &LurkState{mode: LurkNormal}
}

func (l *LurkState) Set(m LurkMode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = m
}

func (l *LurkState) Get() LurkMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode == "" {
		return LurkNormal
	}
	return l.mode
}

// Runtime bundles everything one watched Target owns: the buffer, its three
// watermarks, the consumed set, the sent cache, intent state, and the three
// cross-layer mailboxes. The engine owns a Runtime per target exclusively;
// no subsystem outside the four layer packages is permitted to mutate it
// (spec §3 "Ownership").
type Runtime struct {
	Target Target

	Buffer      *Buffer
	ObserverWM  Watermark
	ReplyWM     Watermark
	IntentWM    Watermark
	Consumed    *ConsumedSet
	Sent        *SentCache
	Intent      *IntentState
	Gate        IntentGate
	ReplyWake   ReplyWakeFlag
	Busy        *ProcessorBusy
	Lurk        *LurkState
	Paused      PausedFlag

	// firstPullDone distinguishes the Fetcher's first-ever successful pull
	// for this target (spec §4.1's "first-seen guard").
	firstPullMu   sync.Mutex
	firstPullDone bool

	DisplayName string
}

// NewRuntime constructs a Runtime for target with the given buffer sizing.
func NewRuntime(t Target, hardCap, seenRebuildMultiplier int) *Runtime {
	return &Runtime{
		Target:   t,
		Buffer:   NewBuffer(hardCap, seenRebuildMultiplier),
		Consumed: NewConsumedSet(),
		Sent:     NewSentCache(),
		Intent:   NewIntentState(),
		Busy:     NewProcessorBusy(),
		Lurk:     NewLurkState(),
	}
}

// ConsumeFirstPull reports whether this is the first-ever successful pull
// for the target, marking it done so subsequent calls return false.
func (r *Runtime) ConsumeFirstPull() (isFirst bool) {
	r.firstPullMu.Lock()
	defer r.firstPullMu.Unlock()
	if r.firstPullDone {
		return false
	}
	r.firstPullDone = true
	return true
}

// Package roomdata implements the per-target data model of spec §3: the
// message buffer, watermarks, consumed-@ set, sent cache, intent state, and
// the small cross-layer mailboxes (IntentGate, ReplyWakeFlag, ProcessorBusy)
// that let Fetcher/Observer/Reply/Intent cooperate without calling each
// other directly (spec §9's "cyclic references between layers" note).
package roomdata

import "time"

// ImageRef is an image attached to a specific Message. Data is either a
// base64 payload or an http(s) URL; resolution to base64 happens only at
// prompt-assembly time (spec §4.5), never here.
type ImageRef struct {
	Data string
	Mime string
}

// Message is immutable once buffered. The consumed-@ handling in promptkit
// does not rewrite Content or clear IsAtMe; it renders a consumed mention
// without its "[@me]" marker instead.
type Message struct {
	MessageID  string
	Timestamp  time.Time
	SenderID   string
	SenderName string
	Content    string
	IsAtMe     bool
	IsSelf     bool
	ImageRefs  []ImageRef
}

// synthLocalID builds the "local_<timestamp>" id spec §3 requires for
// locally cached sends that arrive without a gateway-assigned id.
func synthLocalID(t time.Time) string {
	return "local_" + t.UTC().Format(time.RFC3339Nano)
}

package tools

import (
	"roomkeeper/internal/persona"
	"roomkeeper/internal/roomdata"
	"roomkeeper/internal/toolloop"
)

// Toolset builds the registry each scheduler-layer invocation hands to the
// tool loop. Which document tools are writable is decided here, once, at
// registration time, rather than inside each tool's Execute.
type Toolset struct {
	Store                *persona.Store
	Target               roomdata.Target
	Runtime              *roomdata.Runtime
	Sender               Sender
	Stripper             Stripper
	AgentCanEditStrategy bool
}

// BuildObserver returns the registry for Observer: read/write group rule and
// social memory, reply strategy read-only plus write when enabled, no
// send_message (Observer never sends, per spec §4.2).
func (ts *Toolset) BuildObserver() *toolloop.Registry {
	reg := toolloop.NewRegistry()
	reg.Register(&GroupRuleReadTool{Store: ts.Store, Target: ts.Target})
	reg.Register(&GroupRuleWriteTool{Store: ts.Store, Target: ts.Target})
	reg.Register(&SocialMemoryReadTool{Store: ts.Store})
	reg.Register(&SocialMemoryWriteTool{Store: ts.Store})
	reg.Register(&ReplyStrategyReadTool{Store: ts.Store})
	if ts.AgentCanEditStrategy {
		reg.Register(&ReplyStrategyWriteTool{Store: ts.Store})
	}
	reg.Register(&HistoryQueryTool{Runtime: ts.Runtime})
	reg.Register(&CrossGroupLogQueryTool{Store: ts.Store})
	return reg
}

// BuildReply returns the registry for Reply: read-only documents, the
// reply-strategy write tool only when social.agentCanEditStrategy is set,
// and send_message (Reply is the only layer permitted to speak).
func (ts *Toolset) BuildReply() *toolloop.Registry {
	reg := toolloop.NewRegistry()
	reg.Register(&GroupRuleReadTool{Store: ts.Store, Target: ts.Target})
	reg.Register(&SocialMemoryReadTool{Store: ts.Store})
	reg.Register(&ReplyStrategyReadTool{Store: ts.Store})
	if ts.AgentCanEditStrategy {
		reg.Register(&ReplyStrategyWriteTool{Store: ts.Store})
	}
	reg.Register(&HistoryQueryTool{Runtime: ts.Runtime})
	reg.Register(&CrossGroupLogQueryTool{Store: ts.Store})
	if ts.Sender != nil {
		reg.Register(&SendMessageTool{Sender: ts.Sender, Target: ts.Target, Stripper: ts.Stripper})
	}
	return reg
}

// BuildIntent returns the registry for Intent: read-only document access
// only, no writes and no send_message — Intent only ever produces a
// willingness score and a private "current thought" (spec §4.4).
func (ts *Toolset) BuildIntent() *toolloop.Registry {
	reg := toolloop.NewRegistry()
	reg.Register(&GroupRuleReadTool{Store: ts.Store, Target: ts.Target})
	reg.Register(&SocialMemoryReadTool{Store: ts.Store})
	reg.Register(&HistoryQueryTool{Runtime: ts.Runtime})
	return reg
}

package llmadapter

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

const (
	StopReasonStop   = "stop"
	StopReasonLength = "length"
	StopReasonError  = "error"
)

const (
	BlockTypeText     = "text"
	BlockTypeThinking = "thinking"
	BlockTypeImage    = "image"
)

package tools

import "roomkeeper/internal/llmadapter"

func textBlock(s string) llmadapter.ContentBlock {
	return llmadapter.NewTextBlock(s)
}

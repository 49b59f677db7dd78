package promptkit

import (
	"encoding/base64"
	"strings"

	"roomkeeper/internal/llmadapter"
	"roomkeeper/internal/roomdata"
)

// ResolveImageBlocks converts a message's ImageRefs into llmadapter content
// blocks at prompt-assembly time (spec §4.5: "image URLs are resolved to
// base64 or left as URLs only when the prompt is actually built, never
// earlier") rather than when the message first enters the buffer.
func ResolveImageBlocks(refs []roomdata.ImageRef) []llmadapter.ContentBlock {
	out := make([]llmadapter.ContentBlock, 0, len(refs))
	for _, ref := range refs {
		if ref.Data == "" {
			continue
		}
		if strings.HasPrefix(ref.Data, "http://") || strings.HasPrefix(ref.Data, "https://") {
			out = append(out, llmadapter.NewImageBlockFromURL(ref.Data, ref.Mime))
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(ref.Data)
		if err != nil {
			continue
		}
		out = append(out, llmadapter.NewImageBlockFromBase64(raw, ref.Mime))
	}
	return out
}

package chat

import (
	"strings"

	"github.com/yungbote/vidrag-backend/internal/modules/retrieval"
)

const groundingRules = `You answer questions about a user's videos using only the transcript passages in CONTEXT.

Rules:
- Use only facts stated in CONTEXT. Do not rely on prior knowledge.
- After every claim taken from a passage, cite it immediately as [video_id: <ID>, time: <SECONDS>] using that passage's video_id and time.
- When several passages support one claim, chain the citations separated by a single space.
- Never invent a video_id or a time that does not appear in CONTEXT.
- If CONTEXT says no relevant passages were found, say the selected videos do not cover the question and do not answer from memory.`

const chatStyle = `Answer conversationally and concisely.`

const composeStyle = `Write a structured long-form piece (headings and paragraphs) that synthesizes the passages across videos. Keep every citation next to the claim it supports.`

// SystemPrompt builds the grounded instructions for one turn.
func SystemPrompt(mode retrieval.Mode, ctx AssembledContext) string {
	style := chatStyle
	if mode == retrieval.ModeCompose {
		style = composeStyle
	}
	var b strings.Builder
	b.WriteString(groundingRules)
	b.WriteString("\n\n")
	b.WriteString(style)
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(ctx.Text)
	return b.String()
}

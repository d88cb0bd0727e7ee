package pipeline

import (
	"strings"

	"rubberduck/session"
)

// ConstructPrompt deterministically assembles the model prompt: the fixed
// persona block, then every history turn in the order given, then the new
// input with an open assistant cue. It renders whatever history it receives;
// capping history is the session store's job.
func ConstructPrompt(currentInput string, history []session.Turn) string {
	var b strings.Builder
	b.WriteString(PERSONA_PROMPT)
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			b.WriteString("User: ")
			b.WriteString(turn.Input)
			b.WriteString("\nAssistant: ")
			b.WriteString(turn.Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(currentInput)
	b.WriteString("\nAssistant:")
	return b.String()
}

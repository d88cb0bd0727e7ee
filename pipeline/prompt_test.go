package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubberduck/session"
)

func TestConstructPromptEmptyHistory(t *testing.T) {
	t.Parallel()

	prompt := ConstructPrompt("my loop never terminates", nil)

	assert.True(t, strings.HasPrefix(prompt, PERSONA_PROMPT), "persona block must come first")
	assert.True(t, strings.HasSuffix(prompt, "User: my loop never terminates\nAssistant:"),
		"prompt must end with the new input and an open assistant cue")
	assert.NotContains(t, prompt, "Conversation so far")
}

func TestConstructPromptRendersEveryTurnInOrder(t *testing.T) {
	t.Parallel()

	history := make([]session.Turn, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, session.Turn{
			Input:  fmt.Sprintf("question %d", i),
			Output: fmt.Sprintf("answer %d", i),
		})
	}

	prompt := ConstructPrompt("new input", history)

	require.True(t, strings.HasPrefix(prompt, PERSONA_PROMPT))
	cursor := len(PERSONA_PROMPT)
	for i := 0; i < 20; i++ {
		userIdx := strings.Index(prompt[cursor:], fmt.Sprintf("User: question %d\n", i))
		require.GreaterOrEqual(t, userIdx, 0, "turn %d input missing or out of order", i)
		cursor += userIdx
		asstIdx := strings.Index(prompt[cursor:], fmt.Sprintf("Assistant: answer %d\n", i))
		require.GreaterOrEqual(t, asstIdx, 0, "turn %d output missing or out of order", i)
		cursor += asstIdx
	}
	newIdx := strings.Index(prompt[cursor:], "User: new input\nAssistant:")
	require.GreaterOrEqual(t, newIdx, 0, "new input must follow all history")
	assert.True(t, strings.HasSuffix(prompt, "Assistant:"))
}

func TestConstructPromptIsDeterministic(t *testing.T) {
	t.Parallel()

	history := []session.Turn{{Input: "a", Output: "b", Timestamp: 1}}
	assert.Equal(t, ConstructPrompt("x", history), ConstructPrompt("x", history))
}

func TestConstructPromptDoesNotTruncate(t *testing.T) {
	t.Parallel()

	// The assembler renders whatever it is given; the cap belongs to the
	// session store.
	history := make([]session.Turn, 30)
	for i := range history {
		history[i] = session.Turn{Input: fmt.Sprintf("q%d", i), Output: fmt.Sprintf("a%d", i)}
	}

	prompt := ConstructPrompt("x", history)
	for i := range history {
		assert.Contains(t, prompt, fmt.Sprintf("User: q%d\n", i))
	}
}

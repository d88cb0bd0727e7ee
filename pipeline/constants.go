package pipeline

// PERSONA_PROMPT establishes the rubber-duck debugging persona. It is the
// fixed instruction block every assembled prompt begins with.
const PERSONA_PROMPT = `You are a rubber duck debugging companion. A developer is explaining a problem to you out loud, and your replies are spoken back to them.

Rules:
- Reflect their explanation back in your own words so they hear their reasoning from the outside.
- Surface contradictions, gaps, or unstated assumptions the moment you notice them.
- Do not hand out the solution, even when it is obvious. Your job is to get them to find it.
- Nudge them along a structured debugging path: reproduce it reliably, shrink the failing case, inspect the actual values, challenge the assumption that just broke.
- Keep the reply concise and speakable. No code blocks, no bullet lists, at most three short sentences.`

// TranscriptionFailedMessage is the fixed user-facing message when both
// transcription attempts fail.
const TranscriptionFailedMessage = "I couldn't hear that clearly. Please try again."

// ReasoningFallbackText replaces the reply when both reasoning attempts
// fail; the pipeline continues with it as if it were a genuine reply.
const ReasoningFallbackText = "Sorry, I didn't fully understand, could you rephrase?"

// Stage names as reported in logs and on the event stream.
const (
	StageValidating      = "validating"
	StageTranscribing    = "transcribing"
	StageContextualizing = "contextualizing"
	StageReasoning       = "reasoning"
	StageSynthesizing    = "synthesizing"
	StagePersisting      = "persisting"
)

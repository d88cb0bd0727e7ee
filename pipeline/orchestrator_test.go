package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubberduck/core"
	"rubberduck/protocol"
	"rubberduck/session"
)

type transcribeFunc func(ctx context.Context, audio []byte) (string, error)

func (f transcribeFunc) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}

type completeFunc func(ctx context.Context, prompt string) (string, error)

func (f completeFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type synthFunc func(ctx context.Context, text string) ([]byte, error)

func (f synthFunc) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

func (f synthFunc) MimeType() string { return "audio/mpeg" }

func fixedTranscriber(text string) Transcriber {
	return transcribeFunc(func(context.Context, []byte) (string, error) { return text, nil })
}

func fixedReasoner(text string) Reasoner {
	return completeFunc(func(context.Context, string) (string, error) { return text, nil })
}

func fixedSynthesizer(audio []byte) Synthesizer {
	return synthFunc(func(context.Context, string) ([]byte, error) { return audio, nil })
}

func failingTranscriber(calls *int32) Transcriber {
	return transcribeFunc(func(context.Context, []byte) (string, error) {
		atomic.AddInt32(calls, 1)
		return "", errors.New("stt down")
	})
}

func testConfig() Config {
	return Config{Call: core.CallConfig{
		RetryDelay:     time.Millisecond,
		AttemptTimeout: 200 * time.Millisecond,
	}}
}

func newStore(t *testing.T) *session.MemoryStore {
	t.Helper()
	store := session.NewMemoryStore(session.DefaultConfig(), nil)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	orch := NewOrchestrator(
		fixedTranscriber("my loop never terminates"),
		fixedReasoner("Let's trace the loop condition — what value does it check each iteration?"),
		fixedSynthesizer([]byte{0xFF, 0xFB, 0x01}),
		store, testConfig(), nil)

	result, err := orch.Run(context.Background(), "u1", []byte("fake-audio"))

	require.NoError(t, err)
	assert.Equal(t, "Let's trace the loop condition — what value does it check each iteration?", result.Text)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x01}, result.Audio)
	assert.Equal(t, "audio/mpeg", result.AudioMime)
	assert.False(t, result.Fallback)

	sess, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "my loop never terminates", sess.Turns[0].Input)
	assert.Equal(t, result.Text, sess.Turns[0].Output)
}

func TestRunValidationNeverInvokesProviders(t *testing.T) {
	t.Parallel()

	var remoteCalls int32
	count := func() {
		atomic.AddInt32(&remoteCalls, 1)
	}
	orch := NewOrchestrator(
		transcribeFunc(func(context.Context, []byte) (string, error) { count(); return "", nil }),
		completeFunc(func(context.Context, string) (string, error) { count(); return "", nil }),
		synthFunc(func(context.Context, string) ([]byte, error) { count(); return nil, nil }),
		newStore(t), testConfig(), nil)

	tests := []struct {
		name   string
		userID string
		audio  []byte
	}{
		{"missing audio", "u1", nil},
		{"missing userId", "", []byte("audio")},
		{"missing both", "", nil},
	}
	for _, tc := range tests {
		_, err := orch.Run(context.Background(), tc.userID, tc.audio)
		require.Error(t, err, tc.name)
		assert.Equal(t, core.ErrKindValidation, core.KindOf(err), tc.name)
		assert.Equal(t, "Both audio and userId are required", core.MessageOf(err), tc.name)
	}
	assert.EqualValues(t, 0, remoteCalls, "no remote call may run for an invalid request")
}

func TestRunTranscriptionFailureAbortsAndPreservesSession(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "u1", "earlier question", "earlier answer"))
	before, err := store.Get(ctx, "u1")
	require.NoError(t, err)

	var sttCalls int32
	orch := NewOrchestrator(
		failingTranscriber(&sttCalls),
		fixedReasoner("unused"),
		fixedSynthesizer(nil),
		store, testConfig(), nil)

	_, err = orch.Run(ctx, "u1", []byte("audio"))

	require.Error(t, err)
	assert.Equal(t, core.ErrKindTranscription, core.KindOf(err))
	assert.Equal(t, TranscriptionFailedMessage, core.MessageOf(err))
	assert.EqualValues(t, 2, sttCalls, "terminal failure only after both attempts")

	after, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.Turns, after.Turns, "a failed run must not touch the conversation")
}

func TestRunTranscriptionTimeoutMapsToTimeoutKind(t *testing.T) {
	t.Parallel()

	cfg := Config{Call: core.CallConfig{RetryDelay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond}}
	orch := NewOrchestrator(
		transcribeFunc(func(ctx context.Context, _ []byte) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		fixedReasoner("unused"),
		fixedSynthesizer(nil),
		newStore(t), cfg, nil)

	_, err := orch.Run(context.Background(), "u1", []byte("audio"))

	require.Error(t, err)
	assert.Equal(t, core.ErrKindTimeout, core.KindOf(err))
}

func TestRunReasoningFailureIsMaskedByFallback(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	var llmCalls int32
	orch := NewOrchestrator(
		fixedTranscriber("the cache returns stale data"),
		completeFunc(func(context.Context, string) (string, error) {
			atomic.AddInt32(&llmCalls, 1)
			return "", errors.New("model overloaded")
		}),
		fixedSynthesizer([]byte{0x01}),
		store, testConfig(), nil)

	result, err := orch.Run(context.Background(), "u1", []byte("audio"))

	require.NoError(t, err, "reasoning failure must not abort the request")
	assert.Equal(t, ReasoningFallbackText, result.Text)
	assert.True(t, result.Fallback, "masked failure must be distinguishable internally")
	assert.EqualValues(t, 2, llmCalls)

	// The fallback is persisted as if it were a genuine reply.
	sess, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "the cache returns stale data", sess.Turns[0].Input)
	assert.Equal(t, ReasoningFallbackText, sess.Turns[0].Output)
}

func TestRunSynthesisFailureIsMasked(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	var ttsCalls int32
	orch := NewOrchestrator(
		fixedTranscriber("input"),
		fixedReasoner("reply"),
		synthFunc(func(context.Context, string) ([]byte, error) {
			atomic.AddInt32(&ttsCalls, 1)
			return nil, errors.New("tts down")
		}),
		store, testConfig(), nil)

	result, err := orch.Run(context.Background(), "u1", []byte("audio"))

	require.NoError(t, err, "synthesis failure never aborts the request")
	assert.Equal(t, "reply", result.Text)
	assert.Empty(t, result.Audio)
	assert.EqualValues(t, 2, ttsCalls)

	sess, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 1, "the turn is still persisted without audio")
}

func TestRunSynthesizesTheFallbackWhenReasoningFails(t *testing.T) {
	t.Parallel()

	var spoken string
	orch := NewOrchestrator(
		fixedTranscriber("input"),
		completeFunc(func(context.Context, string) (string, error) { return "", errors.New("down") }),
		synthFunc(func(_ context.Context, text string) ([]byte, error) {
			spoken = text
			return []byte{0x01}, nil
		}),
		newStore(t), testConfig(), nil)

	result, err := orch.Run(context.Background(), "u1", []byte("audio"))

	require.NoError(t, err)
	assert.Equal(t, ReasoningFallbackText, spoken, "the pipeline continues with the fallback as the reply")
	assert.NotEmpty(t, result.Audio)
}

func TestRunPromptCarriesHistoryAndTranscript(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "u1", "first question", "first answer"))

	var seenPrompt string
	orch := NewOrchestrator(
		fixedTranscriber("second question"),
		completeFunc(func(_ context.Context, prompt string) (string, error) {
			seenPrompt = prompt
			return "second answer", nil
		}),
		fixedSynthesizer(nil),
		store, testConfig(), nil)

	_, err := orch.Run(ctx, "u1", []byte("audio"))

	require.NoError(t, err)
	assert.Contains(t, seenPrompt, PERSONA_PROMPT)
	assert.Contains(t, seenPrompt, "User: first question")
	assert.Contains(t, seenPrompt, "Assistant: first answer")
	assert.Contains(t, seenPrompt, "User: second question\nAssistant:")
}

// failingAppendStore wraps a working store but refuses writes.
type failingAppendStore struct {
	session.Store
}

func (f *failingAppendStore) Append(context.Context, string, string, string) error {
	return errors.New("backend unavailable")
}

func TestRunPersistenceFailureAborts(t *testing.T) {
	t.Parallel()

	store := &failingAppendStore{Store: newStore(t)}
	orch := NewOrchestrator(
		fixedTranscriber("input"),
		fixedReasoner("reply"),
		fixedSynthesizer([]byte{0x01}),
		store, testConfig(), nil)

	_, err := orch.Run(context.Background(), "u1", []byte("audio"))

	require.Error(t, err)
	assert.Equal(t, core.ErrKindPersistence, core.KindOf(err))
}

func TestRunSessionReadFailureFailsOpen(t *testing.T) {
	t.Parallel()

	store := &failingGetStore{Store: newStore(t)}
	var seenPrompt string
	orch := NewOrchestrator(
		fixedTranscriber("input"),
		completeFunc(func(_ context.Context, prompt string) (string, error) {
			seenPrompt = prompt
			return "reply", nil
		}),
		fixedSynthesizer(nil),
		store, testConfig(), nil)

	result, err := orch.Run(context.Background(), "u1", []byte("audio"))

	require.NoError(t, err, "a context read failure must not abort the run")
	assert.Equal(t, "reply", result.Text)
	assert.Contains(t, seenPrompt, "User: input\nAssistant:")
}

type failingGetStore struct {
	session.Store
}

func (f *failingGetStore) Get(context.Context, string) (*session.Session, error) {
	return nil, errors.New("backend unavailable")
}

type capturePublisher struct {
	events []protocol.StageEvent
}

func (p *capturePublisher) Publish(ev protocol.StageEvent) {
	p.events = append(p.events, ev)
}

func TestRunPublishesStageEventsInOrder(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	orch := NewOrchestrator(
		fixedTranscriber("input"),
		fixedReasoner("reply"),
		fixedSynthesizer([]byte{0x01}),
		newStore(t), testConfig(), nil).WithPublisher(pub)

	_, err := orch.Run(context.Background(), "u1", []byte("audio"))
	require.NoError(t, err)

	stages := make([]string, 0, len(pub.events))
	for _, ev := range pub.events {
		stages = append(stages, ev.Stage)
		assert.Equal(t, "u1", ev.UserID)
		assert.NotEmpty(t, ev.RequestID)
	}
	assert.Equal(t, []string{
		StageValidating, StageTranscribing, StageContextualizing,
		StageReasoning, StageSynthesizing, StagePersisting,
	}, stages)
}

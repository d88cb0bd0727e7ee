// Package pipeline sequences the three-stage voice pipeline — transcription,
// reasoning, synthesis — around the session store, applying the uniform
// retry policy and the per-stage failure semantics.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rubberduck/core"
	"rubberduck/protocol"
	"rubberduck/session"
)

// Transcriber converts a complete audio utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Reasoner generates the assistant reply for an assembled prompt.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Synthesizer renders reply text to binary audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	MimeType() string
}

// EventPublisher receives stage events for observability fan-out. Publish
// must not block.
type EventPublisher interface {
	Publish(ev protocol.StageEvent)
}

// Reply is the reasoning outcome. Fallback distinguishes a masked reasoning
// failure from genuine model output without changing the external contract.
type Reply struct {
	Text     string
	Fallback bool
}

// Result is a completed pipeline run.
type Result struct {
	Text      string
	Audio     []byte // nil when synthesis was unavailable or failed
	AudioMime string
	Fallback  bool
}

// Config tunes the orchestrator's remote-call policy.
type Config struct {
	Call core.CallConfig
}

// DefaultConfig returns the standard orchestrator policy.
func DefaultConfig() Config {
	return Config{Call: core.DefaultCallConfig()}
}

// Orchestrator runs one request through the pipeline:
// validate → transcribe → read context → reason → synthesize (best-effort)
// → persist → respond. Steps execute strictly in order.
type Orchestrator struct {
	stt       Transcriber
	llm       Reasoner
	tts       Synthesizer
	store     session.Store
	config    Config
	logger    *core.Logger
	publisher EventPublisher
}

// NewOrchestrator wires the three provider services and the session store.
// Chain WithPublisher to stream stage events.
func NewOrchestrator(stt Transcriber, llm Reasoner, tts Synthesizer, store session.Store, config Config, logger *core.Logger) *Orchestrator {
	if config.Call.RetryDelay <= 0 {
		config.Call.RetryDelay = core.DefaultCallConfig().RetryDelay
	}
	if config.Call.AttemptTimeout <= 0 {
		config.Call.AttemptTimeout = core.DefaultCallConfig().AttemptTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Orchestrator{
		stt:    stt,
		llm:    llm,
		tts:    tts,
		store:  store,
		config: config,
		logger: logger,
	}
}

// WithPublisher registers an event publisher. Returns the orchestrator to
// allow chaining.
func (o *Orchestrator) WithPublisher(p EventPublisher) *Orchestrator {
	o.publisher = p
	return o
}

// Run processes one request. Transcription and persistence failures abort
// the run; a reasoning failure is absorbed into the fixed fallback text; a
// synthesis failure only costs the audio. A failed run never mutates the
// session's conversation.
func (o *Orchestrator) Run(ctx context.Context, userID string, audio []byte) (*Result, error) {
	requestID := uuid.New().String()
	logger := o.logger.With(map[string]any{"requestId": requestID, "userId": userID})
	run := &runObserver{orch: o, requestID: requestID, userID: userID, logger: logger}

	// Validating
	if userID == "" || len(audio) == 0 {
		run.fail(StageValidating, time.Now(), core.ErrKindValidation)
		return nil, core.NewPipelineError(core.ErrKindValidation, "Both audio and userId are required", nil)
	}
	run.ok(StageValidating, time.Now())

	// Transcribing
	start := time.Now()
	transcript, err := core.CallWithRetry(ctx, o.config.Call, "transcription", logger,
		func(ctx context.Context) (string, error) {
			return o.stt.Transcribe(ctx, audio)
		})
	if err != nil {
		run.fail(StageTranscribing, start, core.ErrKindTranscription)
		return nil, core.NewPipelineError(core.ErrKindTranscription, TranscriptionFailedMessage, err)
	}
	run.ok(StageTranscribing, start)
	logger.With(map[string]any{"transcript": transcript}).Debug("transcription complete")

	// Contextualizing. A read failure from a fallible backend fails open to
	// an empty history rather than aborting the run.
	start = time.Now()
	var history []session.Turn
	if sess, err := o.store.Get(ctx, userID); err != nil {
		logger.With(map[string]any{"error": err}).Warn("session read failed, continuing without history")
	} else {
		history = sess.Turns
	}
	run.ok(StageContextualizing, start)

	// Reasoning
	start = time.Now()
	prompt := ConstructPrompt(transcript, history)
	reply := Reply{}
	text, err := core.CallWithRetry(ctx, o.config.Call, "reasoning", logger,
		func(ctx context.Context) (string, error) {
			return o.llm.Complete(ctx, prompt)
		})
	if err != nil {
		logger.With(map[string]any{"error": err}).Warn("reasoning failed, using fallback reply")
		reply = Reply{Text: ReasoningFallbackText, Fallback: true}
		run.fallback(StageReasoning, start)
	} else {
		reply = Reply{Text: text}
		run.ok(StageReasoning, start)
	}

	// Synthesizing (best-effort): any failure means no audio, never an error.
	start = time.Now()
	var audioOut []byte
	audioOut, err = core.CallWithRetry(ctx, o.config.Call, "synthesis", logger,
		func(ctx context.Context) ([]byte, error) {
			return o.tts.Synthesize(ctx, reply.Text)
		})
	if err != nil {
		logger.With(map[string]any{"error": err}).Warn("synthesis failed, responding without audio")
		audioOut = nil
		run.fail(StageSynthesizing, start, core.ErrKindSynthesis)
	} else {
		run.ok(StageSynthesizing, start)
	}

	// Persisting: exactly one turn per completed run.
	start = time.Now()
	if err := o.store.Append(ctx, userID, transcript, reply.Text); err != nil {
		run.fail(StagePersisting, start, core.ErrKindPersistence)
		return nil, core.NewPipelineError(core.ErrKindPersistence, "Failed to save the conversation turn", err)
	}
	run.ok(StagePersisting, start)

	return &Result{
		Text:      reply.Text,
		Audio:     audioOut,
		AudioMime: o.tts.MimeType(),
		Fallback:  reply.Fallback,
	}, nil
}

// runObserver reports per-stage timing to the log and the event stream.
type runObserver struct {
	orch      *Orchestrator
	requestID string
	userID    string
	logger    *core.Logger
}

func (r *runObserver) ok(stage string, start time.Time) {
	r.emit(stage, start, "", false)
}

func (r *runObserver) fail(stage string, start time.Time, kind core.ErrorKind) {
	r.emit(stage, start, string(kind), false)
}

func (r *runObserver) fallback(stage string, start time.Time) {
	r.emit(stage, start, string(core.ErrKindReasoning), true)
}

func (r *runObserver) emit(stage string, start time.Time, errKind string, fallback bool) {
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	attrs := map[string]any{"stage": stage, "durationMs": durationMs}
	if errKind != "" {
		attrs["errorKind"] = errKind
	}
	r.logger.With(attrs).Debug("pipeline stage finished")

	if r.orch.publisher == nil {
		return
	}
	r.orch.publisher.Publish(protocol.StageEvent{
		RequestID:  r.requestID,
		UserID:     r.userID,
		Stage:      stage,
		DurationMs: durationMs,
		Error:      errKind,
		Fallback:   fallback,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

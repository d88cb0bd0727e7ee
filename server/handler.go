package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"rubberduck/core"
	"rubberduck/pipeline"
)

// PipelineRunner is the orchestrator surface the transport depends on.
type PipelineRunner interface {
	Run(ctx context.Context, userID string, audio []byte) (*pipeline.Result, error)
}

// voiceRequest is the inbound body of POST /debug/voice.
type voiceRequest struct {
	Audio  string `json:"audio"`
	UserID string `json:"userId"`
}

// voiceResponse is the success contract: always exactly these two fields.
// AudioURL is an empty string when synthesis was unavailable or failed.
type voiceResponse struct {
	TextResponse string `json:"textResponse"`
	AudioURL     string `json:"audioUrl"`
}

// errorResponse is the failure contract: always exactly these three fields.
type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

type voiceHandler struct {
	runner PipelineRunner
	logger *core.Logger
}

func (h *voiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, core.NewPipelineError(core.ErrKindValidation,
			"Both audio and userId are required", err))
		return
	}

	var req voiceRequest
	if err := sonic.Unmarshal(body, &req); err != nil || req.Audio == "" || req.UserID == "" {
		h.writeError(w, core.NewPipelineError(core.ErrKindValidation,
			"Both audio and userId are required", err))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		h.writeError(w, core.NewPipelineError(core.ErrKindValidation,
			"Field audio must be base64-encoded", err))
		return
	}

	// A client disconnect must not interrupt the in-flight remote calls;
	// each attempt is bounded by its own timeout instead.
	result, err := h.runner.Run(context.WithoutCancel(r.Context()), req.UserID, audio)
	if err != nil {
		h.writeError(w, err)
		return
	}

	audioURL := ""
	if len(result.Audio) > 0 {
		audioURL = dataURL(result.AudioMime, result.Audio)
	}
	h.writeJSON(w, http.StatusOK, voiceResponse{
		TextResponse: result.Text,
		AudioURL:     audioURL,
	})
}

// writeError is the single exit point for failures: every internal outcome
// maps to one well-formed error body.
func (h *voiceHandler) writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	status := kind.StatusCode()
	if status >= http.StatusInternalServerError {
		h.logger.With(map[string]any{"error": err}).Error("request failed")
	}
	h.writeJSON(w, status, errorResponse{
		Error:      string(kind),
		Message:    core.MessageOf(err),
		StatusCode: status,
	})
}

func (h *voiceHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		// Both contract shapes are plain structs; this cannot happen at runtime.
		h.logger.With(map[string]any{"error": err}).Error("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// dataURL inlines an audio payload as a self-contained data reference.
func dataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

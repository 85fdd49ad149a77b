package httpapi

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"inferd/pkg/types"
)

// sentinel for Ollama analytics fields the engine did not report.
const unreported = -1

// ollamaTags lists file-backed models in Ollama's tag shape. API-backed
// entries are excluded: Ollama's ecosystem has no notion of a remote
// provider, and clients choke on entries without a digest.
func (s *server) ollamaTags(w http.ResponseWriter, r *http.Request) {
	out := types.OllamaModelsResponse{Models: []types.OllamaModel{}}
	for _, m := range s.catalog.Models() {
		if m.Source != types.SourceFile {
			continue
		}
		out.Models = append(out.Models, types.OllamaModel{
			Model:      m.ID,
			ModifiedAt: m.ModifiedAt.Format(time.RFC3339),
			Size:       m.SizeBytes,
			Digest:     m.Digest,
			Details:    ollamaDetails(m),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *server) ollamaShow(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeOllamaError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req types.OllamaShowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeOllamaError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeOllamaError(w, http.StatusBadRequest, "name is required")
		return
	}
	m, ok := s.catalog.Find(req.Name)
	if !ok {
		writeOllamaError(w, http.StatusNotFound, "model '"+req.Name+"' not found")
		return
	}
	resp := types.OllamaShowResponse{
		Details:    ollamaDetails(m),
		ModelInfo:  map[string]any{"general.file_type": "gguf", "general.size": m.SizeBytes},
		ModifiedAt: m.ModifiedAt.Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func ollamaDetails(m types.Model) types.OllamaModelDetails {
	d := types.OllamaModelDetails{Format: "gguf", Family: m.Family}
	if m.Family != "" {
		d.Families = []string{m.Family}
	}
	return d
}

// ollamaChat translates an Ollama chat request to the native shape,
// forwards it, and translates the response back. Streaming defaults to
// true, matching Ollama's own behavior.
func (s *server) ollamaChat(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeOllamaError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req types.OllamaChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeOllamaError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" {
		writeOllamaError(w, http.StatusBadRequest, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		writeOllamaError(w, http.StatusBadRequest, "messages is required")
		return
	}
	stream := req.Stream == nil || *req.Stream

	native, err := json.Marshal(toNativeChat(req, stream))
	if err != nil {
		writeOllamaError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}
	resp, err := s.gw.ChatCompletions(r.Context(), native)
	if err != nil {
		status, _ := proxyErrorStatus(err)
		writeOllamaError(w, status, err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		writeOllamaError(w, resp.StatusCode, upstreamErrorMessage(resp.Body))
		return
	}
	if stream {
		s.relayOllamaStream(w, req.Model, resp.Body)
		return
	}
	var nativeResp types.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&nativeResp); err != nil {
		writeOllamaError(w, http.StatusInternalServerError, "failed to decode upstream response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toOllamaResponse(req.Model, nativeResp))
}

// toNativeChat maps the Ollama request onto a native chat-completions
// body. Unset options fall back to engine defaults rather than erroring.
func toNativeChat(req types.OllamaChatRequest, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
	}
	native := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   stream,
	}
	if o := req.Options; o != nil {
		if o.NumPredict != nil {
			native["max_completion_tokens"] = *o.NumPredict
		}
		if o.Temperature != nil {
			native["temperature"] = *o.Temperature
		}
		if o.TopP != nil {
			native["top_p"] = *o.TopP
		}
		if o.Seed != nil {
			native["seed"] = *o.Seed
		}
		if o.PresencePenalty != nil {
			native["presence_penalty"] = *o.PresencePenalty
		}
		if o.FrequencyPenalty != nil {
			native["frequency_penalty"] = *o.FrequencyPenalty
		}
		if len(o.Stop) > 0 {
			native["stop"] = o.Stop
		}
	}
	return native
}

// toOllamaResponse converts a native non-streaming response. Token counts
// come from usage when the engine reported it; everything else carries the
// -1 sentinel rather than fabricated numbers.
func toOllamaResponse(model string, resp types.ChatCompletionResponse) types.OllamaChatResponse {
	out := types.OllamaChatResponse{
		Model:              model,
		CreatedAt:          time.Now().UTC().Format(time.RFC3339),
		Message:            types.OllamaMessage{Role: "assistant"},
		Done:               true,
		TotalDuration:      unreported,
		LoadDuration:       unreported,
		PromptEvalCount:    unreported,
		PromptEvalDuration: unreported,
		EvalCount:          unreported,
		EvalDuration:       unreported,
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Message = types.OllamaMessage{Role: choice.Message.Role, Content: choice.Message.Content}
		out.DoneReason = choice.FinishReason
	}
	if resp.Usage != nil {
		out.PromptEvalCount = resp.Usage.PromptTokens
		out.EvalCount = resp.Usage.CompletionTokens
	}
	return out
}

// relayOllamaStream re-emits the native SSE stream chunk-by-chunk in
// Ollama's shape. Each native data: line becomes an Ollama data: line;
// the chunk carrying a finish reason becomes the final done message and
// the native [DONE] terminator is swallowed.
func (s *server) relayOllamaStream(w http.ResponseWriter, model string, body io.Reader) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	emit := func(v any) bool {
		line, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("data: " + string(line) + "\n\n")); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	done := false
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk types.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.log.Warn().Str("payload", payload).Msg("undecodable stream chunk skipped")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			final := types.OllamaChatResponse{
				Model:              model,
				CreatedAt:          time.Now().UTC().Format(time.RFC3339),
				Message:            types.OllamaMessage{Role: "assistant", Content: choice.Delta.Content},
				DoneReason:         choice.FinishReason,
				Done:               true,
				TotalDuration:      unreported,
				LoadDuration:       unreported,
				PromptEvalCount:    unreported,
				PromptEvalDuration: unreported,
				EvalCount:          unreported,
				EvalDuration:       unreported,
			}
			if !emit(final) {
				return
			}
			done = true
			continue
		}
		role := choice.Delta.Role
		if role == "" {
			role = "assistant"
		}
		inc := types.OllamaChatStreamChunk{
			Model:     model,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Message:   types.OllamaMessage{Role: role, Content: choice.Delta.Content},
		}
		if !emit(inc) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn().Err(err).Msg("upstream stream read failed")
	}
	if !done {
		// Upstream ended without a finish chunk; close the Ollama stream
		// anyway so clients do not hang.
		emit(types.OllamaChatResponse{
			Model:              model,
			CreatedAt:          time.Now().UTC().Format(time.RFC3339),
			Message:            types.OllamaMessage{Role: "assistant"},
			DoneReason:         "stop",
			Done:               true,
			TotalDuration:      unreported,
			LoadDuration:       unreported,
			PromptEvalCount:    unreported,
			PromptEvalDuration: unreported,
			EvalCount:          unreported,
			EvalDuration:       unreported,
		})
	}
}

// upstreamErrorMessage extracts a usable message from an upstream error
// body, falling back to the raw text.
func upstreamErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 8192))
	if err != nil || len(raw) == 0 {
		return "upstream error"
	}
	var structured struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Error.Message != "" {
		return structured.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"inferd/pkg/types"
)

// readBody drains a size-capped request body.
func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	return io.ReadAll(r.Body)
}

// chatCompletions validates the body structurally and forwards the raw
// bytes, so vendor-specific fields survive untouched. Checks: model is a
// string, messages is an array, stream (when present) is a boolean.
// Everything beyond that is the engine's problem.
func (s *server) chatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "failed to read request body")
		return
	}
	if msg := validateChatBody(body); msg != "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, msg)
		return
	}
	resp, err := s.gw.ChatCompletions(r.Context(), body)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	relayResponse(w, resp)
}

// validateChatBody runs the structural checks on an untyped decode.
// Returns an empty string when the body passes.
func validateChatBody(body []byte) string {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var req map[string]any
	if err := dec.Decode(&req); err != nil {
		return "request body is not valid JSON"
	}
	model, ok := req["model"]
	if !ok {
		return "model field is required"
	}
	if _, ok := model.(string); !ok {
		return "model field must be a string"
	}
	messages, ok := req["messages"]
	if !ok {
		return "messages field is required"
	}
	if _, ok := messages.([]any); !ok {
		return "messages field must be an array"
	}
	if stream, ok := req["stream"]; ok {
		if _, ok := stream.(bool); !ok {
			return "stream field must be a boolean"
		}
	}
	return ""
}

func (s *server) embeddings(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "failed to read request body")
		return
	}
	var req types.EmbeddingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "model field is required")
		return
	}
	if req.Input == nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "input field is required")
		return
	}
	resp, err := s.gw.Embeddings(r.Context(), body)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	relayResponse(w, resp)
}

func (s *server) tokenize(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "failed to read request body")
		return
	}
	var req types.TokenizeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "request body is not valid JSON")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "content field is required")
		return
	}
	resp, err := s.gw.Tokenize(r.Context(), body)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	relayResponse(w, resp)
}

func (s *server) detokenize(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "failed to read request body")
		return
	}
	var req types.DetokenizeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "request body is not valid JSON")
		return
	}
	if req.Tokens == nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "tokens field is required")
		return
	}
	resp, err := s.gw.Detokenize(r.Context(), body)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	relayResponse(w, resp)
}

func (s *server) listModels(w http.ResponseWriter, r *http.Request) {
	models := s.catalog.Models()
	list := types.OpenAIModelList{Object: "list", Data: make([]types.OpenAIModel, 0, len(models))}
	for _, m := range models {
		created := m.ModifiedAt.Unix()
		if m.ModifiedAt.IsZero() {
			created = time.Now().Unix()
		}
		list.Data = append(list.Data, types.OpenAIModel{
			ID:      m.ID,
			Object:  "model",
			Created: created,
			OwnedBy: m.Source,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// relayResponse streams the upstream response to the client verbatim:
// status, headers, and body, flushing as bytes arrive so streaming
// responses never accumulate in gateway memory.
func relayResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

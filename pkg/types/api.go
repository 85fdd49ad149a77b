package types

// EmbeddingsRequest is the typed schema for POST /v1/embeddings. The
// embeddings schema is stable upstream, so unlike chat completions it is
// decoded into a fixed struct before forwarding.
type EmbeddingsRequest struct {
	// Model alias to embed with.
	// example: tinyllama-q4.gguf
	Model string `json:"model" example:"tinyllama-q4.gguf"`
	// A string or an array of strings/token arrays.
	Input any `json:"input"`
	// Either "float" or "base64".
	// example: float
	EncodingFormat string `json:"encoding_format,omitempty" example:"float"`
	// Number of dimensions for the output embeddings, when supported.
	Dimensions int `json:"dimensions,omitempty"`
	// Opaque end-user identifier forwarded to the engine.
	User string `json:"user,omitempty"`
}

// TokenizeRequest is the typed schema for POST /v1/tokenize.
type TokenizeRequest struct {
	// Text to tokenize.
	// example: Hello world
	Content string `json:"content" example:"Hello world"`
	// Include special tokens in the output.
	AddSpecial bool `json:"add_special,omitempty"`
	// Return token piece strings alongside ids.
	WithPieces bool `json:"with_pieces,omitempty"`
}

// DetokenizeRequest is the typed schema for POST /v1/detokenize.
type DetokenizeRequest struct {
	// Token ids to convert back to text.
	Tokens []int `json:"tokens"`
}

// ChatMessage is a single chat turn in the native (OpenAI-shaped) format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatChoice is one completion choice of a native non-streaming response.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// Usage carries token accounting when the engine reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the subset of the native non-streaming response
// the gateway needs for Ollama translation. Vendor fields beyond these are
// never re-encoded on the native path, which proxies bodies verbatim.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChatDelta is the incremental message of a native streaming chunk.
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one choice of a native streaming chunk.
type ChunkChoice struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is a native SSE streaming chunk.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// OpenAIModel is one entry of the native GET /v1/models listing.
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// OpenAIModelList wraps the native model listing.
type OpenAIModelList struct {
	Object string        `json:"object"`
	Data   []OpenAIModel `json:"data"`
}

// ErrorBody is the inner error object of ErrorResponse.
type ErrorBody struct {
	// Human-readable message.
	// example: model field is required
	Message string `json:"message" example:"model field is required"`
	// Stable error kind, e.g. invalid_request_error.
	// example: invalid_request_error
	Type string `json:"type" example:"invalid_request_error"`
}

// ErrorResponse is the structured error payload for native endpoints.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// SystemInfo is a best-effort host resource snapshot included in /status.
type SystemInfo struct {
	Platform       string `json:"platform"`
	CPUCores       int    `json:"cpu_cores"`
	TotalMemMB     uint64 `json:"total_mem_mb"`
	AvailableMemMB uint64 `json:"available_mem_mb"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Execution context state: stopped, starting, ready, stopping.
	// example: ready
	State string `json:"state" example:"ready"`
	// Active execution variant (cpu, cuda, rocm, metal).
	// example: cpu
	Variant string `json:"variant" example:"cpu"`
	// Alias served by the live subprocess, if any.
	Alias string `json:"alias,omitempty"`
	// Process id of the live subprocess.
	PID int `json:"pid,omitempty"`
	// Local port the subprocess is bound to.
	Port int `json:"port,omitempty"`
	// Unique id of the current subprocess launch.
	SessionID string `json:"session_id,omitempty"`
	// Last startup error recorded by the context, if any.
	LastError string `json:"last_error,omitempty"`
	// Current keep-alive setting in seconds (-1 never, 0 immediate).
	KeepAliveSecs int64 `json:"keep_alive_secs"`
	// Whether the idle timer is currently armed.
	KeepAliveArmed bool `json:"keep_alive_armed"`
	// Gateway uptime in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64      `json:"server_time_unix"`
	System         SystemInfo `json:"system"`
}

// SettingsUpdate is the body of PUT /admin/settings. Nil fields are left
// unchanged.
type SettingsUpdate struct {
	KeepAliveSecs *int64  `json:"keep_alive_secs,omitempty"`
	ExecVariant   *string `json:"exec_variant,omitempty"`
}

// SettingsView echoes the current runtime settings.
type SettingsView struct {
	KeepAliveSecs int64  `json:"keep_alive_secs"`
	ExecVariant   string `json:"exec_variant"`
}

package types

// Ollama-compatible wire shapes. The gateway translates these to and from
// the native OpenAI-shaped format; it never serves them from its own state
// beyond the model catalog.

// OllamaModelDetails mirrors Ollama's model detail block.
type OllamaModelDetails struct {
	ParentModel       *string  `json:"parent_model"`
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// OllamaModel is one entry of GET /api/tags.
type OllamaModel struct {
	Model string `json:"model"`
	// RFC3339 timestamp of the model file's last modification.
	ModifiedAt string             `json:"modified_at"`
	Size       int64              `json:"size"`
	Digest     string             `json:"digest"`
	Details    OllamaModelDetails `json:"details"`
}

// OllamaModelsResponse wraps the /api/tags listing.
type OllamaModelsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaShowRequest is the body of POST /api/show.
type OllamaShowRequest struct {
	Name string `json:"name"`
}

// OllamaShowResponse is the detailed single-model payload of POST /api/show.
type OllamaShowResponse struct {
	Details    OllamaModelDetails `json:"details"`
	License    string             `json:"license"`
	ModelInfo  map[string]any     `json:"model_info"`
	Modelfile  string             `json:"modelfile"`
	ModifiedAt string             `json:"modified_at"`
	Parameters string             `json:"parameters"`
	Template   string             `json:"template"`
}

// OllamaMessage is a chat turn in Ollama's format.
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// OllamaOptions is Ollama's free-form sampling options bag. Unset options
// fall back to the engine's defaults during translation.
type OllamaOptions struct {
	NumKeep          *int     `json:"num_keep,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
	NumPredict       *int     `json:"num_predict,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TypicalP         *float64 `json:"typical_p,omitempty"`
	RepeatLastN      *int     `json:"repeat_last_n,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	RepeatPenalty    *float64 `json:"repeat_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	NumCtx           *int     `json:"num_ctx,omitempty"`
	NumThread        *int     `json:"num_thread,omitempty"`
}

// OllamaChatRequest is the body of POST /api/chat.
type OllamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	// Defaults to true when absent, matching Ollama's own behavior.
	Stream    *bool          `json:"stream,omitempty"`
	Format    string         `json:"format,omitempty"`
	KeepAlive any            `json:"keep_alive,omitempty"`
	Options   *OllamaOptions `json:"options,omitempty"`
}

// OllamaChatResponse is the non-streaming response of POST /api/chat.
// Analytics fields the engine did not report carry the -1 sentinel rather
// than fabricated numbers.
type OllamaChatResponse struct {
	Model              string        `json:"model"`
	CreatedAt          string        `json:"created_at"`
	Message            OllamaMessage `json:"message"`
	DoneReason         string        `json:"done_reason,omitempty"`
	Done               bool          `json:"done"`
	TotalDuration      int64         `json:"total_duration"`
	LoadDuration       int64         `json:"load_duration"`
	PromptEvalCount    int           `json:"prompt_eval_count"`
	PromptEvalDuration int64         `json:"prompt_eval_duration"`
	EvalCount          int           `json:"eval_count"`
	EvalDuration       int64         `json:"eval_duration"`
}

// OllamaChatStreamChunk is one streamed increment of POST /api/chat.
type OllamaChatStreamChunk struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   OllamaMessage `json:"message"`
	Done      bool          `json:"done"`
}

// OllamaError is the error payload shape of the Ollama-compatible surface.
type OllamaError struct {
	Error string `json:"error"`
}

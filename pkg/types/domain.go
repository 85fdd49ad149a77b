package types

import "time"

// Model sources. File-backed entries point at a local gguf file; API-backed
// entries are served by a remote provider and have no on-disk representation.
const (
	SourceFile = "file"
	SourceAPI  = "api"
)

// Model represents an entry in the gateway's model catalog.
type Model struct {
	// Stable identifier, also used as the request alias.
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Absolute path to the model file on disk. Empty for API-backed entries.
	// example: /home/user/models/tinyllama-q4.gguf
	Path string `json:"path,omitempty" example:"/home/user/models/tinyllama-q4.gguf"`
	// Where the model is served from: "file" or "api".
	// example: file
	Source string `json:"source" example:"file"`
	// Optional family guess (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// File size in bytes. Zero for API-backed entries.
	SizeBytes int64 `json:"size_bytes,omitempty"`
	// Last modification time of the model file.
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	// Content identifier derived from the file's name, size and mtime.
	Digest string `json:"digest,omitempty"`
}

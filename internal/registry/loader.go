// Package registry builds and serves the model catalog. File-backed
// entries come from scanning a directory for gguf files; API-backed
// entries are declared in configuration and carry no on-disk metadata.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"inferd/pkg/types"
)

// GGUFScanner discovers model files in a directory.
type GGUFScanner struct{}

func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan reads a directory for *.gguf files (case-insensitive) and builds
// catalog entries from filename plus stat metadata. The ID is the full
// filename including extension; Path is absolute.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.Model{
			ID:     name,
			Path:   filepath.Join(abs, name),
			Source: types.SourceFile,
			Family: guessFamily(name),
		}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
			m.ModifiedAt = info.ModTime()
			m.Digest = fileDigest(name, info.Size(), info.ModTime().UnixNano())
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans a directory with the default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// fileDigest derives a stable content identifier from the file's name,
// size and mtime. Cheaper than hashing multi-gigabyte weights and changes
// whenever the file does.
func fileDigest(name string, size int64, mtimeNanos int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", name, size, mtimeNanos)))
	return hex.EncodeToString(sum[:])
}

// guessFamily extracts a coarse model family from the filename.
func guessFamily(name string) string {
	lower := strings.ToLower(name)
	for _, fam := range []string{"llama", "mistral", "mixtral", "qwen", "gemma", "phi", "deepseek"} {
		if strings.Contains(lower, fam) {
			return fam
		}
	}
	return ""
}

// Registry is an in-memory model catalog with lookup by ID. Reload
// replaces the file-backed entries while keeping API-backed ones.
type Registry struct {
	dir string

	mu     sync.RWMutex
	models []types.Model
}

// New builds a registry over a models directory plus statically declared
// API-backed entries.
func New(dir string, apiModels []types.Model) (*Registry, error) {
	r := &Registry{dir: dir}
	r.mu.Lock()
	r.models = append(r.models, apiModels...)
	r.mu.Unlock()
	if dir != "" {
		if err := r.Reload(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Reload rescans the models directory. API-backed entries survive reloads.
func (r *Registry) Reload() error {
	scanned, err := LoadDir(r.dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	kept := r.models[:0]
	for _, m := range r.models {
		if m.Source == types.SourceAPI {
			kept = append(kept, m)
		}
	}
	r.models = append(kept, scanned...)
	sort.Slice(r.models, func(i, j int) bool { return r.models[i].ID < r.models[j].ID })
	r.mu.Unlock()
	return nil
}

// Models returns a copy of the catalog.
func (r *Registry) Models() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Model, len(r.models))
	copy(out, r.models)
	return out
}

// Find looks up a model by ID.
func (r *Registry) Find(id string) (types.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.models {
		if m.ID == id {
			return m, true
		}
	}
	return types.Model{}, false
}

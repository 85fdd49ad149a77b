package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"inferd/pkg/types"
)

func TestGGUFScanner_ScanFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.GGUF", // case-insensitive
		"not-model.txt",
		"model.bin",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := NewGGUFScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	for _, m := range models {
		if !strings.HasSuffix(strings.ToLower(m.ID), ".gguf") {
			t.Fatalf("id not gguf: %s", m.ID)
		}
		if m.Source != types.SourceFile {
			t.Fatalf("source: %s", m.Source)
		}
		if m.Digest == "" || len(m.Digest) != 64 {
			t.Fatalf("bad digest for %s: %q", m.ID, m.Digest)
		}
		if m.SizeBytes != 1 {
			t.Fatalf("size for %s: %d", m.ID, m.SizeBytes)
		}
		if m.ModifiedAt.IsZero() {
			t.Fatalf("mtime missing for %s", m.ID)
		}
	}
}

func TestGGUFScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "inferd-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := NewGGUFScanner().Scan(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestDigestChangesWithMtime(t *testing.T) {
	a := fileDigest("m.gguf", 10, 100)
	b := fileDigest("m.gguf", 10, 200)
	if a == b {
		t.Fatal("digest should change when mtime does")
	}
	if a != fileDigest("m.gguf", 10, 100) {
		t.Fatal("digest not stable for identical inputs")
	}
}

func TestGuessFamily(t *testing.T) {
	cases := map[string]string{
		"TinyLlama-1.1B-q4.gguf":      "llama",
		"mistral-7b-instruct-q5.gguf": "mistral",
		"Qwen2.5-0.5B.gguf":           "qwen",
		"phi-3-mini.gguf":             "phi",
		"some-random-weights.gguf":    "",
		"deepseek-coder-1.3b-q8.gguf": "deepseek",
	}
	for name, want := range cases {
		if got := guessFamily(name); got != want {
			t.Errorf("guessFamily(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestRegistryReloadKeepsAPIModels(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "local.gguf"), []byte("w"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	api := types.Model{ID: "gpt-4o-mini", Source: types.SourceAPI, ModifiedAt: time.Now()}
	r, err := New(dir, []types.Model{api})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if len(r.Models()) != 2 {
		t.Fatalf("models: %+v", r.Models())
	}
	if err := os.WriteFile(filepath.Join(dir, "second.gguf"), []byte("w"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	models := r.Models()
	if len(models) != 3 {
		t.Fatalf("after reload: %+v", models)
	}
	if _, ok := r.Find("gpt-4o-mini"); !ok {
		t.Fatal("api model lost on reload")
	}
	if _, ok := r.Find("second.gguf"); !ok {
		t.Fatal("new file not picked up on reload")
	}
	if _, ok := r.Find("nope"); ok {
		t.Fatal("found a model that does not exist")
	}
}

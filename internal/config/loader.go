package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds startup parameters for the gateway.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ExecDir      string `json:"exec_dir" yaml:"exec_dir" toml:"exec_dir"`
	ExecVariant  string `json:"exec_variant" yaml:"exec_variant" toml:"exec_variant"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	// Pointer so 0 (stop immediately when idle) survives merging.
	KeepAliveSecs *int64 `json:"keep_alive_secs" yaml:"keep_alive_secs" toml:"keep_alive_secs"`
	// Forwarded to the llama-server subprocess as --api-key.
	APIKey string `json:"api_key" yaml:"api_key" toml:"api_key"`
	// Extra CLI arguments appended verbatim to the subprocess command line.
	ExtraArgs []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
	// Remote API-backed model ids surfaced in the native listing only.
	APIModels []string `json:"api_models" yaml:"api_models" toml:"api_models"`
	// Allowed CORS origins; empty disables the CORS middleware.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

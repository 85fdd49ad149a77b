package supervisor

import (
	"strconv"
	"strings"
	"time"
)

// Default health polling budget: 300 attempts at 1s spacing, a five minute
// ceiling to accommodate cold model loads.
const (
	DefaultPollAttempts = 300
	DefaultPollInterval = time.Second
)

// How long Stop waits after SIGTERM before escalating to SIGKILL.
const stopGrace = 5 * time.Second

// Config is the immutable per-launch configuration of one subprocess.
// Constructed once per Start and never mutated afterwards.
type Config struct {
	// Path to the llama-server executable.
	ExecPath string
	// Path to the gguf model file.
	ModelPath string
	// Human-readable alias the subprocess registers the model under.
	Alias string
	// Host to bind; defaults to 127.0.0.1.
	Host string
	// Local port the subprocess listens on.
	Port int
	// Optional API key the subprocess requires on its endpoints.
	APIKey string
	// Extra CLI arguments appended verbatim after the built-in ones.
	ExtraArgs []string

	// Health poll overrides; zero values use the package defaults.
	PollAttempts int
	PollInterval time.Duration
}

func (c Config) host() string {
	if h := strings.TrimSpace(c.Host); h != "" {
		return h
	}
	return "127.0.0.1"
}

func (c Config) pollAttempts() int {
	if c.PollAttempts > 0 {
		return c.PollAttempts
	}
	return DefaultPollAttempts
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

// Args builds the subprocess command line:
// --alias A --model M [--api-key K] [--host H] --port P <extra...>
func (c Config) Args() []string {
	args := []string{
		"--alias", c.Alias,
		"--model", c.ModelPath,
	}
	if c.APIKey != "" {
		args = append(args, "--api-key", c.APIKey)
	}
	if strings.TrimSpace(c.Host) != "" {
		args = append(args, "--host", c.Host)
	}
	args = append(args, "--port", strconv.Itoa(c.Port))
	args = append(args, c.ExtraArgs...)
	return args
}

package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logical endpoints proxied to the subprocess.
const (
	EndpointChatCompletions = "/v1/chat/completions"
	EndpointEmbeddings      = "/v1/embeddings"
	EndpointTokenize        = "/v1/tokenize"
	EndpointDetokenize      = "/v1/detokenize"
)

// Supervisor owns exactly one llama-server subprocess: it spawns it, waits
// for its health endpoint, proxies requests to its local port, and
// terminates it. The Supervisor is the sole owner of the process's kill
// capability; if it is dropped without Stop, a finalizer backstop still
// kills the process so no orphan survives the gateway.
type Supervisor struct {
	cfg     Config
	log     zerolog.Logger
	client  *http.Client
	baseURL string
	session string
	tail    *tailBuffer

	mu      sync.Mutex
	cmd     *exec.Cmd
	waitCh  chan error
	stopped bool
}

// New constructs a supervisor for one launch of cfg. The HTTP client
// intentionally has Timeout=0: all calls carry context deadlines, and
// streaming responses must not be cut by a client-level timeout.
func New(cfg Config, log zerolog.Logger) *Supervisor {
	session := uuid.NewString()
	return &Supervisor{
		cfg:     cfg,
		session: session,
		baseURL: fmt.Sprintf("http://%s:%d", cfg.host(), cfg.Port),
		client:  &http.Client{Timeout: 0},
		tail:    &tailBuffer{},
		log: log.With().
			Str("component", "supervisor").
			Str("alias", cfg.Alias).
			Str("session", session).
			Logger(),
	}
}

func (s *Supervisor) Alias() string   { return s.cfg.Alias }
func (s *Supervisor) Port() int       { return s.cfg.Port }
func (s *Supervisor) Session() string { return s.session }
func (s *Supervisor) BaseURL() string { return s.baseURL }

// PID returns the subprocess pid, or 0 if not running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Start spawns the subprocess and returns once it answers GET /health, or
// fails with StartupIoError (unspawnable, early exit) or
// StartupTimeoutError (poll budget exhausted). Poll attempts that error are
// treated as "not yet ready", not fatal.
func (s *Supervisor) Start(ctx context.Context) error {
	if _, err := os.Stat(s.cfg.ExecPath); err != nil {
		return &StartupIoError{Msg: "executable not found: " + s.cfg.ExecPath, Err: err}
	}
	cmd := exec.Command(s.cfg.ExecPath, s.cfg.Args()...)
	setSysProcAttr(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &StartupIoError{Msg: "stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &StartupIoError{Msg: "stderr pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &StartupIoError{Msg: "start llama-server", Err: err}
	}
	s.log.Info().
		Int("pid", cmd.Process.Pid).
		Int("port", s.cfg.Port).
		Strs("args", s.cfg.Args()).
		Msg("subprocess started")

	go copyOutput(stdout, s.log, zerolog.DebugLevel, nil)
	go copyOutput(stderr, s.log, zerolog.WarnLevel, s.tail)

	// The wait goroutine is the single reaper: anyone who kills the process
	// only needs to synchronize on waitCh.
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
		close(waitCh)
	}()

	s.mu.Lock()
	s.cmd = cmd
	s.waitCh = waitCh
	s.mu.Unlock()
	runtime.SetFinalizer(s, (*Supervisor).finalize)

	if err := s.waitReady(ctx, cmd, waitCh); err != nil {
		return err
	}
	s.log.Info().Int("pid", cmd.Process.Pid).Str("url", s.baseURL).Msg("subprocess ready")
	return nil
}

func (s *Supervisor) waitReady(ctx context.Context, cmd *exec.Cmd, waitCh chan error) error {
	attempts := s.cfg.pollAttempts()
	interval := s.cfg.pollInterval()
	for i := 0; i < attempts; i++ {
		select {
		case werr := <-waitCh:
			s.markStopped()
			tail := s.tail.String()
			s.log.Warn().Err(werr).Str("stderr_tail", tail).Msg("subprocess exited before ready")
			if werr != nil {
				return &StartupIoError{Msg: "llama-server exited early; stderr tail: " + tail, Err: werr}
			}
			return &StartupIoError{Msg: "llama-server exited before ready: " + s.baseURL}
		case <-ctx.Done():
			s.kill(cmd, waitCh)
			return &StartupIoError{Msg: "startup canceled", Err: ctx.Err()}
		default:
		}
		attemptStart := time.Now()
		if s.healthy(interval) {
			return nil
		}
		// The health check already spent part of the interval; each attempt
		// costs one interval total, not two.
		if wait := interval - time.Since(attemptStart); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				s.kill(cmd, waitCh)
				return &StartupIoError{Msg: "startup canceled", Err: ctx.Err()}
			}
		}
	}
	s.kill(cmd, waitCh)
	s.log.Warn().Int("attempts", attempts).Msg("subprocess never became healthy")
	return &StartupTimeoutError{Attempts: attempts}
}

// healthy checks GET /health with a bounded per-attempt timeout.
func (s *Supervisor) healthy(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Proxy forwards a pre-built JSON body to the subprocess at the given
// logical endpoint and returns the raw downstream response unmodified.
// Non-2xx statuses are the caller's to interpret.
func (s *Supervisor) Proxy(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProxyConnectionError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ProxyConnectionError{Endpoint: endpoint, Err: err}
	}
	return resp, nil
}

// Stop sends SIGTERM, waits for exit with a bounded grace period, then
// escalates to SIGKILL. Idempotent: calling it twice never double-kills.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.stopped || s.cmd == nil || s.cmd.Process == nil {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cmd := s.cmd
	waitCh := s.waitCh
	s.mu.Unlock()
	runtime.SetFinalizer(s, nil)

	pid := cmd.Process.Pid
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(stopGrace):
		s.log.Warn().Int("pid", pid).Msg("subprocess ignored SIGTERM, killing")
		_ = cmd.Process.Kill()
		<-waitCh
	}
	s.log.Info().Int("pid", pid).Msg("subprocess stopped")
	return nil
}

// kill terminates the process immediately and waits for the reaper.
// Used on startup failure paths where SIGTERM grace is pointless.
func (s *Supervisor) kill(cmd *exec.Cmd, waitCh chan error) {
	s.markStopped()
	_ = cmd.Process.Kill()
	<-waitCh
}

func (s *Supervisor) markStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	runtime.SetFinalizer(s, nil)
}

// finalize is the backstop against orphaned subprocesses: if the supervisor
// is garbage-collected without Stop, the process is killed. The wait
// goroutine reaps it.
func (s *Supervisor) finalize() {
	s.mu.Lock()
	stopped := s.stopped
	cmd := s.cmd
	s.mu.Unlock()
	if stopped || cmd == nil || cmd.Process == nil {
		return
	}
	s.log.Warn().Int("pid", cmd.Process.Pid).Msg("supervisor dropped without Stop, killing subprocess")
	_ = cmd.Process.Kill()
}

// copyOutput streams subprocess output lines into the logger until the pipe
// closes. It runs for the life of the subprocess and must hold no reference
// to the Supervisor: the logger is a value copy and the tail is its own
// allocation, so a Supervisor dropped without Stop stays collectable and the
// finalizer backstop can fire.
func copyOutput(r io.Reader, log zerolog.Logger, level zerolog.Level, tail *tailBuffer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if tail != nil {
			tail.append(line)
		}
		log.WithLevel(level).Msg(line)
	}
}

// tailBuffer keeps the last few KB of subprocess stderr for startup
// diagnostics.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailMax = 4096

func (t *tailBuffer) append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if len(t.buf) > tailMax {
		t.buf = t.buf[len(t.buf)-tailMax:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

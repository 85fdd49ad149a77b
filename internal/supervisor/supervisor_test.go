package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// buildTestBinary builds the fake llama server used for subprocess tests
// and returns its path.
func buildTestBinary(t *testing.T) string {
	t.Helper()
	tdir := t.TempDir()
	bin := filepath.Join(tdir, "fake_llama_server")
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/fake_llama_server.go")
	cmd.Dir = "."
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake server: %v: %s", err, string(out))
	}
	return bin
}

func testConfig(t *testing.T, bin string, extra ...string) Config {
	t.Helper()
	port, err := PickFreePort("127.0.0.1")
	if err != nil {
		t.Fatalf("pick port: %v", err)
	}
	return Config{
		ExecPath:     bin,
		ModelPath:    "m1.gguf",
		Alias:        "m1",
		Port:         port,
		ExtraArgs:    extra,
		PollAttempts: 50,
		PollInterval: 100 * time.Millisecond,
	}
}

func TestStartProxyStop(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	s := New(testConfig(t, bin), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.PID() <= 0 {
		t.Fatalf("expected pid, got %d", s.PID())
	}
	body, _ := json.Marshal(map[string]any{
		"model":    "m1",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	resp, err := s.Proxy(ctx, EndpointChatCompletions, body)
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("response not JSON: %v: %s", err, string(b))
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	s := New(testConfig(t, bin), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := s.PID()
	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	// The process must be gone.
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("pid %d still alive after Stop", pid)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := New(Config{ModelPath: "m.gguf", Alias: "m", Port: 1}, zerolog.Nop())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop on never-started supervisor: %v", err)
	}
}

func TestStartMissingExecutable(t *testing.T) {
	s := New(Config{ExecPath: "/nonexistent/llama-server", ModelPath: "m.gguf", Alias: "m", Port: 1}, zerolog.Nop())
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStartupIo(err) {
		t.Fatalf("expected StartupIoError, got %T: %v", err, err)
	}
}

func TestStartTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	cfg := testConfig(t, bin, "--never-ready")
	cfg.PollAttempts = 3
	cfg.PollInterval = 50 * time.Millisecond
	s := New(cfg, zerolog.Nop())
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStartupTimeout(err) {
		t.Fatalf("expected StartupTimeoutError, got %T: %v", err, err)
	}
	// The failed start must not leave the process behind.
	if pid := s.PID(); pid > 0 {
		if kerr := syscall.Kill(pid, 0); kerr == nil {
			t.Fatalf("pid %d still alive after startup timeout", pid)
		}
	}
}

func TestStartTimeoutCeiling(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	cfg := testConfig(t, bin, "--never-ready", "--health-delay-ms", "150")
	cfg.PollAttempts = 4
	cfg.PollInterval = 200 * time.Millisecond
	s := New(cfg, zerolog.Nop())
	startAt := time.Now()
	err := s.Start(context.Background())
	elapsed := time.Since(startAt)
	if !IsStartupTimeout(err) {
		t.Fatalf("expected StartupTimeoutError, got %T: %v", err, err)
	}
	// Each attempt costs one interval total, slow health checks included.
	ceiling := time.Duration(cfg.PollAttempts+2) * cfg.PollInterval
	if elapsed > ceiling {
		t.Fatalf("startup poll took %v for %d attempts at %v", elapsed, cfg.PollAttempts, cfg.PollInterval)
	}
}

func TestDroppedSupervisorKillsSubprocess(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	s := New(testConfig(t, bin), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := s.PID()
	if pid <= 0 {
		t.Fatalf("expected pid, got %d", pid)
	}

	// Drop the only reference without Stop. The finalizer backstop must
	// kill the subprocess once the supervisor is collected; this only works
	// if the output-copy goroutines do not pin it.
	s = nil
	deadline := time.Now().Add(10 * time.Second)
	for syscall.Kill(pid, 0) == nil {
		if time.Now().After(deadline) {
			t.Fatalf("pid %d still alive: dropped supervisor never killed its subprocess", pid)
		}
		runtime.GC()
		time.Sleep(50 * time.Millisecond)
	}
}

func TestProxyAfterStopFails(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	bin := buildTestBinary(t)
	s := New(testConfig(t, bin), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_, err := s.Proxy(ctx, EndpointEmbeddings, []byte(`{"model":"m1","input":"hi"}`))
	if err == nil {
		t.Fatal("expected proxy error against stopped subprocess")
	}
	if !IsProxyConnection(err) {
		t.Fatalf("expected ProxyConnectionError, got %T: %v", err, err)
	}
}

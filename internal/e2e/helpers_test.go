package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/execctx"
	"inferd/internal/httpapi"
	"inferd/internal/keepalive"
	"inferd/internal/registry"
	"inferd/internal/supervisor"
)

// buildExecDir compiles the fake llama-server once and lays it out as
// <dir>/<variant>/llama-server for the variants under test.
func buildExecDir(t *testing.T, variants ...string) string {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake_llama_server")
	cmd := exec.Command("go", "build", "-o", bin, "../supervisor/testdata/fake_llama_server.go")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build fake server: %v: %s", err, string(out))
	}
	raw, err := os.ReadFile(bin)
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	for _, v := range variants {
		vdir := filepath.Join(dir, v)
		if err := os.MkdirAll(vdir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(vdir, "llama-server"), raw, 0o755); err != nil {
			t.Fatalf("install binary: %v", err)
		}
	}
	return dir
}

func createModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("w"), 0o644); err != nil {
			t.Fatalf("write temp model: %v", err)
		}
	}
	return dir
}

// gateway is a fully wired in-process stack behind an httptest server.
type gateway struct {
	srv      *httptest.Server
	ctx      *execctx.Context
	settings *config.Settings
	idle     *keepalive.Controller
}

// bootGateway assembles registry, execution context, keep-alive controller
// and HTTP mux the way the binary does, with fast health polling.
func bootGateway(t *testing.T, modelsDir, execDir string, keepAliveSecs int64) *gateway {
	t.Helper()
	reg, err := registry.New(modelsDir, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	settings := config.NewSettings(keepAliveSecs, "cpu", zerolog.Nop())
	builder := func(variant string) (supervisor.Config, error) {
		models := reg.Models()
		if len(models) == 0 {
			t.Fatal("no models in catalog")
		}
		port, err := supervisor.PickFreePort("127.0.0.1")
		if err != nil {
			return supervisor.Config{}, err
		}
		return supervisor.Config{
			ExecPath:     filepath.Join(execDir, variant, "llama-server"),
			ModelPath:    models[0].Path,
			Alias:        models[0].ID,
			Host:         "127.0.0.1",
			Port:         port,
			PollAttempts: 50,
			PollInterval: 100 * time.Millisecond,
		}, nil
	}
	ctx := execctx.New(settings.ExecVariant(), builder, zerolog.Nop())
	ka := keepalive.New(ctx, settings, zerolog.Nop())
	ctx.AddStateListener(ka)
	settings.Subscribe(ka)

	mux := httpapi.NewMux(httpapi.Deps{
		Gateway:  ctx,
		Catalog:  reg,
		Settings: settings,
		Idle:     ka,
		Log:      zerolog.Nop(),
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = ctx.Stop()
	})
	return &gateway{srv: srv, ctx: ctx, settings: settings, idle: ka}
}

func (g *gateway) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := g.ctx.Start(ctx); err != nil {
		t.Fatalf("context start: %v", err)
	}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// settingApplier mirrors the binary's variant listener: it applies
// exec-variant changes to the execution context.
type settingApplier struct {
	t *testing.T
	g *gateway
}

func (a settingApplier) OnSettingChange(key string) {
	if key != config.KeyExecVariant {
		return
	}
	if err := a.g.ctx.SetExecVariant(context.Background(), a.g.settings.ExecVariant()); err != nil {
		a.t.Errorf("variant swap: %v", err)
	}
}

func httpPut(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/execctx"
	"inferd/internal/httpapi"
	"inferd/internal/keepalive"
	"inferd/internal/registry"
	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

type options struct {
	configPath    string
	addr          string
	modelsDir     string
	execDir       string
	execVariant   string
	defaultModel  string
	keepAliveSecs int64
	apiKey        string
	apiModels     string
	corsOrigins   string
	logLevel      string
	extraArgs     []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "inferd",
		Short:         "Local gateway supervising a llama-server inference subprocess",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .json or .toml); flags override it")
	f.StringVar(&opts.addr, "addr", ":8080", "HTTP listen address")
	f.StringVar(&opts.modelsDir, "models-dir", "~/models/llm", "Directory to scan for *.gguf model files")
	f.StringVar(&opts.execDir, "exec-dir", "~/llama-server/bin", "Directory holding per-variant llama-server builds")
	f.StringVar(&opts.execVariant, "exec-variant", config.DefaultExecVariant, "Hardware variant to launch: cpu|cuda|rocm|metal")
	f.StringVar(&opts.defaultModel, "default-model", "", "Model id to load; defaults to the first scanned model")
	f.Int64Var(&opts.keepAliveSecs, "keep-alive-secs", config.DefaultKeepAliveSecs, "Idle seconds before auto-stop (-1 never, 0 immediate)")
	f.StringVar(&opts.apiKey, "api-key", "", "API key forwarded to the subprocess")
	f.StringVar(&opts.apiModels, "api-models", "", "Comma-separated remote model ids to list alongside local ones")
	f.StringVar(&opts.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	f.StringArrayVar(&opts.extraArgs, "extra-arg", nil, "Extra argument appended to the subprocess command line (repeatable)")
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	log := newLogger(opts.logLevel)

	cfg, err := mergedConfig(cmd, opts)
	if err != nil {
		return err
	}

	var apiModels []types.Model
	for _, id := range cfg.APIModels {
		apiModels = append(apiModels, types.Model{ID: id, Source: types.SourceAPI})
	}
	reg, err := registry.New(cfg.ModelsDir, apiModels)
	if err != nil {
		return fmt.Errorf("load model catalog: %w", err)
	}
	log.Info().Int("models", len(reg.Models())).Str("dir", cfg.ModelsDir).Msg("model catalog loaded")

	keepAlive := config.DefaultKeepAliveSecs
	if cfg.KeepAliveSecs != nil {
		keepAlive = *cfg.KeepAliveSecs
	}
	settings := config.NewSettings(keepAlive, cfg.ExecVariant, log)

	builder := launchConfigBuilder(cfg, reg)
	ctx := execctx.New(settings.ExecVariant(), builder, log)

	ka := keepalive.New(ctx, settings, log)
	ctx.AddStateListener(ka)
	settings.Subscribe(ka)
	settings.Subscribe(&variantListener{ctx: ctx, settings: settings, log: log})

	mux := httpapi.NewMux(httpapi.Deps{
		Gateway:     ctx,
		Catalog:     reg,
		Settings:    settings,
		Idle:        ka,
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	bootCtx, cancelBoot := context.WithCancel(context.Background())
	go func() {
		// A failed boot leaves the gateway serving 503s; /admin/reload can
		// retry once the cause is fixed.
		if err := ctx.Start(bootCtx); err != nil {
			log.Warn().Err(err).Msg("initial subprocess start failed")
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("variant", settings.ExecVariant()).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	cancelBoot()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := ctx.Stop(); err != nil {
		log.Warn().Err(err).Msg("subprocess stop error")
	}
	return nil
}

// mergedConfig layers CLI flags over the optional config file. A flag the
// user set always wins; otherwise the file value is kept and flag defaults
// fill the gaps.
func mergedConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	flags := cmd.Flags()
	if flags.Changed("addr") || cfg.Addr == "" {
		cfg.Addr = opts.addr
	}
	if flags.Changed("models-dir") || cfg.ModelsDir == "" {
		cfg.ModelsDir = opts.modelsDir
	}
	if flags.Changed("exec-dir") || cfg.ExecDir == "" {
		cfg.ExecDir = opts.execDir
	}
	if flags.Changed("exec-variant") || cfg.ExecVariant == "" {
		cfg.ExecVariant = opts.execVariant
	}
	if flags.Changed("default-model") || cfg.DefaultModel == "" {
		cfg.DefaultModel = opts.defaultModel
	}
	if flags.Changed("keep-alive-secs") || cfg.KeepAliveSecs == nil {
		v := opts.keepAliveSecs
		cfg.KeepAliveSecs = &v
	}
	if flags.Changed("api-key") || cfg.APIKey == "" {
		cfg.APIKey = opts.apiKey
	}
	if flags.Changed("api-models") || len(cfg.APIModels) == 0 {
		cfg.APIModels = splitCSV(opts.apiModels)
	}
	if flags.Changed("cors-origins") || len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitCSV(opts.corsOrigins)
	}
	if flags.Changed("extra-arg") || len(cfg.ExtraArgs) == 0 {
		cfg.ExtraArgs = opts.extraArgs
	}
	return cfg, nil
}

// launchConfigBuilder resolves the per-launch subprocess configuration:
// executable at <exec-dir>/<variant>/llama-server, the configured or first
// scanned model, and a fresh OS-assigned port.
func launchConfigBuilder(cfg config.Config, reg *registry.Registry) execctx.ConfigBuilder {
	return func(variant string) (supervisor.Config, error) {
		model, err := resolveModel(cfg.DefaultModel, reg)
		if err != nil {
			return supervisor.Config{}, err
		}
		execDir, err := registry.ExpandHome(cfg.ExecDir)
		if err != nil {
			return supervisor.Config{}, err
		}
		port, err := supervisor.PickFreePort("127.0.0.1")
		if err != nil {
			return supervisor.Config{}, fmt.Errorf("pick port: %w", err)
		}
		return supervisor.Config{
			ExecPath:  filepath.Join(execDir, variant, "llama-server"),
			ModelPath: model.Path,
			Alias:     model.ID,
			Host:      "127.0.0.1",
			Port:      port,
			APIKey:    cfg.APIKey,
			ExtraArgs: cfg.ExtraArgs,
		}, nil
	}
}

func resolveModel(defaultModel string, reg *registry.Registry) (types.Model, error) {
	if defaultModel != "" {
		m, ok := reg.Find(defaultModel)
		if !ok {
			return types.Model{}, fmt.Errorf("default model %q not in catalog", defaultModel)
		}
		if m.Source != types.SourceFile {
			return types.Model{}, fmt.Errorf("default model %q is not file-backed", defaultModel)
		}
		return m, nil
	}
	for _, m := range reg.Models() {
		if m.Source == types.SourceFile {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("no gguf models in catalog")
}

// variantListener applies exec-variant setting changes to the execution
// context, swapping the live subprocess when one is running.
type variantListener struct {
	ctx      *execctx.Context
	settings *config.Settings
	log      zerolog.Logger
}

func (v *variantListener) OnSettingChange(key string) {
	if key != config.KeyExecVariant {
		return
	}
	variant := v.settings.ExecVariant()
	if err := v.ctx.SetExecVariant(context.Background(), variant); err != nil {
		v.log.Warn().Err(err).Str("variant", variant).Msg("variant swap failed")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty items.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

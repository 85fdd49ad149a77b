// Package httpapi exposes the gateway's inbound HTTP surface: the native
// OpenAI-shaped endpoints, the Ollama-compatible endpoints, and the
// status/admin routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/execctx"
	"inferd/pkg/types"
)

// Gateway is the execution-context surface the handlers drive.
type Gateway interface {
	ChatCompletions(ctx context.Context, body []byte) (*http.Response, error)
	Embeddings(ctx context.Context, body []byte) (*http.Response, error)
	Tokenize(ctx context.Context, body []byte) (*http.Response, error)
	Detokenize(ctx context.Context, body []byte) (*http.Response, error)
	Start(ctx context.Context) error
	Stop() error
	Ready() bool
	Snapshot() execctx.Snapshot
}

// Catalog lists known models.
type Catalog interface {
	Models() []types.Model
	Find(id string) (types.Model, bool)
	Reload() error
}

// IdleReporter exposes whether the keep-alive timer is counting down.
type IdleReporter interface {
	Armed() bool
}

// Deps wires the handler dependencies. Idle may be nil.
type Deps struct {
	Gateway  Gateway
	Catalog  Catalog
	Settings *config.Settings
	Idle     IdleReporter
	Log      zerolog.Logger

	// CORSOrigins enables the CORS middleware when non-empty.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies on JSON endpoints; 0 uses the
	// default of 8 MiB.
	MaxBodyBytes int64
}

type server struct {
	gw       Gateway
	catalog  Catalog
	settings *config.Settings
	idle     IdleReporter
	log      zerolog.Logger
	maxBody  int64
	started  time.Time
}

const defaultMaxBodyBytes int64 = 8 << 20

// NewMux builds the route tree.
func NewMux(deps Deps) http.Handler {
	s := &server{
		gw:       deps.Gateway,
		catalog:  deps.Catalog,
		settings: deps.Settings,
		idle:     deps.Idle,
		log:      deps.Log.With().Str("component", "httpapi").Logger(),
		maxBody:  deps.MaxBodyBytes,
		started:  time.Now(),
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(s.requestLogger)

	// Native OpenAI-shaped surface.
	r.Post("/v1/chat/completions", s.chatCompletions)
	r.Post("/v1/embeddings", s.embeddings)
	r.Post("/v1/tokenize", s.tokenize)
	r.Post("/v1/detokenize", s.detokenize)
	r.Get("/v1/models", s.listModels)

	// Ollama-compatible surface.
	r.Get("/api/tags", s.ollamaTags)
	r.Post("/api/show", s.ollamaShow)
	r.Post("/api/chat", s.ollamaChat)

	// Status and admin.
	r.Get("/status", s.status)
	r.Put("/admin/settings", s.updateSettings)
	r.Post("/admin/reload", s.reload)
	r.Post("/admin/stop", s.stopContext)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.gw.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

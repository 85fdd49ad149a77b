package execctx

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"inferd/internal/supervisor"
)

// Server is the supervisor surface the context drives. It exists so tests
// can swap the real subprocess supervisor for a fake.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Proxy(ctx context.Context, endpoint string, body []byte) (*http.Response, error)
	Alias() string
	PID() int
	Port() int
	Session() string
}

// ServerFactory builds a Server for one launch configuration.
type ServerFactory func(cfg supervisor.Config) Server

// ConfigBuilder resolves a fully specified launch configuration for a
// variant. The composition layer owns executable lookup, model resolution
// and port selection; the context only knows the variant tag.
type ConfigBuilder func(variant string) (supervisor.Config, error)

// Context is the single mutable seam between HTTP handling and the process
// supervisor. It owns zero-or-one live Server behind a field guard, keeps
// variant switching and stop/start safe under concurrent access, and emits
// state-change notifications to registered listeners.
//
// Two locks: transMu serializes whole transitions (start, stop, variant
// swap), mu guards the fields for short reads. Proxy I/O happens with both
// released so slow requests never block a swap decision.
type Context struct {
	log     zerolog.Logger
	build   ConfigBuilder
	factory ServerFactory

	transMu sync.Mutex

	mu      sync.Mutex
	state   State
	srv     Server
	variant string
	lastErr error

	lmu       sync.Mutex
	listeners []StateListener
}

// Option configures a Context.
type Option func(*Context)

// WithServerFactory replaces the default supervisor-backed factory.
func WithServerFactory(f ServerFactory) Option {
	return func(c *Context) { c.factory = f }
}

func New(variant string, build ConfigBuilder, log zerolog.Logger, opts ...Option) *Context {
	clog := log.With().Str("component", "execctx").Logger()
	c := &Context{
		log:     clog,
		build:   build,
		variant: variant,
		state:   StateStopped,
		factory: func(cfg supervisor.Config) Server {
			return supervisor.New(cfg, log)
		},
	}
	for _, o := range opts {
		o(c)
	}
	contextState.Set(float64(StateStopped))
	return c
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Variant returns the current execution variant tag.
func (c *Context) Variant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

// IsLoaded reports whether a subprocess is currently owned by the context.
func (c *Context) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.srv != nil
}

// Ready reports whether proxy operations would be accepted right now.
func (c *Context) Ready() bool {
	return c.State() == StateReady
}

// Snapshot returns a point-in-time view for status reporting.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: c.state, Variant: c.variant}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	if c.srv != nil {
		snap.Alias = c.srv.Alias()
		snap.PID = c.srv.PID()
		snap.Port = c.srv.Port()
		snap.Session = c.srv.Session()
	}
	return snap
}

// AddStateListener registers an observer for subsequent transitions.
func (c *Context) AddStateListener(l StateListener) {
	if l == nil {
		return
	}
	c.lmu.Lock()
	c.listeners = append(c.listeners, l)
	c.lmu.Unlock()
}

// Start launches a subprocess for the current variant. No-op when one is
// already loaded.
func (c *Context) Start(ctx context.Context) error {
	c.transMu.Lock()
	if c.IsLoaded() {
		c.transMu.Unlock()
		return nil
	}
	events, err := c.startLocked(ctx)
	c.transMu.Unlock()
	c.notify(events)
	return err
}

// Stop terminates the current subprocess, if any. Idempotent.
func (c *Context) Stop() error {
	c.transMu.Lock()
	events, err := c.stopLocked()
	c.transMu.Unlock()
	c.notify(events)
	return err
}

// SetExecVariant switches the subprocess build variant. No-op when the
// variant is unchanged. When a subprocess is loaded, the old one is stopped
// before the new one starts; requests arriving in between get NotReady.
// When nothing is loaded, the new variant simply takes effect on the next
// start.
func (c *Context) SetExecVariant(ctx context.Context, variant string) error {
	c.transMu.Lock()
	c.mu.Lock()
	if variant == c.variant {
		c.mu.Unlock()
		c.transMu.Unlock()
		return nil
	}
	c.variant = variant
	loaded := c.srv != nil
	c.mu.Unlock()

	variantSwapsTotal.WithLabelValues(variant).Inc()
	c.log.Info().Str("variant", variant).Bool("reload", loaded).Msg("exec variant changed")
	events := []Event{{Kind: EventVariant, Variant: variant}}
	var err error
	if loaded {
		var stopEvents []Event
		stopEvents, err = c.stopLocked()
		events = append(events, stopEvents...)
		if err == nil {
			var startEvents []Event
			startEvents, err = c.startLocked(ctx)
			events = append(events, startEvents...)
		}
	}
	c.transMu.Unlock()
	c.notify(events)
	return err
}

// ChatCompletions proxies a chat-completion body to the subprocess.
func (c *Context) ChatCompletions(ctx context.Context, body []byte) (*http.Response, error) {
	return c.proxy(ctx, supervisor.EndpointChatCompletions, body)
}

// Embeddings proxies an embeddings body to the subprocess.
func (c *Context) Embeddings(ctx context.Context, body []byte) (*http.Response, error) {
	return c.proxy(ctx, supervisor.EndpointEmbeddings, body)
}

// Tokenize proxies a tokenize body to the subprocess.
func (c *Context) Tokenize(ctx context.Context, body []byte) (*http.Response, error) {
	return c.proxy(ctx, supervisor.EndpointTokenize, body)
}

// Detokenize proxies a detokenize body to the subprocess.
func (c *Context) Detokenize(ctx context.Context, body []byte) (*http.Response, error) {
	return c.proxy(ctx, supervisor.EndpointDetokenize, body)
}

// proxy snapshots the ready server under the field guard, then performs the
// request with the guard released. A successful response emits an activity
// event. A request that is in flight when a swap stops the old subprocess
// fails with the supervisor's connection error; it is never silently routed
// to the new one.
func (c *Context) proxy(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	c.mu.Lock()
	if c.state != StateReady || c.srv == nil {
		st := c.state
		c.mu.Unlock()
		proxyRequestsTotal.WithLabelValues(endpoint, "not_ready").Inc()
		return nil, &NotReadyError{State: st}
	}
	srv := c.srv
	c.mu.Unlock()

	resp, err := srv.Proxy(ctx, endpoint, body)
	if err != nil {
		proxyRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	proxyRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	c.notify([]Event{{Kind: EventActivity, Endpoint: endpoint}})
	return resp, nil
}

// startLocked runs the Starting -> Ready transition. Caller holds transMu;
// returned events are emitted by the caller after releasing it.
func (c *Context) startLocked(ctx context.Context) ([]Event, error) {
	c.setState(StateStarting)
	c.mu.Lock()
	variant := c.variant
	c.mu.Unlock()

	cfg, err := c.build(variant)
	if err != nil {
		c.failStart(err)
		return nil, err
	}
	srv := c.factory(cfg)
	if err := srv.Start(ctx); err != nil {
		c.failStart(err)
		return nil, err
	}
	c.mu.Lock()
	c.srv = srv
	c.state = StateReady
	c.lastErr = nil
	c.mu.Unlock()
	contextState.Set(float64(StateReady))
	c.log.Info().
		Str("variant", variant).
		Str("alias", srv.Alias()).
		Int("pid", srv.PID()).
		Int("port", srv.Port()).
		Msg("context ready")
	return []Event{{Kind: EventStart}}, nil
}

// stopLocked runs the Stopping -> Stopped transition. Caller holds transMu.
func (c *Context) stopLocked() ([]Event, error) {
	c.mu.Lock()
	srv := c.srv
	if srv == nil {
		c.state = StateStopped
		c.mu.Unlock()
		contextState.Set(float64(StateStopped))
		return nil, nil
	}
	c.state = StateStopping
	c.srv = nil
	c.mu.Unlock()
	contextState.Set(float64(StateStopping))

	err := srv.Stop()
	c.setState(StateStopped)
	if err != nil {
		c.log.Warn().Err(err).Msg("subprocess stop reported error")
		return nil, err
	}
	c.log.Info().Msg("context stopped")
	return []Event{{Kind: EventStop}}, nil
}

func (c *Context) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	contextState.Set(float64(s))
}

// failStart records a failed start: Starting -> Stopped with the error kept
// for status reporting.
func (c *Context) failStart(err error) {
	c.mu.Lock()
	c.state = StateStopped
	c.srv = nil
	c.lastErr = err
	c.mu.Unlock()
	contextState.Set(float64(StateStopped))
	startFailuresTotal.Inc()
	c.log.Warn().Err(err).Msg("subprocess start failed")
}

// notify delivers events to listeners in registration order. Runs with all
// context locks released so a listener may call back into the context.
func (c *Context) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	c.lmu.Lock()
	ls := make([]StateListener, len(c.listeners))
	copy(ls, c.listeners)
	c.lmu.Unlock()
	for _, ev := range events {
		for _, l := range ls {
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.log.Warn().
							Str("event", ev.Kind.String()).
							Interface("panic", r).
							Msg("state listener panicked")
					}
				}()
				l.OnStateChange(ev)
			}()
		}
	}
}

// Package keepalive auto-stops the inference subprocess after a
// configurable idle period. The controller never touches the process
// supervisor directly; it only calls the execution context's Stop.
package keepalive

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/execctx"
)

// ContextHandle is the execution-context surface the controller needs.
type ContextHandle interface {
	IsLoaded() bool
	Stop() error
}

// Controller arms a single cancellable timer off context events and
// settings changes. Setting semantics: -1 never auto-stop, 0 stop
// immediately once idle is observed, n > 0 stop after n seconds without
// activity. At most one timer is ever counting down; arming cancels and
// replaces any prior one.
type Controller struct {
	log      zerolog.Logger
	ctxh     ContextHandle
	settings *config.Settings

	mu    sync.Mutex
	secs  int64
	timer *time.Timer
}

func New(ctxh ContextHandle, settings *config.Settings, log zerolog.Logger) *Controller {
	return &Controller{
		log:      log.With().Str("component", "keepalive").Logger(),
		ctxh:     ctxh,
		settings: settings,
		secs:     settings.KeepAliveSecs(),
	}
}

// Armed reports whether an idle timer is currently counting down.
func (k *Controller) Armed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.timer != nil
}

// OnStateChange implements execctx.StateListener.
func (k *Controller) OnStateChange(ev execctx.Event) {
	switch ev.Kind {
	case execctx.EventStart:
		k.startTimer()
	case execctx.EventStop:
		k.cancelTimer()
	case execctx.EventActivity:
		k.startTimer()
	case execctx.EventVariant:
		// No action; the swap re-emits start/stop events.
	}
}

// OnSettingChange implements config.ChangeListener. Re-reads the setting
// and re-applies it as if activity had just occurred.
func (k *Controller) OnSettingChange(key string) {
	if key != config.KeyKeepAliveSecs {
		return
	}
	secs := k.settings.KeepAliveSecs()
	k.mu.Lock()
	k.secs = secs
	k.mu.Unlock()
	k.log.Debug().Int64("keep_alive_secs", secs).Msg("keep-alive setting changed")
	k.startTimer()
}

// startTimer applies the current setting: cancels for -1, stops a loaded
// context for 0, arms (replacing any prior timer) for n > 0.
func (k *Controller) startTimer() {
	k.mu.Lock()
	secs := k.secs
	if secs <= 0 {
		if k.timer != nil {
			k.timer.Stop()
			k.timer = nil
		}
		k.mu.Unlock()
		if secs == 0 && k.ctxh.IsLoaded() {
			k.log.Info().Msg("keep-alive is 0, stopping subprocess")
			if err := k.ctxh.Stop(); err != nil {
				k.log.Warn().Err(err).Msg("immediate idle stop failed")
			}
		}
		return
	}
	if k.timer != nil {
		k.timer.Stop()
	}
	k.timer = time.AfterFunc(time.Duration(secs)*time.Second, k.expire)
	k.mu.Unlock()
	k.log.Debug().Int64("secs", secs).Msg("keep-alive timer armed")
}

func (k *Controller) cancelTimer() {
	k.mu.Lock()
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	k.mu.Unlock()
}

// expire fires once when the idle deadline passes. Stop failures are
// logged, not retried: the context's own state machine reflects the true
// outcome.
func (k *Controller) expire() {
	k.mu.Lock()
	k.timer = nil
	k.mu.Unlock()
	if !k.ctxh.IsLoaded() {
		k.log.Debug().Msg("idle deadline passed, subprocess already gone")
		return
	}
	k.log.Info().Msg("idle deadline passed, stopping subprocess")
	idleStopsTotal.Inc()
	if err := k.ctxh.Stop(); err != nil {
		k.log.Warn().Err(err).Msg("idle stop failed")
	}
}

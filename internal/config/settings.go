package config

import (
	"sync"

	"github.com/rs/zerolog"
)

// Setting keys understood by change listeners.
const (
	KeyKeepAliveSecs = "keep_alive_secs"
	KeyExecVariant   = "exec_variant"
)

// DefaultKeepAliveSecs is used when neither config file nor flags specify
// a keep-alive.
const DefaultKeepAliveSecs int64 = 300

// DefaultExecVariant is the fallback hardware variant.
const DefaultExecVariant = "cpu"

// ChangeListener is notified when a runtime setting changes. Implementations
// re-read the value they care about from Settings; the key tells them
// whether they need to.
type ChangeListener interface {
	OnSettingChange(key string)
}

// Settings holds the mutable runtime subset of the configuration. Values
// can be changed while the gateway is running; every change fans out to the
// registered listeners. A panicking listener is logged and isolated so it
// cannot affect the write or the other listeners.
type Settings struct {
	log zerolog.Logger

	mu            sync.RWMutex
	keepAliveSecs int64
	execVariant   string

	lmu       sync.Mutex
	listeners []ChangeListener
}

func NewSettings(keepAliveSecs int64, execVariant string, log zerolog.Logger) *Settings {
	if execVariant == "" {
		execVariant = DefaultExecVariant
	}
	return &Settings{
		log:           log.With().Str("component", "settings").Logger(),
		keepAliveSecs: keepAliveSecs,
		execVariant:   execVariant,
	}
}

func (s *Settings) KeepAliveSecs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepAliveSecs
}

func (s *Settings) ExecVariant() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execVariant
}

// SetKeepAliveSecs updates the keep-alive setting and notifies listeners.
func (s *Settings) SetKeepAliveSecs(v int64) {
	s.mu.Lock()
	changed := s.keepAliveSecs != v
	s.keepAliveSecs = v
	s.mu.Unlock()
	if changed {
		s.notify(KeyKeepAliveSecs)
	}
}

// SetExecVariant updates the execution variant and notifies listeners.
func (s *Settings) SetExecVariant(v string) {
	if v == "" {
		return
	}
	s.mu.Lock()
	changed := s.execVariant != v
	s.execVariant = v
	s.mu.Unlock()
	if changed {
		s.notify(KeyExecVariant)
	}
}

// Subscribe registers a listener for subsequent setting changes.
func (s *Settings) Subscribe(l ChangeListener) {
	if l == nil {
		return
	}
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()
}

func (s *Settings) notify(key string) {
	s.lmu.Lock()
	ls := make([]ChangeListener, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.Unlock()
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Warn().Str("key", key).Interface("panic", r).Msg("settings listener panicked")
				}
			}()
			l.OnSettingChange(key)
		}()
	}
}

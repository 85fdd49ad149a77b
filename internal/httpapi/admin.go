package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"inferd/internal/sysinfo"
	"inferd/pkg/types"
)

var allowedVariants = map[string]bool{
	"cpu":   true,
	"cuda":  true,
	"rocm":  true,
	"metal": true,
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	snap := s.gw.Snapshot()
	resp := types.StatusResponse{
		State:          snap.State.String(),
		Variant:        snap.Variant,
		Alias:          snap.Alias,
		PID:            snap.PID,
		Port:           snap.Port,
		SessionID:      snap.Session,
		LastError:      snap.LastError,
		KeepAliveSecs:  s.settings.KeepAliveSecs(),
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		System:         sysinfo.Snapshot(),
	}
	if s.idle != nil {
		resp.KeepAliveArmed = s.idle.Armed()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// updateSettings applies a partial settings update. Setting changes fan
// out through the settings listeners: the keep-alive controller re-arms
// and the variant listener swaps the subprocess.
func (s *server) updateSettings(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "failed to read request body")
		return
	}
	var upd types.SettingsUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "request body is not valid JSON")
		return
	}
	if upd.KeepAliveSecs != nil && *upd.KeepAliveSecs < -1 {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "keep_alive_secs must be -1, 0, or a positive number")
		return
	}
	if upd.ExecVariant != nil && !allowedVariants[*upd.ExecVariant] {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "exec_variant must be one of cpu, cuda, rocm, metal")
		return
	}
	if upd.KeepAliveSecs != nil {
		s.settings.SetKeepAliveSecs(*upd.KeepAliveSecs)
	}
	if upd.ExecVariant != nil {
		s.settings.SetExecVariant(*upd.ExecVariant)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.SettingsView{
		KeepAliveSecs: s.settings.KeepAliveSecs(),
		ExecVariant:   s.settings.ExecVariant(),
	})
}

// reload rescans the model catalog and ensures a subprocess is running,
// bringing one back after an idle stop.
func (s *server) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, "catalog reload failed: "+err.Error())
		return
	}
	if err := s.gw.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, "subprocess start failed: "+err.Error())
		return
	}
	s.status(w, r)
}

// stopContext stops the subprocess without shutting the gateway down.
func (s *server) stopContext(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, "subprocess stop failed: "+err.Error())
		return
	}
	s.status(w, r)
}

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/auth"
	"smartfarm-go-panel/internal/display"
	"smartfarm-go-panel/internal/farm"
	"smartfarm-go-panel/internal/poll"
)

// writeJSON encodes to a buffer first, so an encode failure still yields
// a clean 500 instead of a half-written body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Session

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := s.svc.Auth.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, auth.ErrMalformedLogin):
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user": user, "authenticated": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.svc.Auth.Logout(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"authenticated": s.svc.Auth.IsAuthenticated()}
	if u := s.svc.Auth.StoredUserInfo(); u != nil {
		resp["user"] = u
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Devices

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.Devices.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices":   devices,
		"summaries": display.Devices(devices),
	})
}

type createDeviceRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Serial   string `json:"serial"`
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	dev, err := s.svc.Devices.Create(r.Context(), req.Name, req.Location, req.Serial)
	switch {
	case errors.Is(err, farm.ErrSavedLocally):
		// Partial success: the record exists locally, the backend call
		// did not go through.
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"device": dev,
			"error":  err.Error(),
		})
	case errors.Is(err, farm.ErrNotAuthenticated):
		s.writeError(w, http.StatusUnauthorized, err)
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.writeJSON(w, http.StatusCreated, map[string]any{"device": dev})
	}
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.Devices.Delete(id); err != nil {
		if errors.Is(err, farm.ErrRemoteDeviceDelete) {
			s.writeError(w, http.StatusForbidden, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard

type dashboardSnapshot struct {
	Selected  int                                 `json:"selected_device_id"`
	Devices   poll.State[[]api.Device]            `json:"devices"`
	Positions poll.State[[]api.Position]          `json:"positions"`
	Sensors   poll.State[[]display.SensorReading] `json:"sensors"`
	Events    poll.State[[]display.EventLog]      `json:"events"`
	Status    poll.State[*api.ControlStatus]      `json:"control_status"`
	Cooldowns map[string]int                      `json:"cooldowns"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d := s.svc.Dashboard

	cooldowns := make(map[string]int)
	for _, c := range []string{api.ComponentLED, api.ComponentPump1, api.ComponentPump2, api.ComponentFan} {
		if remaining := d.CooldownRemaining(c); remaining > 0 {
			cooldowns[c] = remaining
		}
	}

	s.writeJSON(w, http.StatusOK, dashboardSnapshot{
		Selected:  d.Selected(),
		Devices:   d.Devices(),
		Positions: d.Positions(),
		Sensors:   d.Sensors(),
		Events:    d.Events(),
		Status:    d.Status(),
		Cooldowns: cooldowns,
	})
}

type selectRequest struct {
	DeviceID int `json:"device_id"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == 0 {
		s.svc.Dashboard.Deselect()
	} else {
		// The selection's refresh loop must outlive this request, so it
		// runs under the server's base context, not the request's.
		s.svc.Dashboard.Select(s.baseCtx, req.DeviceID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.svc.Dashboard.Refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type controlRequest struct {
	Component string `json:"component"`
	Command   string `json:"command"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.svc.Dashboard.Command(r.Context(), req.Component, req.Command)
	switch {
	case errors.Is(err, poll.ErrCommandPending):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, poll.ErrNoDeviceSelected):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.svc.Dashboard.ResetAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Presets

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	userID := s.currentUserID()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"presets": s.svc.Presets.List(r.Context(), userID),
	})
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var p farm.Preset
	if err := decodeBody(r, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.svc.Presets.Create(r.Context(), p, s.currentUserID())
	switch {
	case errors.Is(err, farm.ErrSavedLocally):
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"preset": created,
			"error":  err.Error(),
		})
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.writeJSON(w, http.StatusCreated, map[string]any{"preset": created})
	}
}

func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	var p farm.Preset
	if err := decodeBody(r, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := s.svc.Presets.Update(r.Context(), mux.Vars(r)["id"], p, s.currentUserID())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"preset": updated})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Presets.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyPresetRequest struct {
	DeviceID int `json:"device_id"`
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req applyPresetRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.svc.Presets.Apply(r.Context(), mux.Vars(r)["id"], req.DeviceID)
	switch {
	case errors.Is(err, farm.ErrLocalPresetApply):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Logs and gallery

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs := s.svc.Logs.FormattedLogs(r.Context())
	logs = farm.FilterLogs(logs, q.Get("device"), q.Get("start"), q.Get("end"))
	logs = farm.SearchLogs(logs, q.Get("search"))
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	images, err := s.svc.Gallery.AllImages(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	if dev, err := strconv.Atoi(q.Get("device")); err == nil {
		images = farm.FilterImagesByDevice(images, dev)
	}
	images = farm.FilterImagesByDateRange(images, q.Get("start"), q.Get("end"))
	if mins, err := strconv.Atoi(q.Get("interval_minutes")); err == nil && mins > 0 {
		images = farm.FilterImagesByInterval(images, time.Duration(mins)*time.Minute)
	}
	images = farm.SearchImages(images, q.Get("search"))
	s.writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (s *Server) currentUserID() int {
	if u := s.svc.Auth.StoredUserInfo(); u != nil {
		return u.ID
	}
	return 0
}

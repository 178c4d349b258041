package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// ========== Control handlers ==========

// HandleConnect connects a device, optionally with a non-default idle window
func (s *RESTServer) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DurationSeconds int `json:"duration_seconds" validate:"min=0"`
	}

	// Body is optional for connect
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.validator.Validate(req); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	s.dispatch(w, r, models.Command{
		Type:     models.CommandConnect,
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	})
}

// HandleDisconnect disconnects a device
func (s *RESTServer) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, models.Command{Type: models.CommandDisconnect})
}

// HandleOpen fully opens a cover
func (s *RESTServer) HandleOpen(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, models.Command{Type: models.CommandOpen})
}

// HandleClose fully closes a cover
func (s *RESTServer) HandleClose(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, models.Command{Type: models.CommandClose})
}

// HandleStop halts any motion in progress
func (s *RESTServer) HandleStop(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, models.Command{Type: models.CommandStop})
}

// HandleFavorite moves a cover to its stored favorite position
func (s *RESTServer) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, models.Command{Type: models.CommandFavorite})
}

// HandlePosition moves a cover to a target position
func (s *RESTServer) HandlePosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.dispatch(w, r, models.Command{
		Type:     models.CommandPosition,
		Position: req.Position,
	})
}

// HandleTilt rotates a cover to a target tilt
func (s *RESTServer) HandleTilt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tilt int `json:"tilt"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.dispatch(w, r, models.Command{
		Type: models.CommandTilt,
		Tilt: req.Tilt,
	})
}

// HandleSpeed sets motor speed
func (s *RESTServer) HandleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed int `json:"speed"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.dispatch(w, r, models.Command{
		Type:  models.CommandSpeed,
		Speed: motion.SpeedLevel(req.Speed),
	})
}

// HandleStatus returns the device status, querying the motor when the
// cached snapshot is stale. ?refresh=1 bypasses the cache.
func (s *RESTServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	mac, err := motion.ParseMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	var snapshot models.StatusSnapshot
	if r.URL.Query().Get("refresh") == "1" {
		snapshot, err = s.manager.Dispatch(r.Context(), mac, models.Command{Type: models.CommandStatus})
	} else {
		snapshot, err = s.manager.Status(r.Context(), mac)
	}
	if err != nil {
		s.respondCommandError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"mac":              mac,
		"connection_state": s.manager.State(mac),
		"status":           snapshot,
	})
}

// HandleState returns the connection state without touching the radio
func (s *RESTServer) HandleState(w http.ResponseWriter, r *http.Request) {
	mac, err := motion.ParseMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"mac":              mac,
		"connection_state": s.manager.State(mac),
	})
}

// dispatch routes a command through the session manager and writes the
// outcome
func (s *RESTServer) dispatch(w http.ResponseWriter, r *http.Request, cmd models.Command) {
	mac, err := motion.ParseMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	snapshot, err := s.manager.Dispatch(r.Context(), mac, cmd)
	s.metrics.ObserveCommand(cmd.Type, err)
	if err != nil {
		s.respondCommandError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"mac":              mac,
		"command":          cmd.Type,
		"connection_state": s.manager.State(mac),
		"status":           snapshot,
	})
}

// respondCommandError maps dispatcher errors to HTTP status codes
func (s *RESTServer) respondCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownDevice):
		s.respondError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, models.ErrCapability):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrCommandTimeout):
		s.respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, models.ErrConnectionFailed), errors.Is(err, models.ErrLinkLost):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/storage"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// ========== Device handlers ==========

// HandleListDevices lists devices
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	devices, total, err := s.store.ListDevices(ctx, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   total,
	})
}

// HandleCreateDevice registers a device
func (s *RESTServer) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MAC         string `json:"mac" validate:"required"`
		Name        string `json:"name" validate:"required,min=1,max=100"`
		Description string `json:"description"`
		BlindType   string `json:"blind_type" validate:"required"`
		HasSpeed    bool   `json:"has_speed"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	mac, err := motion.ParseMAC(req.MAC)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	blindType := motion.BlindType(req.BlindType)
	if !blindType.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid blind type")
		return
	}

	device := &models.Device{
		MAC:         mac,
		Name:        req.Name,
		Description: req.Description,
		BlindType:   blindType,
		HasSpeed:    req.HasSpeed,
	}

	if err := s.store.CreateDevice(r.Context(), device); err != nil {
		if err == storage.ErrDuplicateKey {
			s.respondError(w, http.StatusConflict, "device already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, device)
}

// HandleGetDevice gets a device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mac, err := motion.ParseMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	device, err := s.store.GetDevice(ctx, mac)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"device":           device,
		"connection_state": s.manager.State(mac),
	})
}

// HandleUpdateDevice updates a device
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mac, err := motion.ParseMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	var req struct {
		Name        string `json:"name" validate:"required,min=1,max=100"`
		Description string `json:"description"`
		BlindType   string `json:"blind_type" validate:"required"`
		HasSpeed    bool   `json:"has_speed"`
		IsDisabled  bool   `json:"is_disabled"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	blindType := motion.BlindType(req.BlindType)
	if !blindType.Valid() {
		s.respondError(w, http.StatusBadRequest, "invalid blind type")
		return
	}

	device, err := s.store.GetDevice(ctx, mac)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	device.Name = req.Name
	device.Description = req.Description
	device.BlindType = blindType
	device.HasSpeed = req.HasSpeed
	device.IsDisabled = req.IsDisabled

	if err := s.store.UpdateDevice(ctx, device); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Cached sessions carry the old profile until recreated
	s.manager.Remove(mac)

	s.respondJSON(w, http.StatusOK, device)
}

// HandleDeleteDevice deletes a device
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mac, err := motion.ParseMAC(chi.URLParam(r, "mac"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid mac address")
		return
	}

	if err := s.store.DeleteDevice(ctx, mac); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "device not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.manager.Remove(mac)

	w.WriteHeader(http.StatusNoContent)
}

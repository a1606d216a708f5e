package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/device"
)

// handleListDevices returns all devices. ?type= filters by type, otherwise
// ?room= filters by room.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var devices []device.Device
	var err error
	switch {
	case q.Get("type") != "":
		devices, err = s.devices.ListByType(ctx, device.Type(q.Get("type")))
	case q.Get("room") != "":
		devices, err = s.devices.ListByRoom(ctx, q.Get("room"))
	default:
		devices, err = s.devices.List(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "Failed to fetch devices")
		return
	}
	writeList(w, "devices", devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logDomainError("failed to get device", err)
		writeDomainError(w, err, "Failed to fetch device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a device. It starts switched off unless
// the body supplies a state.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if dev.ID == "" || dev.Name == "" || dev.Type == "" || dev.ControlType == "" {
		writeBadRequest(w, "id, name, type, and control_type are required")
		return
	}
	if dev.State == nil {
		dev.State = device.State{"on": false}
	}
	dev.IsOnline = false
	dev.LastSeen = nil

	if err := device.ValidateDevice(&dev); err != nil {
		writeDomainError(w, err, "Failed to create device")
		return
	}
	if err := device.ValidateState(dev.State); err != nil {
		writeDomainError(w, err, "Failed to create device")
		return
	}

	ctx := r.Context()
	if err := s.devices.Create(ctx, &dev); err != nil {
		s.logDomainError("failed to create device", err)
		writeDomainError(w, err, "Failed to create device")
		return
	}
	created, err := s.devices.GetByID(ctx, dev.ID)
	if err != nil {
		writeDomainError(w, err, "Failed to create device")
		return
	}
	s.logger.Info("device created", "device_id", created.ID, "type", created.Type)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateDevice applies a partial profile update. State is only
// changed through commands and reports; is_online goes through SetOnline
// only when the body sets it.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var changes device.Changes
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	dev, err := s.devices.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "Failed to update device")
		return
	}
	dev.Apply(changes)
	if err := device.ValidateDevice(dev); err != nil {
		writeDomainError(w, err, "Failed to update device")
		return
	}
	if err := s.devices.Update(ctx, dev); err != nil {
		s.logDomainError("failed to update device", err)
		writeDomainError(w, err, "Failed to update device")
		return
	}
	if changes.IsOnline != nil {
		if err := s.devices.SetOnline(ctx, dev.ID, *changes.IsOnline); err != nil {
			s.logDomainError("failed to set device online flag", err)
			writeDomainError(w, err, "Failed to update device")
			return
		}
	}

	updated, err := s.devices.GetByID(ctx, dev.ID)
	if err != nil {
		writeDomainError(w, err, "Failed to update device")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteDevice removes a device. Its schedules cascade, so the
// scheduler is reloaded.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := s.devices.Delete(ctx, id); err != nil {
		s.logDomainError("failed to delete device", err)
		writeDomainError(w, err, "Failed to delete device")
		return
	}
	s.reloadSchedules(ctx)
	s.logger.Info("device deleted", "device_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Device deleted"})
}

// DeviceStatus is the response of GET /devices/{id}/status.
type DeviceStatus struct {
	ID       string       `json:"id"`
	State    device.State `json:"state"`
	IsOnline bool         `json:"is_online"`
	LastSeen *time.Time   `json:"last_seen"`
}

func (s *Server) handleGetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "Failed to fetch device status")
		return
	}
	writeJSON(w, http.StatusOK, DeviceStatus{
		ID:       dev.ID,
		State:    dev.State,
		IsOnline: dev.IsOnline,
		LastSeen: dev.LastSeen,
	})
}

// handleControlDevice sends the request body to the device as a command
// patch.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	var patch device.State
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.controller.Command(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.logDomainError("failed to control device", err)
		writeDomainError(w, err, "Failed to control device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Command sent",
		"device":  dev,
	})
}

func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.controller.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logDomainError("failed to toggle device", err)
		writeDomainError(w, err, "Failed to toggle device")
		return
	}

	message := "Device turned off"
	if dev.State.IsOn() {
		message = "Device turned on"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"device":  dev,
	})
}

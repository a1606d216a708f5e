package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/location"
	"github.com/nerrad567/homecore/internal/telemetry"
)

// RoomDetail is a room with its devices and latest environment reading.
type RoomDetail struct {
	location.Room
	Devices     []device.Device               `json:"devices"`
	Environment *telemetry.EnvironmentReading `json:"environment"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list rooms", "error", err)
		writeInternalError(w, "Failed to fetch rooms")
		return
	}
	writeList(w, "rooms", rooms)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	detail, err := s.roomDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logDomainError("failed to get room", err)
		writeDomainError(w, err, "Failed to fetch room")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// roomDetail loads a room, its devices and its latest environment reading.
func (s *Server) roomDetail(ctx context.Context, id string) (*RoomDetail, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	env, err := s.power.LatestEnvironment(ctx, id)
	if err != nil && !errors.Is(err, telemetry.ErrNoData) {
		return nil, err
	}
	return &RoomDetail{Room: *room, Devices: devices, Environment: env}, nil
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var room location.Room
	if err := json.NewDecoder(r.Body).Decode(&room); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if room.ID == "" || room.Name == "" {
		writeBadRequest(w, "id and name are required")
		return
	}
	if err := room.Validate(); err != nil {
		writeDomainError(w, err, "Failed to create room")
		return
	}

	if err := s.rooms.Create(r.Context(), &room); err != nil {
		s.logDomainError("failed to create room", err)
		writeDomainError(w, err, "Failed to create room")
		return
	}
	created, err := s.rooms.GetByID(r.Context(), room.ID)
	if err != nil {
		writeDomainError(w, err, "Failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var changes location.Changes
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := changes.Validate(); err != nil {
		writeDomainError(w, err, "Failed to update room")
		return
	}

	room, err := s.rooms.Update(r.Context(), chi.URLParam(r, "id"), changes)
	if err != nil {
		s.logDomainError("failed to update room", err)
		writeDomainError(w, err, "Failed to update room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.rooms.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.logDomainError("failed to delete room", err)
		writeDomainError(w, err, "Failed to delete room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Room deleted"})
}

func (s *Server) handleListRoomDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.rooms.GetByID(ctx, id); err != nil {
		writeDomainError(w, err, "Failed to fetch devices")
		return
	}
	devices, err := s.devices.ListByRoom(ctx, id)
	if err != nil {
		s.logger.Error("failed to list room devices", "room_id", id, "error", err)
		writeInternalError(w, "Failed to fetch devices")
		return
	}
	writeList(w, "devices", devices)
}

// logDomainError logs err unless it maps to a client error.
func (s *Server) logDomainError(msg string, err error) {
	if status, _, _ := classify(err); status >= http.StatusInternalServerError {
		s.logger.Error(msg, "error", err)
	}
}

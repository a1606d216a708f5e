package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/schedule"
)

// scheduleRequest is the body of POST /schedules. Enabled defaults to true.
type scheduleRequest struct {
	DeviceID       string       `json:"device_id"`
	Name           string       `json:"name"`
	CronExpression string       `json:"cron_expression"`
	Action         device.State `json:"action"`
	Enabled        *bool        `json:"enabled"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var schedules []schedule.Schedule
	var err error
	if deviceID := r.URL.Query().Get("device"); deviceID != "" {
		schedules, err = s.schedules.ListByDevice(ctx, deviceID)
	} else {
		schedules, err = s.schedules.List(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list schedules", "error", err)
		writeInternalError(w, "Failed to fetch schedules")
		return
	}
	writeList(w, "schedules", schedules)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	sched, err := s.schedules.GetByID(r.Context(), id)
	if err != nil {
		s.logDomainError("failed to get schedule", err)
		writeDomainError(w, err, "Failed to fetch schedule")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.Name == "" || req.CronExpression == "" || req.Action == nil {
		writeBadRequest(w, "device_id, name, cron_expression, and action are required")
		return
	}

	sched := &schedule.Schedule{
		DeviceID:       req.DeviceID,
		Name:           req.Name,
		CronExpression: req.CronExpression,
		Action:         req.Action,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}
	if err := sched.Validate(); err != nil {
		writeDomainError(w, err, "Failed to create schedule")
		return
	}

	ctx := r.Context()
	if err := s.schedules.Create(ctx, sched); err != nil {
		s.logDomainError("failed to create schedule", err)
		writeDomainError(w, err, "Failed to create schedule")
		return
	}
	s.afterScheduleChange(ctx, w, http.StatusCreated, sched.ID)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	var changes schedule.Changes
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	sched, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		writeDomainError(w, err, "Failed to update schedule")
		return
	}
	sched.Apply(changes)
	if err := sched.Validate(); err != nil {
		writeDomainError(w, err, "Failed to update schedule")
		return
	}
	if err := s.schedules.Update(ctx, sched); err != nil {
		s.logDomainError("failed to update schedule", err)
		writeDomainError(w, err, "Failed to update schedule")
		return
	}
	s.afterScheduleChange(ctx, w, http.StatusOK, id)
}

func (s *Server) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.schedules.Toggle(ctx, id); err != nil {
		s.logDomainError("failed to toggle schedule", err)
		writeDomainError(w, err, "Failed to toggle schedule")
		return
	}
	s.afterScheduleChange(ctx, w, http.StatusOK, id)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.schedules.Delete(ctx, id); err != nil {
		s.logDomainError("failed to delete schedule", err)
		writeDomainError(w, err, "Failed to delete schedule")
		return
	}
	s.reloadSchedules(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Schedule deleted"})
}

// afterScheduleChange reloads the scheduler and responds with the stored
// schedule including its joined device and room names.
func (s *Server) afterScheduleChange(ctx context.Context, w http.ResponseWriter, status int, id int64) {
	s.reloadSchedules(ctx)
	sched, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		writeDomainError(w, err, "Failed to fetch schedule")
		return
	}
	writeJSON(w, status, sched)
}

func scheduleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeNotFound(w, "Schedule not found")
		return 0, false
	}
	return id, true
}

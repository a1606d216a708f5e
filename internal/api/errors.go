package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
	"github.com/nerrad567/homecore/internal/location"
	"github.com/nerrad567/homecore/internal/schedule"
	"github.com/nerrad567/homecore/internal/telemetry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeConflict           = "conflict"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodeBrokerUnavailable  = "broker_unavailable"
	ErrCodeCommandFailed      = "command_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeList writes the {"<plural>": [...], "count": n} envelope.
func writeList[T any](w http.ResponseWriter, plural string, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{plural: items, "count": len(items)})
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain sentinel onto its HTTP status. fallback is
// the message used for unexpected errors, which are logged by the caller.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		message = fallback
	}
	writeError(w, status, code, message)
}

// classify returns the status, code and client-facing message for err.
func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Device not found"
	case errors.Is(err, location.ErrRoomNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Room not found"
	case errors.Is(err, schedule.ErrScheduleNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Schedule not found"
	case errors.Is(err, automation.ErrSceneNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Scene not found"
	case errors.Is(err, telemetry.ErrNoData):
		return http.StatusNotFound, ErrCodeNotFound, "No power data found for device"

	case errors.Is(err, device.ErrDeviceExists):
		return http.StatusConflict, ErrCodeConflict, "Device ID already exists"
	case errors.Is(err, location.ErrRoomExists):
		return http.StatusConflict, ErrCodeConflict, "Room ID already exists"
	case errors.Is(err, automation.ErrSceneExists):
		return http.StatusConflict, ErrCodeConflict, "Scene ID already exists"

	case errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidState),
		errors.Is(err, location.ErrInvalidRoom),
		errors.Is(err, schedule.ErrInvalidCron),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, automation.ErrInvalidScene):
		return http.StatusBadRequest, ErrCodeValidation, err.Error()

	case errors.Is(err, mqtt.ErrNotConnected):
		return http.StatusServiceUnavailable, ErrCodeBrokerUnavailable, "MQTT broker not connected"
	case errors.Is(err, device.ErrCommandFailed):
		return http.StatusBadGateway, ErrCodeCommandFailed, "Failed to send command to device"
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
}

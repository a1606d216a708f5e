package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/telemetry"
)

const (
	defaultHistoryHours = 24
	defaultHistoryLimit = 1000
	defaultHourlyHours  = 24
	defaultDailyDays    = 30
	maxHistoryLimit     = 10000
)

// handlePowerSummary returns the whole-home draw with a 24h cost
// projection. ?rate= overrides the configured tariff.
func (s *Server) handlePowerSummary(w http.ResponseWriter, r *http.Request) {
	devices, err := s.power.CurrentPower(r.Context())
	if err != nil {
		s.logger.Error("failed to read current power", "error", err)
		writeInternalError(w, "Failed to fetch power summary")
		return
	}
	rate, ok := s.rate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, telemetry.Summarize(devices, rate, s.telCfg.Currency))
}

func (s *Server) handleRoomPower(w http.ResponseWriter, r *http.Request) {
	room, err := s.power.RoomPower(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		s.logDomainError("failed to read room power", err)
		writeDomainError(w, err, "Failed to fetch room power")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handlePowerHistory(w http.ResponseWriter, r *http.Request) {
	hours, ok := positiveQueryInt(w, r, "hours", defaultHistoryHours)
	if !ok {
		return
	}
	limit, ok := positiveQueryInt(w, r, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	limit = min(limit, maxHistoryLimit)

	deviceID := chi.URLParam(r, "deviceId")
	since := s.now().UTC().Add(-time.Duration(hours) * time.Hour)
	readings, err := s.power.PowerHistory(r.Context(), deviceID, since, limit)
	if err != nil {
		s.logger.Error("failed to read power history", "device_id", deviceID, "error", err)
		writeInternalError(w, "Failed to fetch power history")
		return
	}
	if readings == nil {
		readings = []telemetry.PowerReading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"hours":     hours,
		"readings":  readings,
		"count":     len(readings),
	})
}

func (s *Server) handlePowerHourly(w http.ResponseWriter, r *http.Request) {
	hours, ok := positiveQueryInt(w, r, "hours", defaultHourlyHours)
	if !ok {
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	since := s.now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.power.HourlyPower(r.Context(), deviceID, since)
	if err != nil {
		s.logger.Error("failed to read hourly power", "device_id", deviceID, "error", err)
		writeInternalError(w, "Failed to fetch hourly power")
		return
	}
	if stats == nil {
		stats = []telemetry.HourlyStat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"hours":     hours,
		"stats":     stats,
	})
}

func (s *Server) handlePowerDaily(w http.ResponseWriter, r *http.Request) {
	days, ok := positiveQueryInt(w, r, "days", defaultDailyDays)
	if !ok {
		return
	}
	rate, ok := s.rate(w, r)
	if !ok {
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	since := s.now().UTC().AddDate(0, 0, -days)
	stats, err := s.power.DailyPower(r.Context(), deviceID, since)
	if err != nil {
		s.logger.Error("failed to read daily power", "device_id", deviceID, "error", err)
		writeInternalError(w, "Failed to fetch daily power")
		return
	}
	if stats == nil {
		stats = []telemetry.DailyStat{}
	}
	telemetry.PriceDaily(stats, rate)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":    deviceID,
		"days":         days,
		"rate_per_kwh": rate,
		"currency":     s.telCfg.Currency,
		"stats":        stats,
	})
}

func (s *Server) handlePowerLatest(w http.ResponseWriter, r *http.Request) {
	reading, err := s.power.LatestPower(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		s.logDomainError("failed to read latest power", err)
		writeDomainError(w, err, "Failed to fetch latest power")
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// rate returns ?rate= or the configured tariff.
func (s *Server) rate(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("rate")
	if raw == "" {
		if s.telCfg.RatePerKWh > 0 {
			return s.telCfg.RatePerKWh, true
		}
		return telemetry.DefaultRatePerKWh, true
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate <= 0 {
		writeBadRequest(w, "rate must be a positive number")
		return 0, false
	}
	return rate, true
}

func positiveQueryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeBadRequest(w, key+" must be a positive integer")
		return 0, false
	}
	return n, true
}

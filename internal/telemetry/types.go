package telemetry

import (
	"math"
	"time"
)

// PowerReading is one power sample for a device.
type PowerReading struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	PowerWatts  float64   `json:"power_watts"`
	Voltage     *float64  `json:"voltage"`
	CurrentAmps *float64  `json:"current_amps"`
	Timestamp   time.Time `json:"timestamp"`
}

// EnvironmentReading is one temperature/humidity sample for a room.
type EnvironmentReading struct {
	ID          int64     `json:"id,omitempty"`
	RoomID      string    `json:"room_id"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// HourlyStat aggregates one hour of a device's readings.
type HourlyStat struct {
	Hour     string  `json:"hour"`
	AvgPower float64 `json:"avg_power"`
	MaxPower float64 `json:"max_power"`
	MinPower float64 `json:"min_power"`
	Samples  int     `json:"samples"`
}

// DailyStat aggregates one day. KWhEstimated assumes the average draw held
// for the whole day.
type DailyStat struct {
	Date         string  `json:"date"`
	KWhEstimated float64 `json:"kwh_estimated"`
	AvgPower     float64 `json:"avg_power"`
	MaxPower     float64 `json:"max_power"`
	Cost         float64 `json:"cost"`
}

// DevicePower is the latest reading of one metered device. PowerWatts is
// nil when the device never reported.
type DevicePower struct {
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	RoomName   *string    `json:"room_name"`
	PowerWatts *float64   `json:"power_watts"`
	Timestamp  *time.Time `json:"timestamp"`
}

// RoomPower sums the latest readings of a room's metered devices.
type RoomPower struct {
	RoomID          string        `json:"room_id"`
	TotalPowerWatts float64       `json:"total_power_watts"`
	Devices         []DevicePower `json:"devices"`
}

// Summary is the whole-home energy snapshot.
type Summary struct {
	CurrentPowerWatts  float64       `json:"current_power_watts"`
	DeviceCount        int           `json:"device_count"`
	Devices            []DevicePower `json:"devices"`
	EstimatedDailyKWh  float64       `json:"estimated_daily_kwh"`
	EstimatedDailyCost float64       `json:"estimated_daily_cost"`
	Currency           string        `json:"currency"`
}

// DefaultRatePerKWh is the tariff used when none is configured.
const DefaultRatePerKWh = 6.0

// Summarize projects the current draw over 24 hours and prices it.
func Summarize(devices []DevicePower, ratePerKWh float64, currency string) Summary {
	if ratePerKWh <= 0 {
		ratePerKWh = DefaultRatePerKWh
	}
	var total float64
	for _, d := range devices {
		if d.PowerWatts != nil {
			total += *d.PowerWatts
		}
	}
	kwh := EstimateKWh(total)
	return Summary{
		CurrentPowerWatts:  total,
		DeviceCount:        len(devices),
		Devices:            devices,
		EstimatedDailyKWh:  round2(kwh),
		EstimatedDailyCost: round2(kwh * ratePerKWh),
		Currency:           currency,
	}
}

// EstimateKWh converts a constant draw in watts to energy over one day.
func EstimateKWh(watts float64) float64 {
	return watts * 24 / 1000
}

// PriceDaily fills in the cost of each day at the given tariff.
func PriceDaily(stats []DailyStat, ratePerKWh float64) {
	if ratePerKWh <= 0 {
		ratePerKWh = DefaultRatePerKWh
	}
	for i := range stats {
		stats[i].Cost = round2(stats[i].KWhEstimated * ratePerKWh)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package storage

import (
	"time"

	"gorm.io/gorm"
)

// Reading is one archived sample row. The archive exists for operator
// queries and daily stats; the live snapshot never depends on it.
type Reading struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	ACVoltage        float64 `json:"ac_voltage"`
	GridFreqHz       float64 `json:"grid_freq_hz"`
	InverterTempC    float64 `json:"inverter_temp_c"`
	PowerW           int     `json:"power_w"`
	EnergyTodayWh    float64 `json:"energy_today_wh"`
	EnergyLifetimeWh float64 `json:"energy_lifetime_wh"`
	StatusCode       uint16  `json:"status_code"`
	Night            bool    `json:"night"`
}

type DailyStats struct {
	Date          time.Time `json:"date"`
	MaxPowerW     int       `json:"max_power_w"`
	EnergyKWh     float64   `json:"energy_kwh"`
	AvgTempC      float64   `json:"avg_temp_c"`
	ReadingsCount int64     `json:"readings_count"`
}

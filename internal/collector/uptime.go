package collector

import (
	"math"
	"time"
)

// Power at or below this is treated as standby noise, not production.
const productionNoiseFloorW = 5

// UptimeAccumulator tracks minutes of active production for the current day.
// It only ever grows between rollovers.
type UptimeAccumulator struct {
	minutes float64
}

func NewUptimeAccumulator() *UptimeAccumulator {
	return &UptimeAccumulator{}
}

// Observe adds the elapsed time since the previous sample when the inverter
// is actually producing. The increment is capped at twice the poll interval
// so an outage followed by recovery cannot inflate the total. Returns the
// accumulated minutes.
func (u *UptimeAccumulator) Observe(now time.Time, prevSample *time.Time, powerW int, night bool, interval time.Duration) float64 {
	if night || powerW <= productionNoiseFloorW || prevSample == nil {
		return u.minutes
	}

	elapsed := now.Sub(*prevSample).Minutes()
	if maxGap := (2 * interval).Minutes(); elapsed > maxGap {
		elapsed = maxGap
	}
	if elapsed > 0 {
		u.minutes = math.Round((u.minutes+elapsed)*10) / 10
	}
	return u.minutes
}

func (u *UptimeAccumulator) Minutes() float64 {
	return u.minutes
}

// Restore seeds the accumulator from a persisted snapshot.
func (u *UptimeAccumulator) Restore(minutes float64) {
	if minutes > 0 {
		u.minutes = minutes
	}
}

// Reset zeroes the accumulator. Called at midnight rollover.
func (u *UptimeAccumulator) Reset() {
	u.minutes = 0
}

package collector

import (
	"time"
)

// HistoryCapacity bounds the rolling chart history: one day of samples at a
// five-minute cadence.
const HistoryCapacity = 288

// HistoryRecord is one point on the dashboard chart. Immutable once appended.
type HistoryRecord struct {
	Timestamp time.Time `json:"timestamp"`
	PowerW    int       `json:"power_w"`
	EnergyWh  int       `json:"energy_wh"`
}

// HistoryBuffer is a bounded FIFO of recent samples in append order.
type HistoryBuffer struct {
	records []HistoryRecord
}

func NewHistoryBuffer() *HistoryBuffer {
	return &HistoryBuffer{}
}

// Append adds a record, evicting the oldest when the buffer is full.
func (b *HistoryBuffer) Append(rec HistoryRecord) {
	if len(b.records) >= HistoryCapacity {
		b.records = b.records[1:]
	}
	b.records = append(b.records, rec)
}

// Reset clears the buffer. Called at midnight rollover.
func (b *HistoryBuffer) Reset() {
	b.records = nil
}

// Restore replaces the buffer contents from a persisted snapshot, keeping
// only the newest HistoryCapacity records.
func (b *HistoryBuffer) Restore(records []HistoryRecord) {
	if len(records) > HistoryCapacity {
		records = records[len(records)-HistoryCapacity:]
	}
	b.records = append([]HistoryRecord(nil), records...)
}

func (b *HistoryBuffer) Len() int {
	return len(b.records)
}

// Records returns a copy of the buffer in chronological order.
func (b *HistoryBuffer) Records() []HistoryRecord {
	return append([]HistoryRecord(nil), b.records...)
}

// Snapshot is the externally visible state of the daemon. It is owned by the
// Collector for writes; everyone else gets a copy via Clone.
type Snapshot struct {
	DryRun            bool       `json:"dry_run"`
	InverterConnected bool       `json:"inverter_connected"`
	LastUpload        *time.Time `json:"last_upload"`
	LastSampleTS      *time.Time `json:"last_sample_ts"`
	UptimeMinutes     float64    `json:"uptime_minutes_today"`

	ACVoltage     *float64 `json:"ac_voltage"`
	GridFreqHz    *float64 `json:"grid_freq_hz"`
	InverterTempC *float64 `json:"inverter_temp_c"`

	EnergyTodayKWh float64  `json:"energy_today_kwh"`
	EnergyTotalKWh *float64 `json:"energy_total_kwh"`
	PeakPowerW     int      `json:"peak_power_w"`

	StatusCode  *uint16 `json:"status_code"`
	StatusText  string  `json:"status_text"`
	StatusClass string  `json:"status_class"`
	DQText      string  `json:"dq_text"`
	DQClass     string  `json:"dq_class"`

	Records []HistoryRecord `json:"records"`

	// Midnight records the day boundary of the last rollover performed.
	Midnight *time.Time `json:"midnight"`
}

// NewSnapshot returns the empty default used at first startup and whenever a
// persisted snapshot cannot be restored.
func NewSnapshot(dryRun bool) Snapshot {
	return Snapshot{
		DryRun:      dryRun,
		StatusText:  "Unknown",
		StatusClass: "muted",
		DQText:      QualityNoData.Text,
		DQClass:     QualityNoData.Class,
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.LastUpload = copyTime(s.LastUpload)
	out.LastSampleTS = copyTime(s.LastSampleTS)
	out.Midnight = copyTime(s.Midnight)
	out.ACVoltage = copyFloat(s.ACVoltage)
	out.GridFreqHz = copyFloat(s.GridFreqHz)
	out.InverterTempC = copyFloat(s.InverterTempC)
	out.EnergyTotalKWh = copyFloat(s.EnergyTotalKWh)
	if s.StatusCode != nil {
		code := *s.StatusCode
		out.StatusCode = &code
	}
	out.Records = append([]HistoryRecord(nil), s.Records...)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

package collector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const baselineFileName = "energy_baseline.json"

type baselineRecord struct {
	Day string  `json:"day"`
	Wh  float64 `json:"wh"`
}

// BaselineTracker converts the inverter's lifetime energy counter into
// "energy produced today". The baseline is the counter value seen at the
// first sample of the day; it lives in its own file, independent of the main
// snapshot, so a crash mid-cycle cannot desynchronize daily accounting.
type BaselineTracker struct {
	path string
	log  *zap.Logger
	rec  *baselineRecord
}

func NewBaselineTracker(stateDir string, log *zap.Logger) *BaselineTracker {
	t := &BaselineTracker{
		path: filepath.Join(stateDir, baselineFileName),
		log:  log,
	}
	t.rec = t.readFile()
	return t
}

// DailyEnergyWh returns today's produced energy for the given lifetime
// counter value. With no baseline, on a new day, or after a counter rollback
// (device reboot) the reading becomes the new baseline and the result is 0.
func (t *BaselineTracker) DailyEnergyWh(lifetimeWh float64, day string) float64 {
	if t.rec == nil || t.rec.Day != day || lifetimeWh < t.rec.Wh {
		t.anchor(day, lifetimeWh)
		return 0
	}
	return lifetimeWh - t.rec.Wh
}

// Reset discards the stored baseline so the next sample re-anchors it.
// Called at midnight rollover.
func (t *BaselineTracker) Reset() {
	t.rec = nil
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		t.log.Warn("baseline remove failed", zap.Error(err))
	}
}

func (t *BaselineTracker) anchor(day string, wh float64) {
	t.rec = &baselineRecord{Day: day, Wh: wh}
	if err := t.writeFile(*t.rec); err != nil {
		t.log.Warn("baseline write failed", zap.Error(err))
	}
}

func (t *BaselineTracker) readFile() *baselineRecord {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warn("baseline read failed", zap.Error(err))
		}
		return nil
	}

	var rec baselineRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.log.Warn("baseline file corrupt, re-anchoring on next sample", zap.Error(err))
		return nil
	}
	return &rec
}

// writeFile persists the baseline via temp file + fsync + rename, matching
// the snapshot's crash-safety guarantee.
func (t *BaselineTracker) writeFile(rec baselineRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return atomicWrite(t.path, payload)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

package collector

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/DavidDeeds/vsn300-pvoutput/internal/inverter"

	"go.uber.org/zap"
)

// Uploader forwards one sample to the reporting service, best effort.
// Implemented by the PVOutput client.
type Uploader interface {
	Send(now time.Time, powerW int, energyTodayWh float64, voltageV, tempC *float64) error
}

// Archiver stores successful samples for historical queries. Implemented by
// the sqlite readings store.
type Archiver interface {
	SaveSample(sample *inverter.Sample, energyTodayWh float64, night bool) error
}

// Publisher pushes the refreshed snapshot to a message broker.
type Publisher interface {
	PublishSnapshot(snap Snapshot) error
}

// Collector owns the shared snapshot and runs one poll cycle per interval:
// midnight check, device read, accounting, persistence, upload, freshness
// grading. Cycles are strictly sequential; partial failures degrade the
// snapshot but never stop the loop.
type Collector struct {
	device    *inverter.VSN300
	baseline  *BaselineTracker
	uptime    *UptimeAccumulator
	history   *HistoryBuffer
	persister *StatePersister
	uploader  Uploader
	archive   Archiver
	publisher Publisher
	interval  time.Duration
	enabled   bool
	log       *zap.Logger

	mu         sync.RWMutex
	snap       Snapshot
	collecting bool
}

type Config struct {
	Device    *inverter.VSN300
	StateDir  string
	Uploader  Uploader
	Archive   Archiver
	Publisher Publisher
	Interval  time.Duration
	Enabled   bool
	DryRun    bool
	Logger    *zap.Logger
}

func NewCollector(cfg Config) *Collector {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		device:    cfg.Device,
		baseline:  NewBaselineTracker(cfg.StateDir, log),
		uptime:    NewUptimeAccumulator(),
		history:   NewHistoryBuffer(),
		persister: NewStatePersister(cfg.StateDir, log),
		uploader:  cfg.Uploader,
		archive:   cfg.Archive,
		publisher: cfg.Publisher,
		interval:  cfg.Interval,
		enabled:   cfg.Enabled,
		log:       log,
		snap:      NewSnapshot(cfg.DryRun),
	}
}

// Start runs the poll loop until ctx is cancelled. The inter-cycle sleep is
// interruptible, so shutdown latency is bounded by the ticker, not a cycle.
func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled {
		c.log.Info("collector is disabled")
		return nil
	}

	c.restore()

	c.mu.Lock()
	c.collecting = true
	c.mu.Unlock()

	c.log.Info("starting collector", zap.Duration("interval", c.interval))

	c.runCycle(time.Now())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("collector stopped")
			c.mu.Lock()
			c.collecting = false
			c.mu.Unlock()
			return nil
		case now := <-ticker.C:
			c.runCycle(now)
		}
	}
}

// Snapshot returns a consistent point-in-time copy of the shared state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

func (c *Collector) IsCollecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collecting
}

func (c *Collector) Interval() time.Duration {
	return c.interval
}

// ReadRawBlock is the diagnostics pass-through for the /raw endpoint.
func (c *Collector) ReadRawBlock() ([]uint16, error) {
	return c.device.ReadRawBlock()
}

func (c *Collector) restore() {
	snap, ok := c.persister.Load()
	if !ok {
		return
	}

	c.mu.Lock()
	dryRun := c.snap.DryRun
	c.snap = *snap
	c.snap.DryRun = dryRun
	c.history.Restore(snap.Records)
	c.snap.Records = c.history.Records()
	c.uptime.Restore(snap.UptimeMinutes)
	c.mu.Unlock()
}

// runCycle executes one full pass of the cycle state machine.
func (c *Collector) runCycle(now time.Time) {
	c.checkMidnight(now)

	sample, err := c.device.ReadSample()
	if err != nil {
		c.markOffline(err)
		c.persist()
	} else {
		night := c.account(sample, now)
		c.persist()
		c.uploadAndArchive(sample, now, night)
	}

	c.gradeQuality(now)
	c.publish()
}

// checkMidnight performs the day-rollover reset exactly once per day:
// baseline discarded, uptime and peak zeroed, chart history cleared.
func (c *Collector) checkMidnight(now time.Time) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	c.mu.RLock()
	last := c.snap.Midnight
	c.mu.RUnlock()
	if last != nil && !last.Before(midnight) {
		return
	}

	c.log.Info("midnight rollover, resetting daily accounting")
	c.baseline.Reset()
	c.uptime.Reset()

	c.mu.Lock()
	c.history.Reset()
	c.snap.Midnight = &midnight
	c.snap.UptimeMinutes = 0
	c.snap.PeakPowerW = 0
	c.snap.Records = nil
	c.mu.Unlock()
}

// markOffline degrades the snapshot after a failed read: connectivity down,
// live fields cleared, status Offline. Daily totals are left untouched.
func (c *Collector) markOffline(err error) {
	switch {
	case errors.Is(err, inverter.ErrDecode):
		c.log.Warn("register block decode failed", zap.Error(err))
	case errors.Is(err, inverter.ErrDeviceUnreachable):
		c.log.Warn("inverter unreachable", zap.Error(err))
	default:
		c.log.Warn("poll failed", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.InverterConnected = false
	c.snap.StatusText = "Offline"
	c.snap.StatusClass = inverter.ClassMuted
	c.snap.ACVoltage = nil
	c.snap.GridFreqHz = nil
	c.snap.InverterTempC = nil
}

// account folds a successful sample into the snapshot: daily energy via the
// baseline, status classification with night override, peak power, uptime,
// and the chart history. Reports whether the cycle was night-classified.
func (c *Collector) account(sample *inverter.Sample, now time.Time) bool {
	day := dayKey(now)
	energyTodayWh := c.baseline.DailyEnergyWh(sample.EnergyLifetimeWh, day)

	voltage := inverter.PlausibleVoltage(sample.ACVoltage)
	night := inverter.IsNight(voltage, true)
	statusText, statusClass := inverter.ClassifyStatus(sample.StatusCode, voltage, true)

	freq := sample.GridFreqHz
	temp := sample.TempC
	code := sample.StatusCode
	totalKWh := roundTo(sample.EnergyLifetimeWh/1000, 3)

	c.mu.Lock()
	prevTS := c.snap.LastSampleTS

	c.snap.ACVoltage = voltage
	c.snap.GridFreqHz = &freq
	c.snap.InverterTempC = &temp
	c.snap.EnergyTodayKWh = roundTo(energyTodayWh/1000, 3)
	c.snap.EnergyTotalKWh = &totalKWh
	c.snap.StatusCode = &code
	c.snap.StatusText = statusText
	c.snap.StatusClass = statusClass
	if sample.PowerW > c.snap.PeakPowerW {
		c.snap.PeakPowerW = sample.PowerW
	}
	// Night counts as disconnected for freshness purposes: the device is
	// asleep, not reporting live production.
	c.snap.InverterConnected = !night

	c.snap.UptimeMinutes = c.uptime.Observe(now, prevTS, sample.PowerW, night, c.interval)

	ts := now
	c.snap.LastSampleTS = &ts

	c.history.Append(HistoryRecord{
		Timestamp: now,
		PowerW:    sample.PowerW,
		EnergyWh:  int(math.Round(energyTodayWh)),
	})
	c.snap.Records = c.history.Records()
	c.mu.Unlock()

	c.log.Debug("sample accounted",
		zap.Int("power_w", sample.PowerW),
		zap.Float64("energy_today_wh", energyTodayWh),
		zap.Uint16("status_code", sample.StatusCode),
		zap.Bool("night", night))

	return night
}

// uploadAndArchive forwards the sample to PVOutput (unless asleep) and to
// the readings archive. Neither failure affects the cycle.
func (c *Collector) uploadAndArchive(sample *inverter.Sample, now time.Time, night bool) {
	c.mu.RLock()
	energyTodayKWh := c.snap.EnergyTodayKWh
	voltage := copyFloat(c.snap.ACVoltage)
	temp := copyFloat(c.snap.InverterTempC)
	c.mu.RUnlock()
	energyTodayWh := energyTodayKWh * 1000

	if c.uploader != nil {
		if night {
			c.log.Info("nighttime, skipping upload")
		} else if err := c.uploader.Send(now, sample.PowerW, energyTodayWh, voltage, temp); err != nil {
			c.log.Warn("upload failed", zap.Error(err))
		} else {
			c.mu.Lock()
			ts := now
			c.snap.LastUpload = &ts
			c.mu.Unlock()
		}
	}

	if c.archive != nil {
		if err := c.archive.SaveSample(sample, energyTodayWh, night); err != nil {
			c.log.Warn("archive write failed", zap.Error(err))
		}
	}
}

// gradeQuality always runs, even after a failed read, using the timestamp of
// the last successful sample.
func (c *Collector) gradeQuality(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := GradeFreshness(c.snap.LastSampleTS, now, c.interval, c.snap.InverterConnected)
	c.snap.DQText = q.Text
	c.snap.DQClass = q.Class
}

// persist writes the current snapshot to disk. The copy happens under the
// lock; the disk I/O does not.
func (c *Collector) persist() {
	snap := c.Snapshot()
	if err := c.persister.Save(&snap); err != nil {
		c.log.Warn("state save failed", zap.Error(err))
	}
}

func (c *Collector) publish() {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSnapshot(c.Snapshot()); err != nil {
		c.log.Warn("mqtt publish failed", zap.Error(err))
	}
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

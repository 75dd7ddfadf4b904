package collector

import (
	"errors"
	"testing"
	"time"

	"github.com/DavidDeeds/vsn300-pvoutput/internal/inverter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	regs []uint16
	err  error
}

func (f *fakeSource) ReadHoldingBlock(address uint16, quantity uint16) ([]uint16, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.regs, nil
}

type uploadCall struct {
	powerW        int
	energyTodayWh float64
	voltageV      *float64
	tempC         *float64
}

type fakeUploader struct {
	calls []uploadCall
	err   error
}

func (f *fakeUploader) Send(now time.Time, powerW int, energyTodayWh float64, voltageV, tempC *float64) error {
	f.calls = append(f.calls, uploadCall{powerW, energyTodayWh, voltageV, tempC})
	return f.err
}

func testBlock(voltageV float64, powerW int, statusCode uint16, lifetimeWh uint32) []uint16 {
	regs := make([]uint16, inverter.RegBlockLength)
	regs[inverter.OffACVoltage] = uint16(voltageV * 10)
	regs[inverter.OffActivePower] = uint16(powerW)
	regs[inverter.OffGridFreq] = 5002
	regs[inverter.OffStatusCode] = statusCode
	regs[inverter.OffTemperature] = 412
	regs[inverter.OffEnergyLow] = uint16(lifetimeWh >> 16)
	regs[inverter.OffEnergyHigh] = uint16(lifetimeWh & 0xFFFF)
	regs[inverter.OffEnergyScale] = 0
	return regs
}

func newTestCollector(t *testing.T, source *fakeSource, uploader Uploader) *Collector {
	t.Helper()
	return NewCollector(Config{
		Device:   inverter.NewVSN300(source),
		StateDir: t.TempDir(),
		Uploader: uploader,
		Interval: 300 * time.Second,
		Enabled:  true,
		Logger:   zap.NewNop(),
	})
}

func TestCycleFirstSampleAnchorsBaseline(t *testing.T) {
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}
	uploader := &fakeUploader{}
	c := newTestCollector(t, source, uploader)

	day1 := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	c.runCycle(day1)

	snap := c.Snapshot()
	assert.True(t, snap.InverterConnected)
	assert.Equal(t, 0.0, snap.EnergyTodayKWh, "first sample of the day anchors the baseline")
	assert.Equal(t, "ON", snap.StatusText)
	assert.Equal(t, inverter.ClassOK, snap.StatusClass)
	assert.Equal(t, 1850, snap.PeakPowerW)
	assert.Equal(t, QualityLive.Text, snap.DQText)
	require.NotNil(t, snap.ACVoltage)
	assert.InDelta(t, 230.4, *snap.ACVoltage, 0.001)
	require.NotNil(t, snap.EnergyTotalKWh)
	assert.InDelta(t, 123.456, *snap.EnergyTotalKWh, 0.001)
	require.NotNil(t, snap.LastSampleTS)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, 0, snap.Records[0].EnergyWh)

	// Counter grows: energy-today follows it.
	source.regs = testBlock(230.4, 2100, inverter.StatusOn, 123956)
	c.runCycle(day1.Add(5 * time.Minute))

	snap = c.Snapshot()
	assert.InDelta(t, 0.5, snap.EnergyTodayKWh, 0.0001)
	assert.Equal(t, 2100, snap.PeakPowerW)
	assert.InDelta(t, 5.0, snap.UptimeMinutes, 0.001)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, 500, snap.Records[1].EnergyWh)
}

func TestCycleDeviceFailure(t *testing.T) {
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}
	c := newTestCollector(t, source, &fakeUploader{})

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	c.runCycle(now)

	// Device drops off the network: connectivity and live fields degrade,
	// daily totals survive.
	source.err = errors.New("connection refused")
	c.runCycle(now.Add(5 * time.Minute))

	snap := c.Snapshot()
	assert.False(t, snap.InverterConnected)
	assert.Equal(t, "Offline", snap.StatusText)
	assert.Equal(t, inverter.ClassMuted, snap.StatusClass)
	assert.Nil(t, snap.ACVoltage)
	assert.Nil(t, snap.GridFreqHz)
	assert.Nil(t, snap.InverterTempC)
	assert.Equal(t, QualityOffline.Text, snap.DQText)
	assert.Equal(t, 1850, snap.PeakPowerW, "peak survives a failed cycle")
	require.Len(t, snap.Records, 1, "no record appended on failure")
	require.NotNil(t, snap.LastSampleTS, "last good sample timestamp is kept")

	// Recovery on the next cycle.
	source.err = nil
	c.runCycle(now.Add(10 * time.Minute))
	snap = c.Snapshot()
	assert.True(t, snap.InverterConnected)
	assert.Equal(t, QualityLive.Text, snap.DQText)
}

func TestCycleShortBlockIsDecodeFailure(t *testing.T) {
	source := &fakeSource{regs: []uint16{1, 2, 3}}
	c := newTestCollector(t, source, &fakeUploader{})

	c.runCycle(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	snap := c.Snapshot()
	assert.False(t, snap.InverterConnected)
	assert.Equal(t, "Offline", snap.StatusText)
	assert.Empty(t, snap.Records)
}

func TestCycleUpload(t *testing.T) {
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}
	uploader := &fakeUploader{}
	c := newTestCollector(t, source, uploader)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	c.runCycle(now)
	source.regs = testBlock(230.4, 1900, inverter.StatusOn, 123956)
	c.runCycle(now.Add(5 * time.Minute))

	require.Len(t, uploader.calls, 2)
	assert.Equal(t, 1850, uploader.calls[0].powerW)
	assert.Equal(t, 0.0, uploader.calls[0].energyTodayWh)
	assert.Equal(t, 1900, uploader.calls[1].powerW)
	assert.InDelta(t, 500.0, uploader.calls[1].energyTodayWh, 0.001)
	require.NotNil(t, uploader.calls[1].voltageV)
	assert.InDelta(t, 230.4, *uploader.calls[1].voltageV, 0.001)
	require.NotNil(t, uploader.calls[1].tempC)

	snap := c.Snapshot()
	require.NotNil(t, snap.LastUpload)
}

func TestCycleUploadAtZeroPowerWhileAwake(t *testing.T) {
	// The inverter is awake but producing nothing: the zero status still
	// goes out.
	source := &fakeSource{regs: testBlock(230.4, 0, inverter.StatusOn, 123456)}
	uploader := &fakeUploader{}
	c := newTestCollector(t, source, uploader)

	c.runCycle(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	require.Len(t, uploader.calls, 1)
	assert.Equal(t, 0, uploader.calls[0].powerW)
}

func TestCycleUploadFailureDoesNotDegrade(t *testing.T) {
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}
	uploader := &fakeUploader{err: errors.New("503")}
	c := newTestCollector(t, source, uploader)

	c.runCycle(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	snap := c.Snapshot()
	assert.Nil(t, snap.LastUpload)
	assert.True(t, snap.InverterConnected, "upload failure never affects connectivity")
	assert.Equal(t, QualityLive.Text, snap.DQText)
}

func TestCycleNightSkipsUpload(t *testing.T) {
	// 0 V reading: implausible voltage, night-classified.
	source := &fakeSource{regs: testBlock(0, 0, inverter.StatusSleep, 123456)}
	uploader := &fakeUploader{}
	c := newTestCollector(t, source, uploader)

	c.runCycle(time.Date(2026, 8, 26, 22, 0, 0, 0, time.UTC))

	snap := c.Snapshot()
	assert.Equal(t, "Night", snap.StatusText)
	assert.Equal(t, inverter.ClassNight, snap.StatusClass)
	assert.False(t, snap.InverterConnected, "night counts as disconnected for freshness")
	assert.Nil(t, snap.ACVoltage)
	assert.Empty(t, uploader.calls, "no upload while asleep")
	require.Len(t, snap.Records, 1, "history still records the sample")
}

func TestMidnightRollover(t *testing.T) {
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}
	c := newTestCollector(t, source, &fakeUploader{})

	evening := time.Date(2026, 8, 26, 23, 50, 0, 0, time.UTC)
	c.runCycle(evening)
	source.regs = testBlock(230.4, 1850, inverter.StatusOn, 123956)
	c.runCycle(evening.Add(5 * time.Minute))

	snap := c.Snapshot()
	require.NotNil(t, snap.Midnight)
	assert.InDelta(t, 0.5, snap.EnergyTodayKWh, 0.0001)
	assert.InDelta(t, 5.0, snap.UptimeMinutes, 0.001)
	require.Len(t, snap.Records, 2)

	// First cycle past midnight: baseline, uptime, peak, and history all
	// reset exactly once.
	source.regs = testBlock(230.4, 400, inverter.StatusOn, 124000)
	nextDay := time.Date(2026, 8, 27, 0, 5, 0, 0, time.UTC)
	c.runCycle(nextDay)

	snap = c.Snapshot()
	require.NotNil(t, snap.Midnight)
	assert.Equal(t, 27, snap.Midnight.Day())
	assert.Equal(t, 0.0, snap.EnergyTodayKWh, "new day re-anchors the baseline")
	assert.Equal(t, 400, snap.PeakPowerW, "peak reset, then set by the new sample")
	require.Len(t, snap.Records, 1, "chart history cleared at rollover")

	// Second cycle on the same day must not reset again.
	source.regs = testBlock(230.4, 900, inverter.StatusOn, 124100)
	c.runCycle(nextDay.Add(5 * time.Minute))

	snap = c.Snapshot()
	assert.Equal(t, 27, snap.Midnight.Day())
	assert.InDelta(t, 0.1, snap.EnergyTodayKWh, 0.0001)
	assert.Equal(t, 900, snap.PeakPowerW)
	require.Len(t, snap.Records, 2)
}

func TestImplausibleVoltageReportedAsAbsent(t *testing.T) {
	source := &fakeSource{regs: testBlock(300.0, 1850, inverter.StatusOn, 123456)}
	c := newTestCollector(t, source, &fakeUploader{})

	c.runCycle(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	snap := c.Snapshot()
	assert.Nil(t, snap.ACVoltage, "300 V is outside the plausible window")
	// Absent voltage triggers the night override.
	assert.Equal(t, "Night", snap.StatusText)
}

func TestSnapshotReadersGetCopies(t *testing.T) {
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}
	c := newTestCollector(t, source, &fakeUploader{})
	c.runCycle(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	snap := c.Snapshot()
	snap.Records[0].PowerW = 9999
	*snap.ACVoltage = 1.0

	fresh := c.Snapshot()
	assert.Equal(t, 1850, fresh.Records[0].PowerW)
	assert.InDelta(t, 230.4, *fresh.ACVoltage, 0.001)
}

func TestRestoreFromPersistedState(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{regs: testBlock(230.4, 1850, inverter.StatusOn, 123456)}

	first := NewCollector(Config{
		Device:   inverter.NewVSN300(source),
		StateDir: dir,
		Interval: 300 * time.Second,
		Enabled:  true,
		Logger:   zap.NewNop(),
	})
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	first.runCycle(now)
	source.regs = testBlock(230.4, 2100, inverter.StatusOn, 123956)
	first.runCycle(now.Add(5 * time.Minute))

	// Process restart: a fresh collector over the same state dir.
	second := NewCollector(Config{
		Device:   inverter.NewVSN300(source),
		StateDir: dir,
		Interval: 300 * time.Second,
		Enabled:  true,
		Logger:   zap.NewNop(),
	})
	second.restore()

	snap := second.Snapshot()
	assert.Equal(t, QualityStarting.Text, snap.DQText, "restored state is graded STARTING until the next sample")
	assert.InDelta(t, 0.5, snap.EnergyTodayKWh, 0.0001)
	assert.Equal(t, 2100, snap.PeakPowerW)
	assert.InDelta(t, 5.0, snap.UptimeMinutes, 0.001)
	require.Len(t, snap.Records, 2)

	// The next cycle continues the day's accounting seamlessly.
	source.regs = testBlock(230.4, 2000, inverter.StatusOn, 124456)
	second.runCycle(now.Add(10 * time.Minute))

	snap = second.Snapshot()
	assert.InDelta(t, 1.0, snap.EnergyTodayKWh, 0.0001)
	assert.InDelta(t, 10.0, snap.UptimeMinutes, 0.001)
	assert.Equal(t, QualityLive.Text, snap.DQText)
	require.Len(t, snap.Records, 3)
}

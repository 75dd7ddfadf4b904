package inverter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBlock() []uint16 {
	regs := make([]uint16, RegBlockLength)
	regs[OffACVoltage] = 2304   // 230.4 V
	regs[OffActivePower] = 1850 // 1850 W
	regs[OffGridFreq] = 5002    // 50.02 Hz
	regs[OffStatusCode] = StatusOn
	regs[OffTemperature] = 412 // 41.2 °C
	return regs
}

func setLifetimeEnergy(regs []uint16, raw uint32, sf int16) {
	regs[OffEnergyLow] = uint16(raw >> 16)
	regs[OffEnergyHigh] = uint16(raw & 0xFFFF)
	regs[OffEnergyScale] = uint16(sf)
}

func TestDecodeBlock(t *testing.T) {
	regs := makeBlock()
	setLifetimeEnergy(regs, 123456, 0)

	sample, err := DecodeBlock(regs, time.Now())
	require.NoError(t, err)

	assert.InDelta(t, 230.4, sample.ACVoltage, 0.001)
	assert.InDelta(t, 50.02, sample.GridFreqHz, 0.001)
	assert.InDelta(t, 41.2, sample.TempC, 0.001)
	assert.Equal(t, 1850, sample.PowerW)
	assert.InDelta(t, 123456, sample.EnergyLifetimeWh, 0.001)
	assert.Equal(t, uint16(StatusOn), sample.StatusCode)
}

func TestDecodeBlockScaleFactor(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		sf   int16
		want float64
	}{
		{"unit scale", 123456, 0, 123456},
		{"positive exponent", 12345, 1, 123450},
		{"negative exponent", 1234560, -1, 123456},
		{"strongly negative exponent", 4000000000, -3, 4000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs := makeBlock()
			setLifetimeEnergy(regs, tt.raw, tt.sf)

			sample, err := DecodeBlock(regs, time.Now())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, sample.EnergyLifetimeWh, 0.5)
		})
	}
}

func TestDecodeBlockNegativeScaleFactorEncoding(t *testing.T) {
	// A scale register of 65535 is two's-complement -1, not 65535.
	regs := makeBlock()
	regs[OffEnergyLow] = 0
	regs[OffEnergyHigh] = 1000
	regs[OffEnergyScale] = 65535

	sample, err := DecodeBlock(regs, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 100, sample.EnergyLifetimeWh, 0.001)
}

func TestDecodeBlockShort(t *testing.T) {
	for _, n := range []int{0, 1, RegBlockLength - 1} {
		_, err := DecodeBlock(make([]uint16, n), time.Now())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDecode))
	}
}

func TestPlausibleVoltage(t *testing.T) {
	assert.Nil(t, PlausibleVoltage(149.9))
	assert.Nil(t, PlausibleVoltage(270.1))
	assert.Nil(t, PlausibleVoltage(0))

	v := PlausibleVoltage(230.4)
	require.NotNil(t, v)
	assert.InDelta(t, 230.4, *v, 0.001)

	low := PlausibleVoltage(150)
	require.NotNil(t, low)
	high := PlausibleVoltage(270)
	require.NotNil(t, high)
}

func TestClassifyStatus(t *testing.T) {
	day := 230.0

	tests := []struct {
		code      uint16
		wantText  string
		wantClass string
	}{
		{StatusOff, "Off", ClassMuted},
		{StatusSleep, "Sleep", ClassSleep},
		{StatusOn, "ON", ClassOK},
		{StatusFault, "Fault", ClassError},
		{StatusOnAlt, "ON", ClassOK},
		{StatusSleepAlt, "Sleep", ClassSleep},
		{42, "Unknown", ClassMuted},
	}

	for _, tt := range tests {
		text, class := ClassifyStatus(tt.code, &day, true)
		assert.Equal(t, tt.wantText, text, "code %d", tt.code)
		assert.Equal(t, tt.wantClass, class, "code %d", tt.code)
	}
}

func TestClassifyStatusNightOverride(t *testing.T) {
	lowVoltage := 50.0
	day := 230.0

	// Night wins over any status code.
	text, class := ClassifyStatus(StatusFault, &lowVoltage, true)
	assert.Equal(t, "Night", text)
	assert.Equal(t, ClassNight, class)

	text, _ = ClassifyStatus(StatusOn, nil, true)
	assert.Equal(t, "Night", text)

	text, _ = ClassifyStatus(StatusOn, &day, false)
	assert.Equal(t, "Night", text)
}

func TestIsNight(t *testing.T) {
	day := 230.0
	dusk := 99.9

	assert.False(t, IsNight(&day, true))
	assert.True(t, IsNight(&day, false))
	assert.True(t, IsNight(nil, true))
	assert.True(t, IsNight(&dusk, true))
}

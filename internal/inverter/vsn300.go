package inverter

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrDeviceUnreachable covers connection failures, timeouts, and
	// protocol-level error responses. The scheduler treats them all as
	// "no data this cycle".
	ErrDeviceUnreachable = errors.New("inverter unreachable")

	// ErrDecode covers short or malformed register blocks. No partial
	// Sample is ever produced.
	ErrDecode = errors.New("register block decode failed")
)

// Sample is one successful decode of the legacy register block.
type Sample struct {
	Timestamp        time.Time `json:"timestamp"`
	ACVoltage        float64   `json:"ac_voltage"`
	GridFreqHz       float64   `json:"grid_freq_hz"`
	TempC            float64   `json:"inverter_temp_c"`
	PowerW           int       `json:"power_w"`
	EnergyLifetimeWh float64   `json:"energy_lifetime_wh"`
	StatusCode       uint16    `json:"status_code"`
}

// RegisterSource reads a block of consecutive 16-bit registers. Implemented
// by the Modbus client; faked in tests.
type RegisterSource interface {
	ReadHoldingBlock(address uint16, quantity uint16) ([]uint16, error)
}

// VSN300 reads and decodes samples from an ABB/Power-One inverter behind a
// VSN300 logger card.
type VSN300 struct {
	source RegisterSource
}

func NewVSN300(source RegisterSource) *VSN300 {
	return &VSN300{source: source}
}

// ReadSample reads the legacy block and decodes it into a Sample.
func (d *VSN300) ReadSample() (*Sample, error) {
	regs, err := d.source.ReadHoldingBlock(RegBlockBase, RegBlockLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	return DecodeBlock(regs, time.Now())
}

// ReadRawBlock returns the undecoded register block for diagnostics.
func (d *VSN300) ReadRawBlock() ([]uint16, error) {
	regs, err := d.source.ReadHoldingBlock(RegBlockBase, RegBlockLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	return regs, nil
}

// DecodeBlock turns a raw register block into a Sample. The block must hold
// at least RegBlockLength registers; anything shorter is a decode failure.
//
// The lifetime energy counter is a 32-bit value stored low word first,
// rescaled by a signed power-of-ten register (SunSpec scale factor).
func DecodeBlock(regs []uint16, now time.Time) (*Sample, error) {
	if len(regs) < RegBlockLength {
		return nil, fmt.Errorf("%w: got %d registers, want %d", ErrDecode, len(regs), RegBlockLength)
	}

	sf := int(int16(regs[OffEnergyScale]))
	raw := uint32(regs[OffEnergyLow])<<16 | uint32(regs[OffEnergyHigh])
	energyWh := float64(raw) * math.Pow10(sf)

	return &Sample{
		Timestamp:        now,
		ACVoltage:        roundTo(float64(regs[OffACVoltage])*0.1, 1),
		GridFreqHz:       roundTo(float64(regs[OffGridFreq])*0.01, 2),
		TempC:            roundTo(float64(regs[OffTemperature])*0.1, 1),
		PowerW:           int(regs[OffActivePower]),
		EnergyLifetimeWh: energyWh,
		StatusCode:       regs[OffStatusCode],
	}, nil
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

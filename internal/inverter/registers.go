package inverter

// VSN300 legacy register block (single-phase, SunSpec-flavored layout).
// Offsets are relative to RegBlockBase.

const (
	RegBlockBase   = 80
	RegBlockLength = 40

	OffACVoltage   = 0  // 80, U16, 0.1 V
	OffActivePower = 4  // 84, U16, W
	OffGridFreq    = 6  // 86, U16, 0.01 Hz
	OffStatusCode  = 8  // 88, U16
	OffEnergyLow   = 14 // 94, U16, lifetime Wh low word
	OffEnergyHigh  = 15 // 95, U16, lifetime Wh high word
	OffEnergyScale = 16 // 96, S16, power-of-ten scale factor
	OffTemperature = 26 // 106, S16, 0.1 °C
)

// Grid voltage outside this window is not a believable AC reading and is
// reported as absent rather than as the raw value.
const (
	MinPlausibleVoltage = 150.0
	MaxPlausibleVoltage = 270.0
)

// Voltage below this is taken to mean the inverter is asleep for the night
// even when the status register claims otherwise.
const nightVoltageThreshold = 100.0

// Device status codes as reported in the status register. 91/92 are the
// alternate codes some VSN300 firmware revisions use for ON/Sleep.
const (
	StatusOff      = 0
	StatusSleep    = 1
	StatusOn       = 4
	StatusFault    = 5
	StatusOnAlt    = 91
	StatusSleepAlt = 92
)

// Status presentation classes consumed by the dashboard CSS.
const (
	ClassMuted = "muted"
	ClassSleep = "sleep"
	ClassOK    = "ok"
	ClassError = "error"
	ClassNight = "night"
)

// ClassifyStatus maps a raw status code and the current voltage reading to
// display text and class. The night override wins over the status register:
// an unreachable device or an implausible voltage means asleep, not faulted.
func ClassifyStatus(code uint16, acVoltage *float64, connected bool) (string, string) {
	if IsNight(acVoltage, connected) {
		return "Night", ClassNight
	}

	switch code {
	case StatusOff:
		return "Off", ClassMuted
	case StatusSleep, StatusSleepAlt:
		return "Sleep", ClassSleep
	case StatusOn, StatusOnAlt:
		return "ON", ClassOK
	case StatusFault:
		return "Fault", ClassError
	default:
		return "Unknown", ClassMuted
	}
}

// IsNight reports whether the inverter should be treated as asleep: device
// unreachable, no voltage reading, or voltage below the night threshold.
func IsNight(acVoltage *float64, connected bool) bool {
	return !connected || acVoltage == nil || *acVoltage < nightVoltageThreshold
}

// PlausibleVoltage returns the voltage if it falls inside the believable AC
// window, nil otherwise.
func PlausibleVoltage(v float64) *float64 {
	if v < MinPlausibleVoltage || v > MaxPlausibleVoltage {
		return nil
	}
	return &v
}

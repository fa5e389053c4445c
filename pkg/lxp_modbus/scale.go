package lxp_modbus

// ScaleFactor is the divisor turning a raw register value into its physical
// unit. The protocol only ever uses decimal divisors.
type ScaleFactor uint16

const (
	ScaleNone  ScaleFactor = 1
	ScaleDeci  ScaleFactor = 10
	ScaleCenti ScaleFactor = 100
	ScaleMilli ScaleFactor = 1000
)

// ApplyScale converts a raw register value to its physical unit.
func ApplyScale(raw int64, factor ScaleFactor) float64 {
	if factor == 0 {
		factor = ScaleNone
	}
	return float64(raw) / float64(factor)
}

// JoinRegisters assembles a 32-bit value from two consecutive registers,
// low word first.
func JoinRegisters(lo uint16, hi uint16) uint32 {
	return uint32(lo) | uint32(hi)<<16
}

// SplitRegisters is the inverse of JoinRegisters.
func SplitRegisters(value uint32) (lo uint16, hi uint16) {
	return uint16(value), uint16(value >> 16)
}

// signedAtWidth reinterprets a raw value as two's complement at its declared
// register width before scaling.
func signedAtWidth(raw uint32, words uint8) int64 {
	if words == 2 {
		return int64(int32(raw))
	}
	return int64(int16(uint16(raw)))
}

// ClampPercent clamps a percentage to [0, 100]. Callers that care about
// corruption keep the raw value around: a raw SOC of 144 clamps to 100 but
// still trips the canary.
func ClampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

package mfc

import (
	"encoding/binary"
	"math"
)

// Process-data frame layout for Brooks GF1xx controllers. Both frames
// are 13 bytes, little-endian.
//
// Input (TxPDO):  [0] status, [1:5) float32 raw flow in hundredths of
// percent of full scale, [5:9) float32 pressure (psi), [9:13) float32
// temperature (°C).
//
// Output (RxPDO): [0:4) float32 setpoint (SCCM), [4] reserved,
// [5:9) reserved float32, [9:13) reserved uint32. Reserved fields are
// zero-filled per the device layout.
const (
	InputFrameSize  = 13
	OutputFrameSize = 13

	sdoFullScaleIndex    = 0x2103
	sdoFullScaleSubindex = 0x00
	sdoFullScaleSize     = 4

	// DefaultFullScale is used until (and unless) discovery succeeds.
	DefaultFullScale = 30000.0

	minFullScale = 1.0
	maxFullScale = 1000000.0
)

func decodeInput(frame []byte) (flowRaw, pressure, temperature float64, ok bool) {
	if len(frame) < InputFrameSize {
		return 0, 0, 0, false
	}

	flowRaw = float64(math.Float32frombits(binary.LittleEndian.Uint32(frame[1:5])))
	pressure = float64(math.Float32frombits(binary.LittleEndian.Uint32(frame[5:9])))
	temperature = float64(math.Float32frombits(binary.LittleEndian.Uint32(frame[9:13])))

	if !isFinite(flowRaw) || !isFinite(pressure) || !isFinite(temperature) {
		return 0, 0, 0, false
	}

	return flowRaw, pressure, temperature, true
}

func encodeOutput(setpoint float64) []byte {
	frame := make([]byte, OutputFrameSize)
	binary.LittleEndian.PutUint32(frame[0:4], math.Float32bits(float32(setpoint)))

	return frame
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}

package mfc

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/mfcctl/internal/bus"
	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/logger"
)

// Sample is one immutable per-cycle snapshot of a controller.
type Sample struct {
	Timestamp   float64 // unix seconds
	Flow        float64 // SCCM
	Pressure    float64 // psi
	Temperature float64 // °C
	Setpoint    float64 // SCCM, as commanded at capture time
}

// Driver owns one controller's scaling and framing. The setpoint is
// written by the control side and read once per cycle by the scheduler,
// so it sits behind its own mutex.
type Driver struct {
	slave     bus.Slave
	id        int
	fullScale float64 // fixed after construction

	mu       sync.Mutex
	setpoint float64
}

// NewDriver builds the driver and attempts full-scale discovery via an
// acyclic object read. Discovery failures are non-fatal: the compiled-in
// default stays in effect.
func NewDriver(slave bus.Slave, id int) *Driver {
	d := &Driver{
		slave:     slave,
		id:        id,
		fullScale: DefaultFullScale,
	}
	d.readFullScale()

	return d
}

// readFullScale reads the device full scale (object 0x2103:00, 4-byte
// little-endian float). Must run before the bus enters Operational.
func (d *Driver) readFullScale() bool {
	data, err := d.slave.SDORead(sdoFullScaleIndex, sdoFullScaleSubindex, sdoFullScaleSize)
	if err != nil {
		logger.Warn().Err(err).Msgf("Controller %d: full scale read failed, using default %.0f SCCM", d.id+1, d.fullScale)
		return false
	}
	if len(data) < sdoFullScaleSize {
		logger.Warn().Msgf("Controller %d: short full scale reply (%d bytes), using default %.0f SCCM", d.id+1, len(data), d.fullScale)
		return false
	}

	fullScale := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[:4])))
	if fullScale < minFullScale || fullScale > maxFullScale {
		logger.Warn().Msgf("Controller %d: implausible full scale %v, using default %.0f SCCM", d.id+1, fullScale, d.fullScale)
		return false
	}

	d.fullScale = fullScale
	logger.Info().Msgf("Controller %d: full scale %.0f SCCM", d.id+1, fullScale)

	return true
}

// FullScale returns the discovered (or default) device full scale.
func (d *Driver) FullScale() float64 {
	return d.fullScale
}

// Name returns the device name, falling back to a positional label.
func (d *Driver) Name() string {
	if name := d.slave.Name(); name != "" {
		return name
	}

	return fmt.Sprintf("Controller %d", d.id+1)
}

// Setpoint returns the current stored setpoint.
func (d *Driver) Setpoint() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.setpoint
}

// WriteSetpoint clamps the value into [0, full scale], stores it as the
// channel's setpoint and pushes the encoded output frame to the device.
// A non-finite value is rejected and the previous setpoint survives.
func (d *Driver) WriteSetpoint(setpoint float64) error {
	errFactory := errors.New()

	if !isFinite(setpoint) {
		return errFactory.WithData(ErrInvalidSetpoint, setpoint)
	}

	d.mu.Lock()
	setpoint = clamp(setpoint, 0, d.fullScale)
	d.setpoint = setpoint
	d.mu.Unlock()

	if err := d.slave.SetOutput(encodeOutput(setpoint)); err != nil {
		return errFactory.Wrap(ErrOutputRejected, err)
	}

	return nil
}

// ReadSample decodes the device's input frame into a Sample. A missing,
// short or malformed frame yields nil; this never fails hard, the next
// cycle is the retry.
func (d *Driver) ReadSample() *Sample {
	flowRaw, pressure, temperature, ok := decodeInput(d.slave.Input())
	if !ok {
		return nil
	}

	// Raw flow arrives in hundredths of percent of full scale.
	flowPercent := flowRaw / 100.0
	flow := flowPercent * d.fullScale / 100.0

	return &Sample{
		Timestamp:   float64(time.Now().UnixNano()) / float64(time.Second),
		Flow:        flow,
		Pressure:    pressure,
		Temperature: temperature,
		Setpoint:    d.Setpoint(), // ours, not the device echo
	}
}

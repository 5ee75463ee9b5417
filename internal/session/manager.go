package session

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/mfcctl/internal/bus"
	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/logger"
	"codeberg.org/mutker/mfcctl/internal/mfc"
)

// ConnectionState is the externally visible connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config carries every timeout and interval the manager and its cyclic
// scheduler use. It is immutable after construction; there is no global
// tuning state.
type Config struct {
	Adapter        string
	Controllers    int           // expected device count
	CycleTime      time.Duration // cyclic exchange period
	ReceiveTimeout time.Duration // bounded process-data receive
	StateTimeout   time.Duration // SafeOp and Op waits
	SettleTime     time.Duration // delay before requesting Op
	StopTimeout    time.Duration // bounded wait for the cyclic task
}

func (c Config) withDefaults() Config {
	if c.Controllers <= 0 {
		c.Controllers = 2
	}
	if c.CycleTime <= 0 {
		c.CycleTime = 10 * time.Millisecond
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = 2000 * time.Microsecond
	}
	if c.StateTimeout <= 0 {
		c.StateTimeout = 50 * time.Millisecond
	}
	if c.SettleTime <= 0 {
		c.SettleTime = 500 * time.Millisecond
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 3 * time.Second
	}

	return c
}

// BatchFunc receives one cycle's samples, one slot per channel; a slot
// is nil when that channel produced no usable frame. Invoked on the
// scheduler goroutine: it must not block.
type BatchFunc func(batch []*mfc.Sample)

// ErrorFunc receives per-cycle exchange errors. Same contract as
// BatchFunc: async, non-blocking.
type ErrorFunc func(err error)

// Manager drives the connect/disconnect sequence over the master-stack
// boundary and owns the cyclic scheduler while connected.
type Manager struct {
	master  bus.Master
	cfg     Config
	onBatch BatchFunc
	onError ErrorFunc

	mu      sync.Mutex
	state   ConnectionState
	drivers []*mfc.Driver
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewManager(master bus.Master, cfg Config) *Manager {
	return &Manager{
		master: master,
		cfg:    cfg.withDefaults(),
		state:  StateDisconnected,
	}
}

// OnBatch sets the per-cycle data hook. Set before Connect.
func (m *Manager) OnBatch(fn BatchFunc) {
	m.onBatch = fn
}

// OnError sets the per-cycle error hook. Set before Connect.
func (m *Manager) OnError(fn ErrorFunc) {
	m.onError = fn
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Manager) setState(state ConnectionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Connect runs the full bring-up sequence: open, discover, build one
// driver per device (full-scale discovery happens there, before Op),
// map process data, configure distributed clocks, reach SafeOp, start
// the cyclic task, then request Op. Reaching only SafeOp within the
// timeout is a degraded success, not a failure; the returned message
// reports the state actually reached.
func (m *Manager) Connect() (string, error) {
	errFactory := errors.New()

	m.setState(StateConnecting)

	if err := m.master.Open(m.cfg.Adapter); err != nil {
		m.setState(StateError)
		return "", errFactory.Wrap(ErrAdapterOpen, err)
	}

	count, err := m.master.ConfigInit()
	if err != nil {
		return "", m.fail(errFactory.Wrap(ErrBusConfig, err))
	}

	if count < m.cfg.Controllers {
		return "", m.fail(errFactory.WithMessage(ErrInsufficientDevices,
			fmt.Sprintf("discovered %d controllers, need %d", count, m.cfg.Controllers)))
	}

	slaves := m.master.Slaves()
	drivers := make([]*mfc.Driver, 0, m.cfg.Controllers)
	for i := 0; i < m.cfg.Controllers; i++ {
		drivers = append(drivers, mfc.NewDriver(slaves[i], i))
	}

	if err := m.master.ConfigMap(); err != nil {
		return "", m.fail(errFactory.Wrap(ErrBusConfig, err))
	}
	if err := m.master.ConfigDC(); err != nil {
		return "", m.fail(errFactory.Wrap(ErrBusConfig, err))
	}

	if _, err := m.master.StateCheck(bus.StateSafeOp, m.cfg.StateTimeout); err != nil {
		return "", m.fail(errFactory.Wrap(ErrStateChange, err))
	}

	m.mu.Lock()
	m.drivers = drivers
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.runCyclic(m.stopCh, m.doneCh)
	m.mu.Unlock()

	// Let at least one exchange land before asking for Operational.
	time.Sleep(m.cfg.SettleTime)

	if err := m.master.RequestState(bus.StateOp); err != nil {
		logger.Warn().Err(err).Msg("Operational request failed, staying in safe-operational")
	}

	reached, err := m.master.StateCheck(bus.StateOp, m.cfg.StateTimeout)

	m.setState(StateConnected)

	if err == nil && reached == bus.StateOp {
		return fmt.Sprintf("connected %d controllers (operational)", len(drivers)), nil
	}

	return fmt.Sprintf("connected %d controllers in state %s (operational not reached)", len(drivers), reached), nil
}

func (m *Manager) fail(err error) error {
	if closeErr := m.master.Close(); closeErr != nil {
		logger.Debug().Err(closeErr).Msg("Close after failed connect")
	}
	m.setState(StateError)

	return err
}

// Disconnect tears the session down: stop the cyclic task (bounded
// wait), drive every channel to zero, request Init and close the
// adapter. Every step is best effort; the state always ends up
// Disconnected. Calling it when already disconnected is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	drivers := m.drivers
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		select {
		case <-doneCh:
		case <-time.After(m.cfg.StopTimeout):
			logger.Warn().Msg("Cyclic task did not stop within timeout")
		}
	}

	// Safety: command zero flow on every channel before leaving the bus.
	for i, d := range drivers {
		if err := d.WriteSetpoint(0); err != nil {
			logger.Debug().Err(err).Msgf("Controller %d: zero setpoint on disconnect", i+1)
		}
	}

	if err := m.master.RequestState(bus.StateInit); err != nil {
		logger.Warn().Err(err).Msg("Init request during teardown")
	}
	if err := m.master.Close(); err != nil {
		logger.Warn().Err(err).Msg("Adapter close during teardown")
	}

	m.mu.Lock()
	m.drivers = nil
	m.state = StateDisconnected
	m.mu.Unlock()
}

// SetSetpoint clamps and writes a new setpoint for one channel.
func (m *Manager) SetSetpoint(channel int, value float64) error {
	errFactory := errors.New()

	m.mu.Lock()
	drivers := m.drivers
	m.mu.Unlock()

	if channel < 0 || channel >= len(drivers) {
		return errFactory.WithData(errors.ErrInvalidArgument, channel)
	}

	return drivers[channel].WriteSetpoint(value)
}

// Setpoint returns the stored setpoint for one channel, 0 when the
// index is out of range.
func (m *Manager) Setpoint(channel int) float64 {
	m.mu.Lock()
	drivers := m.drivers
	m.mu.Unlock()

	if channel < 0 || channel >= len(drivers) {
		return 0
	}

	return drivers[channel].Setpoint()
}

// FullScale returns the channel's discovered full scale, or the global
// default when the index is out of range. Never fails.
func (m *Manager) FullScale(channel int) float64 {
	m.mu.Lock()
	drivers := m.drivers
	m.mu.Unlock()

	if channel < 0 || channel >= len(drivers) {
		return mfc.DefaultFullScale
	}

	return drivers[channel].FullScale()
}

// ControllerName returns the device name for one channel.
func (m *Manager) ControllerName(channel int) string {
	m.mu.Lock()
	drivers := m.drivers
	m.mu.Unlock()

	if channel < 0 || channel >= len(drivers) {
		return fmt.Sprintf("Controller %d", channel+1)
	}

	return drivers[channel].Name()
}

package bus

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/mfcctl/internal/errors"
)

const (
	simAdapterName = "sim"

	simFrameSize    = 13
	simSDOIndex     = 0x2103
	simSDOSubindex  = 0x00
	simDefaultScale = 30000.0

	// First-order response per exchange toward the commanded setpoint.
	simFlowGain = 0.2

	simPressure    = 14.7
	simTemperature = 23.5
)

// SimConfig configures the simulated bus.
type SimConfig struct {
	Slaves     int
	FullScales []float64 // per-slave full scale, defaults to 30000

	// Fault injection for tests.
	SDOFails    bool  // SDO reads are rejected as unsupported
	MaxState    State // highest state the bus will report, default Op
	ExchangeErr error // returned by every Exchange when set
}

// SimMaster emulates a small EtherCAT segment of mass-flow controllers.
// Each exchange moves every device's flow toward its commanded setpoint
// with a first-order response and refreshes the input frames.
type SimMaster struct {
	cfg        SimConfig
	mu         sync.Mutex
	open       bool
	configured bool
	slaves     []*simSlave
	state      State
}

func NewSimMaster(cfg SimConfig) *SimMaster {
	if cfg.Slaves <= 0 {
		cfg.Slaves = 1
	}
	if cfg.MaxState == StateNone {
		cfg.MaxState = StateOp
	}

	return &SimMaster{cfg: cfg, state: StateInit}
}

func (m *SimMaster) Open(adapter string) error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return errFactory.New(errors.ErrResourceBusy)
	}
	m.open = true

	return nil
}

func (m *SimMaster) ConfigInit() (int, error) {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, errFactory.New(ErrNotOpen)
	}

	m.slaves = make([]*simSlave, m.cfg.Slaves)
	for i := range m.slaves {
		scale := simDefaultScale
		if i < len(m.cfg.FullScales) && m.cfg.FullScales[i] != 0 {
			scale = m.cfg.FullScales[i]
		}
		m.slaves[i] = &simSlave{
			name:      fmt.Sprintf("GF125-%02d", i+1),
			fullScale: scale,
			sdoFails:  m.cfg.SDOFails,
		}
	}
	m.configured = true
	m.state = StatePreOp

	return len(m.slaves), nil
}

func (m *SimMaster) Slaves() []Slave {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Slave, len(m.slaves))
	for i, s := range m.slaves {
		out[i] = s
	}

	return out
}

func (m *SimMaster) ConfigMap() error {
	return m.requireConfigured()
}

func (m *SimMaster) ConfigDC() error {
	return m.requireConfigured()
}

func (m *SimMaster) requireConfigured() error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.configured {
		return errFactory.New(ErrConfigFailed)
	}

	return nil
}

func (m *SimMaster) RequestState(target State) error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return errFactory.New(ErrNotOpen)
	}

	if target > m.cfg.MaxState {
		target = m.cfg.MaxState
	}
	m.state = target

	return nil
}

func (m *SimMaster) StateCheck(target State, _ time.Duration) (State, error) {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return StateNone, errFactory.New(ErrNotOpen)
	}

	// The simulated segment converges instantly, capped at MaxState.
	if target <= m.cfg.MaxState {
		m.state = target
	} else {
		m.state = m.cfg.MaxState
	}

	return m.state, nil
}

func (m *SimMaster) Exchange(_ time.Duration) error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open || !m.configured {
		return errFactory.New(ErrNotOpen)
	}
	if m.cfg.ExchangeErr != nil {
		return errFactory.Wrap(ErrExchangeFailed, m.cfg.ExchangeErr)
	}

	for _, s := range m.slaves {
		s.step()
	}

	return nil
}

func (m *SimMaster) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = false
	m.configured = false
	m.slaves = nil
	m.state = StateNone

	return nil
}

type simSlave struct {
	name      string
	fullScale float64
	sdoFails  bool

	mu      sync.Mutex
	input   [simFrameSize]byte
	output  []byte
	flowPct float64 // percent of full scale
}

func (s *simSlave) Name() string {
	return s.name
}

func (s *simSlave) Input() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := make([]byte, simFrameSize)
	copy(frame, s.input[:])

	return frame
}

func (s *simSlave) SetOutput(frame []byte) error {
	errFactory := errors.New()

	if len(frame) != simFrameSize {
		return errFactory.WithData(errors.ErrInvalidArgument, len(frame))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.output = append(s.output[:0], frame...)

	return nil
}

func (s *simSlave) SDORead(index uint16, subindex uint8, size int) ([]byte, error) {
	errFactory := errors.New()

	if s.sdoFails {
		return nil, errFactory.New(ErrSDOUnsupported)
	}
	if index != simSDOIndex || subindex != simSDOSubindex || size < 4 {
		return nil, errFactory.WithData(ErrSDOReadFailed, fmt.Sprintf("object 0x%04X:%02X", index, subindex))
	}

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(float32(s.fullScale)))

	return data, nil
}

// step advances the simulated device by one cycle: move the measured
// flow toward the commanded setpoint and rebuild the input frame.
func (s *simSlave) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.output) >= 4 {
		setpoint := float64(math.Float32frombits(binary.LittleEndian.Uint32(s.output[0:4])))
		targetPct := setpoint / s.fullScale * 100.0
		s.flowPct += (targetPct - s.flowPct) * simFlowGain
	}

	// Raw flow is transmitted in hundredths of percent of full scale.
	s.input[0] = 0
	binary.LittleEndian.PutUint32(s.input[1:5], math.Float32bits(float32(s.flowPct*100.0)))
	binary.LittleEndian.PutUint32(s.input[5:9], math.Float32bits(float32(simPressure)))
	binary.LittleEndian.PutUint32(s.input[9:13], math.Float32bits(float32(simTemperature)))
}

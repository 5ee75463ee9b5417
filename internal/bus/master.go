package bus

import (
	"time"

	"codeberg.org/mutker/mfcctl/internal/errors"
)

// State is an EtherCAT application-layer state.
type State uint8

const (
	StateNone   State = 0x00
	StateInit   State = 0x01
	StatePreOp  State = 0x02
	StateSafeOp State = 0x04
	StateOp     State = 0x08
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePreOp:
		return "pre-operational"
	case StateSafeOp:
		return "safe-operational"
	case StateOp:
		return "operational"
	default:
		return "unknown"
	}
}

// Slave is one device's view of the cyclic process image plus its
// acyclic mailbox.
type Slave interface {
	// Name returns the device name reported during configuration.
	Name() string

	// Input returns the device's current input frame (TxPDO). The
	// returned slice is only valid until the next exchange.
	Input() []byte

	// SetOutput replaces the device's output frame (RxPDO) for the
	// next exchange.
	SetOutput(frame []byte) error

	// SDORead performs one acyclic object read by index/subindex.
	SDORead(index uint16, subindex uint8, size int) ([]byte, error)
}

// Master is the boundary to the fieldbus master stack. The stack itself
// (network discovery, telegram transmission, distributed clocks) lives
// outside this module; implementations wrap a native master or, for the
// "sim" adapter, the in-process simulator.
type Master interface {
	Open(adapter string) error
	ConfigInit() (int, error)
	Slaves() []Slave
	ConfigMap() error
	ConfigDC() error
	RequestState(target State) error
	StateCheck(target State, timeout time.Duration) (State, error)

	// Exchange performs one cyclic round trip: transmit all output
	// frames, then block up to receiveTimeout for the input frames.
	Exchange(receiveTimeout time.Duration) error

	Close() error
}

// Open returns a master for the given adapter name. Only the simulated
// "sim" adapter is handled in-process; native master stacks are injected
// by callers through the Master interface.
func Open(adapter string, controllers int) (Master, error) {
	if adapter == simAdapterName {
		return NewSimMaster(SimConfig{Slaves: controllers}), nil
	}

	errFactory := errors.New()

	return nil, errFactory.WithData(ErrAdapterUnavailable, adapter)
}

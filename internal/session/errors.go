package session

import "codeberg.org/mutker/mfcctl/internal/errors"

const (
	ErrAdapterOpen         = errors.ErrorCode("session_adapter_open_failed")
	ErrBusConfig           = errors.ErrorCode("session_bus_config_failed")
	ErrInsufficientDevices = errors.ErrorCode("session_insufficient_devices")
	ErrStateChange         = errors.ErrorCode("session_state_change_failed")
	ErrExchangeFailed      = errors.ErrorCode("session_exchange_failed")
	ErrNotConnected        = errors.ErrorCode("session_not_connected")
)

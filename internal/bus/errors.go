package bus

import "codeberg.org/mutker/mfcctl/internal/errors"

const (
	ErrAdapterUnavailable = errors.ErrorCode("bus_adapter_unavailable")
	ErrAdapterOpen        = errors.ErrorCode("bus_adapter_open_failed")
	ErrNotOpen            = errors.ErrorCode("bus_not_open")
	ErrConfigFailed       = errors.ErrorCode("bus_config_failed")
	ErrStateChange        = errors.ErrorCode("bus_state_change_failed")
	ErrExchangeFailed     = errors.ErrorCode("bus_exchange_failed")
	ErrSDOUnsupported     = errors.ErrorCode("bus_sdo_unsupported")
	ErrSDOReadFailed      = errors.ErrorCode("bus_sdo_read_failed")
)

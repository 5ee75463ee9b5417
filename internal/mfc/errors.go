package mfc

import "codeberg.org/mutker/mfcctl/internal/errors"

const (
	ErrInvalidSetpoint = errors.ErrorCode("mfc_invalid_setpoint")
	ErrOutputRejected  = errors.ErrorCode("mfc_output_rejected")
	ErrScaleNotFound   = errors.ErrorCode("mfc_full_scale_not_found")
)

package recorder

import "codeberg.org/mutker/mfcctl/internal/errors"

const (
	ErrAlreadyRecording = errors.ErrorCode("recorder_already_recording")
	ErrOpenFailed       = errors.ErrorCode("recorder_open_failed")
	ErrWriteFailed      = errors.ErrorCode("recorder_write_failed")
)

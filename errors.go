package output

import "errors"

// Caller-misuse errors: returned without mutating state.
var (
	ErrAlreadyActive          = errors.New("output: already active")
	ErrNoSinkData             = errors.New("output: sink has no data; call Create first")
	ErrInvalidHandle          = errors.New("output: invalid handle")
	ErrUnknownOutput          = errors.New("output: unknown id")
	ErrPauseUnsupported       = errors.New("output: sink does not support pause")
	ErrPauseNoop              = errors.New("output: requested pause state already set")
	ErrNotActive              = errors.New("output: not active")
	ErrEncoderPairingConflict = errors.New("output: video and audio encoders already paired; refusing unpaired start")
	ErrForceEncoderMismatch   = errors.New("output: sink requires a specific encoder codec")
)

// Resource-init errors.
var (
	ErrServiceRejected = errors.New("output: service initialization rejected")
	ErrSinkCreateFailed = errors.New("output: sink create failed")
)

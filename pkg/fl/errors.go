package fl

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage  = errors.New("malformed message")
	ErrTransfer          = errors.New("artifact transfer failed")
	ErrTraining          = errors.New("training failed")
	ErrProtocolViolation = errors.New("protocol violation")

	ErrNoUpdates     = errors.New("no updates provided for aggregation")
	ErrShapeMismatch = errors.New("parameter shapes do not match")
	ErrTerminated    = errors.New("run terminated")

	ErrStaleUpdate     = fmt.Errorf("%w: update is not tagged with the current epoch", ErrProtocolViolation)
	ErrNotChosen       = fmt.Errorf("%w: client was not chosen for this round", ErrProtocolViolation)
	ErrDuplicateUpdate = fmt.Errorf("%w: client already contributed to this round", ErrProtocolViolation)
)

package worker

import "errors"

// Sentinel kinds for job execution errors.
var (
	ErrUnknownJob = errors.New("unknown job")
	ErrPermanent  = errors.New("permanent job failure")
)

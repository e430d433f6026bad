package cache

import (
	"errors"

	"github.com/okian/pinnacle/internal/domain/apperr"
)

// Sentinel kinds for cache errors. ErrUnreachable wraps apperr.ErrUnavailable.
var (
	ErrDisabled     = errors.New("cache disabled")
	ErrUnreachable  = apperr.WrapKind("cache", apperr.ErrUnavailable, errors.New("backend unreachable"))
	ErrTrailingData = errors.New("trailing data after cached value")
)

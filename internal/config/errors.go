package config

import (
	"errors"
)

// Sentinel errors returned (wrapped) by Load and Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

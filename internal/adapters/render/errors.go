package render

import "errors"

var (
	ErrNoDirectory = errors.New("artifact directory is required")
	ErrBadFilename = errors.New("artifact name must be a plain .pdf file name")
)

package models

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrExtractionFailed  = errors.New("no extraction tier produced a usable field")
	ErrPoolClosed        = errors.New("worker pool closed")
)

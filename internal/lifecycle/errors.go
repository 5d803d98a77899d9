package lifecycle

import "errors"

var (
	ErrDuplicateService = errors.New("service already registered")
	ErrServiceNotFound  = errors.New("service not found")
)

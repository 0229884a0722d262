package errors

import "fmt"

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrInvalidEvent = fmt.Errorf("invalid event payload")
	ErrBadTimestamp = fmt.Errorf("malformed lastTs value")
)

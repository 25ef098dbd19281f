// internal/gateway/errors.go
package gateway

import (
	"errors"
	"fmt"
)

// ErrRequestFailed matches every generation failure via errors.Is.
var ErrRequestFailed = errors.New("request failed")

type ErrorKind string

const (
	KindUpstream ErrorKind = "upstream"
	KindDecode   ErrorKind = "decode"
	KindSchema   ErrorKind = "schema"
	KindStorage  ErrorKind = "storage"
)

// RequestError describes why a generation call failed. Callers that only
// need a message can treat all kinds alike.
type RequestError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }

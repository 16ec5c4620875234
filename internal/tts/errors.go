package tts

import (
	"fmt"
)

// ValidationError is a user-correctable input problem. No external call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrorKind classifies why the backend call failed.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindNetwork   ErrorKind = "network"
	KindService   ErrorKind = "service"
	KindMalformed ErrorKind = "malformed"
	KindStorage   ErrorKind = "storage"
)

// SynthesisError wraps a failed backend call. It is never retried here.
type SynthesisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SynthesisError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("synthesis failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("synthesis failed (%s): %s", e.Kind, e.Message)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

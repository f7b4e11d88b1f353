package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveryFailed marks an injected mid-stream fault.
	ErrDeliveryFailed = errors.New("chunk delivery failed")
	// ErrSessionCancelled marks a consumer disconnect or context end.
	ErrSessionCancelled = errors.New("session cancelled")
	// ErrUnexpectedFault marks any other fault while producing chunks.
	ErrUnexpectedFault = errors.New("unexpected stream fault")
)

// DeliveryError reports where an injected failure stopped a session.
type DeliveryError struct {
	SessionID string
	Chunk     int64
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s at chunk %d", ErrDeliveryFailed, e.Chunk)
}

func (e *DeliveryError) Unwrap() error { return ErrDeliveryFailed }

package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingConnected is returned when required port has no connections
	// or graph has no connections at all.
	ErrNothingConnected = errors.New("nothing connected")
	// ErrMultipleConnections is returned when stream input has more than
	// one connection.
	ErrMultipleConnections = errors.New("multiple connections")
	// ErrIncompatiblePorts is returned when connected ports differ in
	// direction, kind or item size.
	ErrIncompatiblePorts = errors.New("incompatible ports")
	// ErrAlreadyConnected is returned when the same ports are connected twice.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned when disconnecting ports that are not connected.
	ErrNotConnected = errors.New("not connected")
	// ErrPortNotFound is returned when block has no port with requested name.
	ErrPortNotFound = errors.New("port not found")
	// ErrBlockNotFound is returned when block is not part of the graph.
	ErrBlockNotFound = errors.New("block not found")
	// ErrInvalidOutputMultiple is returned when output multiple is less than 1.
	ErrInvalidOutputMultiple = errors.New("invalid output multiple")
	// ErrInvalidRelativeRate is returned when relative rate is not positive.
	ErrInvalidRelativeRate = errors.New("invalid relative rate")
	// ErrUnknownParam is returned when block has no parameter with
	// requested name.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrNotApplied is returned to parameter requests that were not
	// executed because the scheduler was torn down.
	ErrNotApplied = errors.New("request not applied")
)

// ConnectionError is returned by graph validation for a misconfigured port.
type ConnectionError struct {
	Block string
	Port  string
	Err   error
}

func (e *ConnectionError) Error() string {
	if e.Block == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s:%s: %v", e.Block, e.Port, e.Err)
}

// Unwrap returns the cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

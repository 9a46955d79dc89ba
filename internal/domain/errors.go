package domain

import "errors"

var (
	// ErrConnectionFailure: handshake/connect failed. Surfaced once, never retried.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrMalformedPayload: one frame could not be decoded. The stream continues.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrCommandRejected: the server or the transport refused a command.
	ErrCommandRejected = errors.New("command rejected")
	// ErrPreconditionNotMet: routing ids missing, nothing was sent.
	ErrPreconditionNotMet = errors.New("precondition not met")
	// ErrInvalidCommand: the ids are there but a field breaks a rule
	// (negative prediction, empty card). Nothing was sent.
	ErrInvalidCommand = errors.New("invalid command")
)

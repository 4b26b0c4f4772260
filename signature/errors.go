package signature

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPair is returned when a header segment is not a single key=value pair
	ErrMalformedPair = errors.New("malformed key=value pair in signature header")

	// ErrMissingTimestamp is returned when the header has no t field
	ErrMissingTimestamp = errors.New("signature header missing timestamp (t)")

	// ErrMissingSignature is returned when the header has no v1 field
	ErrMissingSignature = errors.New("signature header missing v1 signature")

	// ErrInvalidTimestamp is returned by Header.Timestamp when t is not decimal seconds
	ErrInvalidTimestamp = errors.New("signature header timestamp is not a unix time")
)

// HeaderError reports that the signature header could not be parsed at all.
type HeaderError struct {
	Err error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid signature header: %v", e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

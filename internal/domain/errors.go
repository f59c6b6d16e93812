package domain

import "errors"

var (
	// ErrGenerationFailed wraps ticket, connect and handshake send failures.
	ErrGenerationFailed = errors.New("stream generation failed")
	// ErrGenerationTimeout is returned when no SDP answer arrived in time.
	ErrGenerationTimeout = errors.New("stream generation timed out")
	// ErrMalformedMessage is returned for undecodable signalling frames.
	ErrMalformedMessage = errors.New("malformed signalling message")
	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("stream session closed")
)

// Package channels provides the shared error classification for channel
// executors. The orchestrator retries transport errors per the step policy;
// configuration errors fail fast and take the failure edge immediately.
package channels

import (
	"errors"
	"fmt"

	"github.com/rescindhq/rescind/pkg/models"
)

var (
	// ErrNoDestination indicates no phone number could be resolved for a voice call.
	ErrNoDestination = errors.New("no destination phone number resolvable")

	// ErrMissingConfiguration indicates required executor configuration is absent.
	ErrMissingConfiguration = errors.New("required configuration absent")

	// ErrUpstreamTimeout indicates the upstream provider did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrMalformedResponse indicates the upstream provider returned an unexpected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// TransportError wraps an infrastructure-level failure of an executor call.
type TransportError struct {
	Method models.ChannelMethod
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport failure during %s: %v", e.Method, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a retryable transport error for the given channel.
func NewTransportError(method models.ChannelMethod, op string, err error) *TransportError {
	return &TransportError{Method: method, Op: op, Err: err}
}

// ConfigurationError wraps a missing-configuration failure. Never retried.
type ConfigurationError struct {
	Method models.ChannelMethod
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration failure: %v", e.Method, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a fail-fast configuration error for the given channel.
func NewConfigurationError(method models.ChannelMethod, err error) *ConfigurationError {
	return &ConfigurationError{Method: method, Err: err}
}

// IsTransport reports whether the error is a retryable transport failure.
func IsTransport(err error) bool {
	var te *TransportError

	return errors.As(err, &te)
}

// IsConfiguration reports whether the error is a fail-fast configuration failure.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError

	return errors.As(err, &ce)
}

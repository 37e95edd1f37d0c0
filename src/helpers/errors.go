package helpers

import (
	"fmt"

	"github.com/juju/errors"
)

// -----------------------------------------------------------------------------
// Sentinels, matched with errors.Is
// -----------------------------------------------------------------------------

const (
	ErrNotLocatable    = errors.ConstError("multi-signature service cannot be located")
	ErrRequestFailed   = errors.ConstError("request failed")
	ErrResponse        = errors.ConstError("response error")
	ErrFetchFailed     = errors.ConstError("fetching signature requests failed")
	ErrStreamTransient = errors.ConstError("multisig service event stream crashed")
	ErrStreamClosed    = errors.ConstError("subscription closed")
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MultisigError struct {
	Message string
	Cause   error
}

func (e *MultisigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MultisigError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------

// NotLocatableError: the discovery document exists but names no coordinator.
type NotLocatableError struct {
	MultisigError
	Domain string
}

func NewNotLocatableError(domain string) *NotLocatableError {
	return &NotLocatableError{
		MultisigError: MultisigError{Message: fmt.Sprintf("Multi-signature service cannot be located: %s", domain)},
		Domain:        domain,
	}
}

func (e *NotLocatableError) Is(target error) bool { return target == ErrNotLocatable }

// -----------------------------------------------------------------------------

// RequestFailedError: the request was sent but no response came back.
type RequestFailedError struct {
	MultisigError
	URL string
}

func NewRequestFailedError(url string, cause error) *RequestFailedError {
	return &RequestFailedError{
		MultisigError: MultisigError{Message: fmt.Sprintf("request to %s failed", url), Cause: cause},
		URL:           url,
	}
}

func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }

// -----------------------------------------------------------------------------

// ResponseError: the server answered with a non-success status.
type ResponseError struct {
	MultisigError
	URL        string
	StatusCode int
	Body       string
}

func NewResponseError(url string, statusCode int, body string) *ResponseError {
	return &ResponseError{
		MultisigError: MultisigError{Message: fmt.Sprintf("%s responded with status %d: %s", url, statusCode, body)},
		URL:           url,
		StatusCode:    statusCode,
		Body:          body,
	}
}

func (e *ResponseError) Is(target error) bool { return target == ErrResponse }

// -----------------------------------------------------------------------------

// FetchFailedError wraps a failed snapshot call with the coordinator it targeted.
type FetchFailedError struct {
	MultisigError
	ServiceURL string
	Body       string
}

func NewFetchFailedError(serviceURL string, cause error) *FetchFailedError {
	body := ""
	var respErr *ResponseError
	if errors.As(cause, &respErr) {
		body = respErr.Body
	}
	return &FetchFailedError{
		MultisigError: MultisigError{
			Message: fmt.Sprintf("Fetching signature requests failed: %s\nService: %s", body, serviceURL),
			Cause:   cause,
		},
		ServiceURL: serviceURL,
		Body:       body,
	}
}

func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }

// -----------------------------------------------------------------------------

// StreamTransientError is an event stream failure the subscription recovers from.
type StreamTransientError struct {
	MultisigError
	URL    string
	Closed bool
}

func NewStreamTransientError(url string, closed bool, cause error) *StreamTransientError {
	return &StreamTransientError{
		MultisigError: MultisigError{Message: "Multisig service event stream crashed", Cause: cause},
		URL:           url,
		Closed:        closed,
	}
}

func (e *StreamTransientError) Is(target error) bool { return target == ErrStreamTransient }

// Package fault defines the error taxonomy shared by the pipeline's
// clients and the session controller. Call sites branch on these types
// to decide between degraded continuation and session failure.
package fault

import (
	"errors"
	"fmt"
)

// DeviceError reports that the audio input could not be acquired or was
// lost mid-session (permission denied, no device, device unplugged).
// Fatal to starting a session.
type DeviceError struct {
	Reason string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio device: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio device: %s", e.Reason)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// UnavailableError reports a transport-level failure: the dependency
// could not be reached at all. Recoverable; the pipeline continues in
// degraded mode where the dependency is non-essential.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ServiceError reports that a dependency was reachable but returned a
// failure status. Message carries the server-supplied detail when the
// response body contained one.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned %d", e.Service, e.StatusCode)
}

// InvalidInputError reports locally-detected bad input (empty or
// below-minimum-size audio). Never sent over the network; remote
// services reliably fail or hang on near-empty audio.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// ErrStreamDisconnected marks a dropped push channel. The channel wraps
// it in an UnavailableError once the bounded reconnect budget is spent.
var ErrStreamDisconnected = errors.New("stream disconnected")

// IsDevice reports whether err is a DeviceError.
func IsDevice(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// IsUnavailable reports whether err is a transport-level failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsService reports whether err is a remote failure status.
func IsService(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// IsInvalidInput reports whether err was rejected locally before any
// network call.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device name does not exist in a class.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a duplicate name within a class.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidClass is returned when a class value is not recognised.
	ErrInvalidClass = errors.New("device: invalid class")

	// ErrInvalidName is returned when a device name is empty.
	ErrInvalidName = errors.New("device: invalid name")
)

package camdrv

import (
	"errors"
	"fmt"
)

// DeviceID identifies one of the two physical cameras on the rig.
type DeviceID int

const (
	// LeftDevice and RightDevice are the fixed vendor device ids of the
	// stereo pair. The SDK assigns them at enumeration time; the rig is
	// cabled so that they never change.
	LeftDevice  DeviceID = 1
	RightDevice DeviceID = 2
)

// Rect describes a region of interest on the sensor, in pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// EncodeStatus is the outcome of an encode-and-save operation. The vendor
// SDK reports these as plain integer codes; known codes get a name, anything
// else is formatted as unknown(<n>).
type EncodeStatus int

const (
	EncodeOK EncodeStatus = iota
	EncodeInvalidParameter
	EncodeInvalidBufferID
	EncodeFileOpenError
	EncodeNoSuccess
	EncodeNotSupported
)

func (s EncodeStatus) String() string {
	switch s {
	case EncodeOK:
		return "ok"
	case EncodeInvalidParameter:
		return "invalid parameter"
	case EncodeInvalidBufferID:
		return "invalid buffer id"
	case EncodeFileOpenError:
		return "file open error"
	case EncodeNoSuccess:
		return "no success"
	case EncodeNotSupported:
		return "not supported"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	// ErrDeviceUnavailable means the driver reports fewer cameras than the
	// rig needs. Fatal at startup.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrConfiguration means the driver rejected part of the per-device
	// setup (open, auto-release, buffer, pixel format, AOI).
	ErrConfiguration = errors.New("camera configuration rejected")

	// ErrFreezeBusy is the retryable acquisition failure: the device is
	// still busy with the previous transfer. Callers may retry.
	ErrFreezeBusy = errors.New("device busy, no frame acquired")

	// ErrNotOpen is returned for any operation on a device that has not
	// been opened (or has been released).
	ErrNotOpen = errors.New("device not open")
)

// Driver is the abstract interface to the vendor camera SDK. The capture
// logic only ever talks to this interface, so a simulated driver can stand
// in for the real SDK during development and tests.
type Driver interface {
	// NumDevices reports how many cameras the driver can see.
	NumDevices() (int, error)

	// Open attaches driver resources to the device.
	Open(id DeviceID) error

	// EnableAutoRelease asks the driver to free everything it allocated
	// for the device if the process exits or the device is unplugged
	// mid-operation.
	EnableAutoRelease(id DeviceID) error

	// AllocFrameBuffer allocates a frame buffer sized for the device's
	// native resolution.
	AllocFrameBuffer(id DeviceID, width, height, bitsPerPixel int) error

	// BindFrameBuffer makes the allocated buffer the active capture
	// target. The driver may switch targets on its own, so capture paths
	// re-bind before every acquisition.
	BindFrameBuffer(id DeviceID) error

	// SetPixelFormat selects the vendor pixel format code.
	SetPixelFormat(id DeviceID, format int) error

	// SetAOI restricts captures to a sub-rectangle of the sensor.
	SetAOI(id DeviceID, r Rect) error

	// Freeze performs a blocking single-frame acquisition. A transient
	// failure is reported as ErrFreezeBusy.
	Freeze(id DeviceID) error

	// SaveImage encodes the last acquired frame as JPEG at the given
	// quality and writes it to path.
	SaveImage(id DeviceID, path string, quality int) EncodeStatus

	// Close releases the device and any driver-side memory. Closing an
	// already-released device must be harmless.
	Close(id DeviceID) error
}

// New creates a driver implementation by type name, mirroring how the rest
// of the configuration selects concrete hardware. "sim" is the built-in
// simulated pair; the real vendor SDK binding lives in a separate build.
func New(kind string) (Driver, error) {
	switch kind {
	case "sim":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("unsupported driver type: %s", kind)
	}
}

package pair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkeller/duocam/internal/debug"
	"github.com/mkeller/duocam/internal/hw/camdrv"
)

var (
	// ErrFreezeTimeout means the device stayed busy for every configured
	// acquisition attempt.
	ErrFreezeTimeout = errors.New("no frame acquired within retry budget")

	// ErrEncodeFailed is returned under the strict encode policy when the
	// driver reports a non-success save outcome.
	ErrEncodeFailed = errors.New("frame encode failed")
)

// EncodePolicy decides what a non-success encode outcome does to the
// capture call.
type EncodePolicy int

const (
	// EncodeStrict fails the capture call. Default: returning bytes that
	// may belong to an older frame is almost never what the caller wants.
	EncodeStrict EncodePolicy = iota
	// EncodeTolerate logs the outcome and returns whatever artifact is on
	// disk, reproducing the legacy behavior.
	EncodeTolerate
)

// ParseEncodePolicy maps the configuration spelling to a policy.
func ParseEncodePolicy(s string) (EncodePolicy, error) {
	switch s {
	case "strict":
		return EncodeStrict, nil
	case "tolerate":
		return EncodeTolerate, nil
	default:
		return EncodeStrict, fmt.Errorf("unknown encode policy: %q", s)
	}
}

// Config holds the fixed capture parameters for both devices.
type Config struct {
	ImageDir     string
	Width        int // native sensor width
	Height       int // native sensor height
	BitsPerPixel int
	PixelFormat  int
	JPEGQuality  int

	// Logical dimensions attached to every returned frame.
	ReplyWidth  int
	ReplyHeight int

	AOI *camdrv.Rect // optional sensor sub-rectangle

	FreezeAttempts int           // max blocking acquisition tries per capture
	FreezeBackoff  time.Duration // backoff unit, scales linearly per attempt

	EncodePolicy EncodePolicy
}

// Frame is one captured still image.
type Frame struct {
	Device camdrv.DeviceID
	Seq    uint64 // per-device sequence number, also part of the filename
	Bytes  []byte // encoded JPEG as written by the driver
	Width  int    // fixed logical width, same for both devices
	Height int    // fixed logical height
}

// Controller owns the two physical cameras and snaps images in an
// alternating fashion between them. It is not safe for concurrent use; the
// whole system is single-threaded around it by design.
type Controller struct {
	drv     camdrv.Driver
	cfg     Config
	devices [2]camdrv.DeviceID
	opened  [2]bool
	seq     [2]uint64
	next    int // rotation cursor: index of the device that fires next
	closed  bool
}

// New creates a controller for the fixed left/right pair. Initialize must
// be called before the first capture.
func New(drv camdrv.Driver, cfg Config) *Controller {
	if cfg.FreezeAttempts < 1 {
		cfg.FreezeAttempts = 1
	}
	return &Controller{
		drv:     drv,
		cfg:     cfg,
		devices: [2]camdrv.DeviceID{camdrv.LeftDevice, camdrv.RightDevice},
	}
}

// Initialize verifies that two cameras are attached and runs the fixed
// per-device setup for each. Any failure aborts initialization; devices
// opened before the failure are released by Close.
func (c *Controller) Initialize(ctx context.Context) error {
	n, err := c.drv.NumDevices()
	if err != nil {
		return fmt.Errorf("enumerate cameras: %w", err)
	}
	if n < 2 {
		return fmt.Errorf("two cameras not available (driver reports %d): %w", n, camdrv.ErrDeviceUnavailable)
	}

	if err := os.MkdirAll(c.cfg.ImageDir, 0o755); err != nil {
		return fmt.Errorf("create image dir %s: %w", c.cfg.ImageDir, err)
	}

	for i, id := range c.devices {
		if err := ctx.Err(); err != nil {
			return err
		}
		debug.Verbose("Initializing camera %d", id)
		if err := c.drv.Open(id); err != nil {
			return fmt.Errorf("open camera %d: %w: %w", id, camdrv.ErrConfiguration, err)
		}
		// Mark before configuring so a half-configured device is still
		// released by Close.
		c.opened[i] = true
		if err := c.configureDevice(id); err != nil {
			return err
		}
	}
	return nil
}

// configureDevice runs the fixed setup order for one opened device. Every
// step the driver rejects is a configuration error.
func (c *Controller) configureDevice(id camdrv.DeviceID) error {
	if err := c.drv.EnableAutoRelease(id); err != nil {
		return fmt.Errorf("enable auto release for camera %d: %w: %w", id, camdrv.ErrConfiguration, err)
	}
	if err := c.drv.AllocFrameBuffer(id, c.cfg.Width, c.cfg.Height, c.cfg.BitsPerPixel); err != nil {
		return fmt.Errorf("allocate frame buffer for camera %d: %w: %w", id, camdrv.ErrConfiguration, err)
	}
	if err := c.drv.BindFrameBuffer(id); err != nil {
		return fmt.Errorf("bind frame buffer for camera %d: %w: %w", id, camdrv.ErrConfiguration, err)
	}
	if err := c.drv.SetPixelFormat(id, c.cfg.PixelFormat); err != nil {
		return fmt.Errorf("set pixel format for camera %d: %w: %w", id, camdrv.ErrConfiguration, err)
	}
	if c.cfg.AOI != nil {
		if err := c.drv.SetAOI(id, *c.cfg.AOI); err != nil {
			return fmt.Errorf("set AOI for camera %d: %w: %w", id, camdrv.ErrConfiguration, err)
		}
	}
	return nil
}

// CaptureNext snaps a frame from the device at the rotation cursor. The
// cursor advances exactly once per call, even when the capture fails, so
// the left/right alternation never drifts.
func (c *Controller) CaptureNext(ctx context.Context) (Frame, error) {
	idx := c.next
	c.next = (c.next + 1) % len(c.devices)

	id := c.devices[idx]
	seq := c.seq[idx]
	c.seq[idx]++

	start := time.Now()

	// Re-bind the frame buffer: the driver may have switched capture
	// targets since the last snap on this device.
	if err := c.drv.BindFrameBuffer(id); err != nil {
		return Frame{}, fmt.Errorf("rebind buffer for camera %d: %w", id, err)
	}

	if err := c.freeze(ctx, id); err != nil {
		return Frame{}, err
	}

	path := filepath.Join(c.cfg.ImageDir, fmt.Sprintf("camera-%d-%d.jpg", id, seq))
	if status := c.drv.SaveImage(id, path, c.cfg.JPEGQuality); status != camdrv.EncodeOK {
		debug.Encode(int(id), status)
		if c.cfg.EncodePolicy == EncodeStrict {
			return Frame{}, fmt.Errorf("save camera %d frame %d (%s): %w", id, seq, status, ErrEncodeFailed)
		}
		// Tolerate: proceed and return whatever is on disk. The read
		// below surfaces a missing artifact.
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read back %s: %w", path, err)
	}

	debug.Timing(int(id), time.Since(start))
	debug.Snap(int(id), seq, len(data))

	return Frame{
		Device: id,
		Seq:    seq,
		Bytes:  data,
		Width:  c.cfg.ReplyWidth,
		Height: c.cfg.ReplyHeight,
	}, nil
}

// freeze runs the blocking acquisition with a bounded retry budget. Only
// the driver's busy condition is retried; anything else fails immediately.
func (c *Controller) freeze(ctx context.Context, id camdrv.DeviceID) error {
	for attempt := 1; ; attempt++ {
		err := c.drv.Freeze(id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, camdrv.ErrFreezeBusy) {
			return fmt.Errorf("freeze camera %d: %w", id, err)
		}
		if attempt >= c.cfg.FreezeAttempts {
			return fmt.Errorf("freeze camera %d after %d attempts: %w", id, attempt, ErrFreezeTimeout)
		}
		debug.Verbose("Camera %d busy, retrying (attempt %d/%d)", id, attempt, c.cfg.FreezeAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.FreezeBackoff * time.Duration(attempt)):
		}
	}
}

// Close releases both devices. Errors are logged and joined into the
// return value; there is nothing to recover at this point, so callers
// typically just log it. Closing twice is a no-op.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs error
	for i, id := range c.devices {
		if !c.opened[i] {
			continue
		}
		if err := c.drv.Close(id); err != nil {
			debug.Error(fmt.Errorf("release camera %d: %w", id, err))
			errs = errors.Join(errs, fmt.Errorf("release camera %d: %w", id, err))
		}
		c.opened[i] = false
	}
	return errs
}

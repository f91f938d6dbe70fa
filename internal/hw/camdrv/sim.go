package camdrv

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	"github.com/mkeller/duocam/internal/debug"
)

// Sim is a simulated camera pair for development on machines without the
// vendor SDK or the physical rig. It renders a moving test pattern per
// device and encodes real JPEG artifacts, so the rest of the system behaves
// exactly as it does against hardware.
type Sim struct {
	devices map[DeviceID]*simDevice
}

type simDevice struct {
	open        bool
	autoRelease bool
	width       int
	height      int
	bits        int
	bound       bool
	format      int
	aoi         *Rect
	frames      int // count of successful Freeze calls, drives the pattern
	acquired    bool
}

// NewSim creates a simulated driver that reports exactly the two devices of
// the stereo pair.
func NewSim() *Sim {
	debug.Info("Using SIM camera driver (development mode)")
	return &Sim{
		devices: map[DeviceID]*simDevice{
			LeftDevice:  {},
			RightDevice: {},
		},
	}
}

func (s *Sim) NumDevices() (int, error) {
	return len(s.devices), nil
}

func (s *Sim) Open(id DeviceID) error {
	debug.Driver("Open", id)
	dev, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("device %d: %w", id, ErrDeviceUnavailable)
	}
	dev.open = true
	return nil
}

func (s *Sim) EnableAutoRelease(id DeviceID) error {
	debug.Driver("EnableAutoRelease", id)
	dev, err := s.device(id)
	if err != nil {
		return err
	}
	dev.autoRelease = true
	return nil
}

func (s *Sim) AllocFrameBuffer(id DeviceID, width, height, bitsPerPixel int) error {
	debug.Driver("AllocFrameBuffer", id)
	dev, err := s.device(id)
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("frame buffer %dx%d: %w", width, height, ErrConfiguration)
	}
	dev.width = width
	dev.height = height
	dev.bits = bitsPerPixel
	return nil
}

func (s *Sim) BindFrameBuffer(id DeviceID) error {
	debug.Driver("BindFrameBuffer", id)
	dev, err := s.device(id)
	if err != nil {
		return err
	}
	if dev.width == 0 {
		return fmt.Errorf("no frame buffer allocated for device %d: %w", id, ErrConfiguration)
	}
	dev.bound = true
	return nil
}

func (s *Sim) SetPixelFormat(id DeviceID, format int) error {
	debug.Driver("SetPixelFormat", id)
	dev, err := s.device(id)
	if err != nil {
		return err
	}
	dev.format = format
	return nil
}

func (s *Sim) SetAOI(id DeviceID, r Rect) error {
	debug.Driver("SetAOI", id)
	dev, err := s.device(id)
	if err != nil {
		return err
	}
	if r.Width <= 0 || r.Height <= 0 ||
		r.X < 0 || r.Y < 0 ||
		r.X+r.Width > dev.width || r.Y+r.Height > dev.height {
		return fmt.Errorf("AOI %+v outside %dx%d sensor: %w", r, dev.width, dev.height, ErrConfiguration)
	}
	aoi := r
	dev.aoi = &aoi
	return nil
}

func (s *Sim) Freeze(id DeviceID) error {
	dev, err := s.device(id)
	if err != nil {
		return err
	}
	if !dev.bound {
		return fmt.Errorf("device %d has no bound buffer: %w", id, ErrFreezeBusy)
	}
	dev.frames++
	dev.acquired = true
	return nil
}

func (s *Sim) SaveImage(id DeviceID, path string, quality int) EncodeStatus {
	dev, err := s.device(id)
	if err != nil {
		return EncodeNoSuccess
	}
	if !dev.acquired {
		return EncodeInvalidBufferID
	}
	if quality < 1 || quality > 100 {
		return EncodeInvalidParameter
	}

	f, err := os.Create(path)
	if err != nil {
		debug.Error(fmt.Errorf("sim: create %s: %w", path, err))
		return EncodeFileOpenError
	}
	defer f.Close()

	if err := jpeg.Encode(f, dev.render(id), &jpeg.Options{Quality: quality}); err != nil {
		debug.Error(fmt.Errorf("sim: encode %s: %w", path, err))
		return EncodeNoSuccess
	}
	return EncodeOK
}

func (s *Sim) Close(id DeviceID) error {
	debug.Driver("Close", id)
	dev, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("device %d: %w", id, ErrDeviceUnavailable)
	}
	// Closing a never-opened or already-closed device is harmless,
	// matching the vendor release semantics.
	dev.open = false
	dev.bound = false
	dev.acquired = false
	return nil
}

func (s *Sim) device(id DeviceID) (*simDevice, error) {
	dev, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, ErrDeviceUnavailable)
	}
	if !dev.open {
		return nil, fmt.Errorf("device %d: %w", id, ErrNotOpen)
	}
	return dev, nil
}

// render produces the test pattern for the last acquired frame: diagonal
// bands whose phase moves with the frame count, tinted per device so left
// and right artifacts are distinguishable by eye.
func (sd *simDevice) render(id DeviceID) image.Image {
	w, h := sd.width, sd.height
	if sd.aoi != nil {
		w, h = sd.aoi.Width, sd.aoi.Height
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	phase := sd.frames * 16
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x + y + phase) & 0xff)
			c := color.RGBA{R: v, G: v, B: v, A: 0xff}
			if id == LeftDevice {
				c.R = 0xff - v
			} else {
				c.B = 0xff - v
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

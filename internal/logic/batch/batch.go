package batch

import (
	"context"
	"fmt"

	"github.com/mkeller/duocam/internal/debug"
	"github.com/mkeller/duocam/internal/logic/pair"
)

// Snapper is the slice of the controller the harness needs.
type Snapper interface {
	CaptureNext(ctx context.Context) (pair.Frame, error)
}

// Run drives a fixed number of capture cycles with no network in between.
// It exercises exactly the same controller and rotation as the server, so
// it doubles as an on-rig diagnostic: artifacts land in the image directory
// and timings appear in the log.
func Run(ctx context.Context, ctrl Snapper, count int) error {
	debug.Section("Batch Capture")
	debug.Value("Iterations", count)

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := ctrl.CaptureNext(ctx)
		if err != nil {
			return fmt.Errorf("capture %d/%d: %w", i+1, count, err)
		}
		debug.Live("Batch %d/%d: camera=%d seq=%d bytes=%d",
			i+1, count, frame.Device, frame.Seq, len(frame.Bytes))
	}

	debug.Section("Batch Complete")
	return nil
}

package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mkeller/duocam/internal/debug"
	"github.com/mkeller/duocam/internal/logic/pair"
)

// SnapFunc captures the next frame in rotation. The controller's
// CaptureNext satisfies it directly.
type SnapFunc func(ctx context.Context) (pair.Frame, error)

// Options configures the reply format.
type Options struct {
	// Envelope wraps replies in a msgpack (bytes, width, height) tuple
	// instead of sending the raw JPEG bytes.
	Envelope bool
}

// Server is the request/reply front end. One request triggers one capture;
// the reply is the captured image. The REP socket enforces one exchange in
// flight at a time, so a request arriving mid-capture simply waits on the
// transport until the current reply is sent.
type Server struct {
	sock zmq4.Socket
	snap SnapFunc
	opts Options
}

// New creates a server around an already-bound REP socket.
func New(sock zmq4.Socket, snap SnapFunc, opts Options) *Server {
	return &Server{
		sock: sock,
		snap: snap,
		opts: opts,
	}
}

// Run processes requests until ctx is cancelled. A failed capture is logged
// and answered with an empty payload (REP must answer every request before
// it can receive the next one); the loop itself keeps serving.
func (s *Server) Run(ctx context.Context) error {
	for {
		debug.Live("waiting for request...")
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recv request: %w", err)
		}

		exchange := uuid.NewString()
		start := time.Now()
		// Request payload content is irrelevant; any receipt triggers a capture.
		debug.Trace("request exchange=%s payload=%dB", exchange, len(msg.Bytes()))

		frame, err := s.snap(ctx)
		if err != nil {
			debug.Error(fmt.Errorf("capture for exchange %s: %w", exchange, err))
			frame = pair.Frame{}
		}

		payload, err := s.encode(frame)
		if err != nil {
			return fmt.Errorf("encode reply for exchange %s: %w", exchange, err)
		}
		if err := s.sock.Send(zmq4.NewMsg(payload)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send reply for exchange %s: %w", exchange, err)
		}

		debug.Live("...sent image camera=%d bytes=%d elapsed=%dms",
			frame.Device, len(frame.Bytes), time.Since(start).Milliseconds())
	}
}

// encode builds the reply payload: raw JPEG bytes, or the msgpack
// (bytes, width, height) tuple when the envelope is enabled.
func (s *Server) encode(f pair.Frame) ([]byte, error) {
	if !s.opts.Envelope {
		return f.Bytes, nil
	}
	return msgpack.Marshal([]interface{}{f.Bytes, f.Width, f.Height})
}

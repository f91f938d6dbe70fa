package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mkeller/duocam/internal/hw/camdrv"
	"github.com/mkeller/duocam/internal/logic/pair"
)

// countingSnapper alternates devices and counts calls.
type countingSnapper struct {
	calls   int
	failAt  int // call number that fails, 0 = never
	failErr error
}

func (s *countingSnapper) CaptureNext(ctx context.Context) (pair.Frame, error) {
	s.calls++
	if s.failAt != 0 && s.calls == s.failAt {
		return pair.Frame{}, s.failErr
	}
	dev := camdrv.LeftDevice
	if s.calls%2 == 0 {
		dev = camdrv.RightDevice
	}
	return pair.Frame{
		Device: dev,
		Seq:    uint64((s.calls - 1) / 2),
		Bytes:  []byte(fmt.Sprintf("frame-%d", s.calls)),
	}, nil
}

func TestRun_CapturesExactlyCount(t *testing.T) {
	snap := &countingSnapper{}
	if err := Run(context.Background(), snap, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.calls != 10 {
		t.Errorf("captures = %d, want 10", snap.calls)
	}
}

func TestRun_StopsOnError(t *testing.T) {
	snap := &countingSnapper{failAt: 3, failErr: pair.ErrFreezeTimeout}
	err := Run(context.Background(), snap, 10)
	if !errors.Is(err, pair.ErrFreezeTimeout) {
		t.Fatalf("err = %v, want ErrFreezeTimeout", err)
	}
	if snap.calls != 3 {
		t.Errorf("captures = %d, want 3 (stop at first failure)", snap.calls)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	snap := &countingSnapper{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, snap, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if snap.calls != 0 {
		t.Errorf("captures = %d, want 0 after immediate cancellation", snap.calls)
	}
}

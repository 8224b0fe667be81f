package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/ayusman/airdeck/internal/keypoint"
)

// helperEstimator runs this test binary as the pose service. mode selects the
// behaviour of TestHelperPoseService.
func helperEstimator(mode string) *SubprocessEstimator {
	e := NewSubprocessEstimator(SubprocessOptions{Python: "python3", Script: "pose_service.py"})
	e.command = func(name string, args ...string) *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=TestHelperPoseService")
		cmd.Env = append(os.Environ(), "AIRDECK_HELPER_SERVICE="+mode)
		return cmd
	}
	return e
}

// TestHelperPoseService is not a real test. It speaks the service protocol
// when started by helperEstimator.
func TestHelperPoseService(t *testing.T) {
	mode := os.Getenv("AIRDECK_HELPER_SERVICE")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "silent":
		io.Copy(io.Discard, os.Stdin)
		return
	case "garbage":
		fmt.Println("loading weights")
		return
	}

	fmt.Println(readyLine)
	in := bufio.NewReader(os.Stdin)
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(in, header); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(header)
		if _, err := io.CopyN(io.Discard, in, int64(n)); err != nil {
			return
		}
		if mode == "hang" {
			select {}
		}
		json.NewEncoder(os.Stdout).Encode(response{Poses: []Pose{{
			Score: 0.9,
			Keypoints: []keypoint.Keypoint{
				{Name: keypoint.LeftWrist, X: float64(n % 640), Y: 100, Score: 0.8},
				{Name: keypoint.RightWrist, X: 300, Y: 100, Score: 0.8},
			},
		}}})
	}
}

func TestSubprocessEstimator_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}

	e := helperEstimator("ok")
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		poses, err := e.Estimate(ctx, testFrame(t))
		if err != nil {
			t.Fatalf("Estimate() %d error = %v", i, err)
		}
		if len(poses) != 1 || len(poses[0].Keypoints) != 2 {
			t.Fatalf("Estimate() %d = %+v", i, poses)
		}
	}
}

func TestSubprocessEstimator_Handshake(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}

	t.Run("unexpected line", func(t *testing.T) {
		e := helperEstimator("garbage")
		defer e.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Init(ctx); err == nil {
			t.Error("Init() should fail on a bad handshake")
		}
	})

	t.Run("never ready", func(t *testing.T) {
		e := helperEstimator("silent")
		defer e.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if err := e.Init(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Init() error = %v, want DeadlineExceeded", err)
		}
	})
}

func TestSubprocessEstimator_EstimateCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}

	e := helperEstimator("hang")
	defer e.Close()

	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := e.Estimate(ctx, testFrame(t)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Estimate() error = %v, want DeadlineExceeded", err)
	}
	if e.started {
		t.Error("service should be stopped after a cancelled estimate")
	}
}

func TestSubprocessEstimator_Closed(t *testing.T) {
	e := helperEstimator("ok")
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Init(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Init() after Close error = %v, want ErrClosed", err)
	}
	if _, err := e.Estimate(context.Background(), testFrame(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("Estimate() after Close error = %v, want ErrClosed", err)
	}
}

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
	"path/filepath"
	"strings"
	"sync"

	"github.com/ayusman/airdeck/internal/logging"
	"gocv.io/x/gocv"
)

// readyLine is printed by the service once its model is loaded.
const readyLine = "ready"

// SubprocessOptions configure a SubprocessEstimator.
type SubprocessOptions struct {
	// Python is the interpreter. Empty means a project virtualenv if one is
	// found, otherwise python3.
	Python string
	// Script is the service script. Empty means search the usual locations.
	Script string
}

// SubprocessEstimator runs the pose model as a child process. Frames are sent
// on stdin as a 4-byte big-endian length followed by JPEG bytes; each frame is
// answered with one JSON line on stdout.
type SubprocessEstimator struct {
	opts SubprocessOptions

	// command builds the child process. Replaced in tests.
	command func(name string, args ...string) *exec.Cmd

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
	closed  bool
}

// NewSubprocessEstimator creates an estimator. The process starts in Init.
func NewSubprocessEstimator(opts SubprocessOptions) *SubprocessEstimator {
	return &SubprocessEstimator{
		opts:    opts,
		command: exec.Command,
	}
}

// Init starts the service and waits for its ready line.
func (e *SubprocessEstimator) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}
	return e.start(ctx)
}

// Estimate sends one frame and waits for its poses. If ctx ends first the
// service is stopped, since the pending response would desynchronise the
// stream; the next call restarts it.
func (e *SubprocessEstimator) Estimate(ctx context.Context, frame *gocv.Mat) ([]Pose, error) {
	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if !e.started {
		if err := e.start(ctx); err != nil {
			return nil, err
		}
	}

	line, err := e.roundTrip(ctx, data)
	if err != nil {
		e.shutdown()
		return nil, err
	}

	var resp response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if err := resp.err(); err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	return resp.Poses, nil
}

// Close stops the service. Further calls fail with ErrClosed.
func (e *SubprocessEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	return e.shutdown()
}

func (e *SubprocessEstimator) start(ctx context.Context) error {
	script := e.opts.Script
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return errors.New("pose service script not found")
	}
	python := e.opts.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	cmd := e.command(python, script)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.started = true

	line, err := e.readLine(ctx)
	if err != nil {
		e.shutdown()
		return fmt.Errorf("wait for pose service: %w", err)
	}
	if strings.TrimSpace(line) != readyLine {
		e.shutdown()
		return fmt.Errorf("unexpected handshake %q", strings.TrimSpace(line))
	}

	logging.Info("pose service started", "python", python, "script", script)
	return nil
}

func (e *SubprocessEstimator) roundTrip(ctx context.Context, data []byte) (string, error) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	if _, err := e.stdin.Write(header); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}

	line, err := e.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// readLine reads one line from the service, giving up when ctx ends.
func (e *SubprocessEstimator) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	stdout := e.stdout
	go func() {
		line, err := stdout.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *SubprocessEstimator) shutdown() error {
	if !e.started {
		return nil
	}

	if e.stdin != nil {
		e.stdin.Close()
	}
	if e.cmd.Process != nil {
		// The service exits on stdin EOF; kill covers a hung model.
		e.cmd.Process.Kill()
	}
	err := e.cmd.Wait()

	e.started = false
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func findServiceScript() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	return firstExisting(
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".airdeck/scripts/pose_service.py"),
	)
}

func findVenvPython() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	return firstExisting(
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".airdeck/venv/bin/python"),
	)
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

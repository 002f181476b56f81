package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const execExitWait = 5 * time.Second

// ExecDialer starts one worker process per partition and speaks the
// protocol over its stdin and stdout. Anything the worker writes to stderr
// is forwarded to Logger.
type ExecDialer struct {
	// Command defaults to the running executable.
	Command string
	// Args default to "worker --transport stdio".
	Args   []string
	Env    []string
	Logger *zap.SugaredLogger
}

func (d *ExecDialer) Name() string { return "exec" }

func (d *ExecDialer) Dial(ctx context.Context, partition int) (CoordinatorConn, error) {
	command := d.Command
	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve worker executable: %w", err)
		}
		command = self
	}
	args := d.Args
	if len(args) == 0 {
		args = []string{"worker", "--transport", "stdio"}
	}

	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), d.Env...)
	cmd.Env = append(cmd.Env, "ARGUS_WORKER_PARTITION="+strconv.Itoa(partition))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %q: %w", command, err)
	}

	logger := d.Logger.With("partition", partition, "pid", cmd.Process.Pid)
	logger.Debugw("Worker process started", "command", command)

	stderrDone := make(chan struct{})
	go forwardStderr(stderr, logger, stderrDone)

	// Wait closes the pipes, so it must not run while stdout still has
	// unread output, unless the coordinator has stopped reading.
	out := &eofNotifier{r: stdout, done: make(chan struct{})}
	closing := make(chan struct{})
	exited := make(chan error, 1)
	go func() {
		<-stderrDone
		select {
		case <-out.done:
		case <-closing:
		}
		exited <- cmd.Wait()
	}()

	onClose := func() error {
		close(closing)
		_ = stdin.Close()
		select {
		case err := <-exited:
			return exitError(err)
		case <-time.After(execExitWait):
			logger.Warnw("Worker process did not exit, killing it")
			_ = cmd.Process.Kill()
			return exitError(<-exited)
		}
	}

	return NewStreamCoordinatorConn(out, stdin, onClose), nil
}

// eofNotifier closes done once the wrapped reader returns an error.
type eofNotifier struct {
	r    io.Reader
	done chan struct{}
	once sync.Once
}

func (n *eofNotifier) Read(p []byte) (int, error) {
	k, err := n.r.Read(p)
	if err != nil {
		n.once.Do(func() { close(n.done) })
	}
	return k, err
}

func forwardStderr(r io.Reader, logger *zap.SugaredLogger, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		logger.Info(scanner.Text())
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %v", ErrWorkerExited, exitErr)
	}
	return err
}

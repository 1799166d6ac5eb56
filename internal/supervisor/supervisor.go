// Package supervisor owns the lifecycle of one external proxy-core process:
// start, settle, liveness, graceful stop with kill fallback, guaranteed reap.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle of one supervised process.
type State int

const (
	NotStarted State = iota
	Running
	Stopping
	Stopped
	// Crashed means the process exited on its own while Running, before a
	// stop was requested.
	Crashed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Crashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrCoreMissing reports a missing executable or config file at start.
var ErrCoreMissing = errors.New("core binary or config file missing")

type Supervisor struct {
	Log *logrus.Logger

	// Settle is how long Start waits before probing that the process is
	// still alive. Default 3s.
	Settle time.Duration

	// StopGrace is how long Stop waits for a graceful exit before killing.
	// Default 5s.
	StopGrace time.Duration
}

func (s *Supervisor) settle() time.Duration {
	if s.Settle > 0 {
		return s.Settle
	}
	return 3 * time.Second
}

func (s *Supervisor) stopGrace() time.Duration {
	if s.StopGrace > 0 {
		return s.StopGrace
	}
	return 5 * time.Second
}

func (s *Supervisor) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// Process is the handle for one supervised core process. It is owned by the
// probe that started it and must not outlive it.
type Process struct {
	cmd       *exec.Cmd
	stopGrace time.Duration
	log       *logrus.Entry

	waitDone chan struct{}
	waitErr  error

	stderr *tailBuffer
	stdout *tailBuffer

	mu    sync.Mutex
	state State
}

// Start launches binary with args after verifying both the executable and the
// config file exist. It waits the settle interval and probes liveness: a
// process that already exited comes back in the Crashed state rather than as
// an error, so the caller can classify it.
func (s *Supervisor) Start(ctx context.Context, binary, configPath string, args ...string) (*Process, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCoreMissing, binary)
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCoreMissing, configPath)
	}
	// Downloaded binaries may arrive without the executable bit.
	if err := os.Chmod(binary, 0o755); err != nil {
		s.logger().WithError(err).WithField("binary", binary).Warn("无法设置核心二进制可执行权限")
	}

	p := &Process{
		cmd:       exec.Command(binary, args...),
		stopGrace: s.stopGrace(),
		log:       s.logger().WithField("binary", binary),
		waitDone:  make(chan struct{}),
		stderr:    newTailBuffer(4096),
		stdout:    newTailBuffer(4096),
		state:     NotStarted,
	}
	// Output capture is diagnostic only; in-memory bounded buffers can never
	// block shutdown.
	p.cmd.Stdout = p.stdout
	p.cmd.Stderr = p.stderr

	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start core: %w", err)
	}
	p.setState(Running)
	p.log = p.log.WithField("pid", p.cmd.Process.Pid)
	p.log.Debug("核心进程已启动")

	go p.waitForExit()

	select {
	case <-time.After(s.settle()):
	case <-p.waitDone:
		// Exited during the settle window; waitForExit flipped the state.
	case <-ctx.Done():
		p.Stop()
		return nil, ctx.Err()
	}
	return p, nil
}

func (p *Process) waitForExit() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	if p.state == Running {
		p.state = Crashed
	}
	p.mu.Unlock()
	close(p.waitDone)
}

func (p *Process) setState(st State) {
	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Alive reports whether the process is still running and no stop has been
// requested.
func (p *Process) Alive() bool {
	return p.State() == Running
}

// Stop requests graceful termination, escalates to SIGKILL after the grace
// period, and always reaps the process. Idempotent: stopping an already
// stopped or crashed handle is a no-op.
func (p *Process) Stop() {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		// Still make sure a crashed process has been reaped.
		<-p.waitDone
		return
	}
	p.state = Stopping
	p.mu.Unlock()

	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-p.waitDone:
	case <-time.After(p.stopGrace):
		p.log.Warn("核心进程未在宽限期内退出，强制终止")
		_ = p.cmd.Process.Kill()
		<-p.waitDone
	}
	p.setState(Stopped)
	p.log.Debug("核心进程已停止")
}

// ExitErr is the error cmd.Wait returned, once the process has exited.
func (p *Process) ExitErr() error {
	select {
	case <-p.waitDone:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.waitErr
	default:
		return nil
	}
}

// StderrTail returns the last captured stderr bytes for diagnostics.
func (p *Process) StderrTail() string { return p.stderr.String() }

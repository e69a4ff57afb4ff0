package daemon

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrNotRunning is returned by Stop when no live process owns the PID file.
var ErrNotRunning = errors.New("server is not running")

// pollInterval is how often Stop checks whether the process has exited.
var pollInterval = 100 * time.Millisecond

// StopResult describes how a Stop call ended.
type StopResult struct {
	PID    int
	Killed bool
}

// Stop sends term to the process named in the PID file and waits up to
// timeout for it to exit, escalating to kill. The PID file is removed once
// the process is gone. A stale PID file is cleaned up and reported as
// ErrNotRunning.
func (p *PIDFile) Stop(term, kill syscall.Signal, timeout time.Duration) (StopResult, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return StopResult{}, ErrNotRunning
	}

	res := StopResult{PID: pid}
	if err := p.Signal(term); err != nil {
		return res, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if p.waitExit(timeout) {
		return res, p.cleanup()
	}

	if err := p.Signal(kill); err != nil {
		return res, fmt.Errorf("kill pid %d: %w", pid, err)
	}
	res.Killed = true
	if !p.waitExit(timeout) {
		return res, fmt.Errorf("pid %d did not exit", pid)
	}
	return res, p.cleanup()
}

func (p *PIDFile) waitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if _, running := p.IsRunning(); !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// cleanup removes the PID file; a file already removed by the exiting
// process is not an error.
func (p *PIDFile) cleanup() error {
	if err := p.Remove(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package controller

import (
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/juju/errors"
)

// Runner manages the write driver process lifecycle. It is the only seam
// between the controller and the driver besides the two state files.
type Runner interface {
	// Spawn starts a driver writing from startNumber with the given
	// sleep interval and returns its process id. The process must
	// outlive the caller.
	Spawn(startNumber int64, sleepInterval time.Duration) (int, error)

	// Terminate asks the process to drain. It returns a NotFound error
	// if no such process exists.
	Terminate(pid int) error

	// Alive reports whether the process is still running.
	Alive(pid int) bool
}

// ExecRunner runs the driver binary as a detached child process.
type ExecRunner struct {
	// DriverPath is the driver executable to spawn.
	DriverPath string

	// Args are extra arguments placed before the positional ones,
	// typically file path overrides.
	Args []string
}

// Spawn is part of the Runner interface.
func (r ExecRunner) Spawn(startNumber int64, sleepInterval time.Duration) (int, error) {
	args := append([]string{}, r.Args...)
	args = append(args,
		strconv.FormatInt(startNumber, 10),
		strconv.FormatInt(sleepInterval.Milliseconds(), 10),
	)
	cmd := exec.Command(r.DriverPath, args...)
	// A new session detaches the driver from the controller's terminal
	// and signal group; it must only stop when told to.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, errors.Annotatef(err, "starting driver %q", r.DriverPath)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return 0, errors.Trace(err)
	}
	return pid, nil
}

// Terminate is part of the Runner interface.
func (r ExecRunner) Terminate(pid int) error {
	err := syscall.Kill(pid, syscall.SIGTERM)
	if err == syscall.ESRCH {
		return errors.NotFoundf("driver process %d", pid)
	} else if err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Alive is part of the Runner interface.
func (r ExecRunner) Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

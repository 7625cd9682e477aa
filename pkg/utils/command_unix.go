//go:build !windows

package utils

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func NewShellCommand(command string) *Command {
	return newCommand(exec.Command("/bin/sh", "-c", command))
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}
}

func (c *Command) signalGroup(sig syscall.Signal) error {
	pid := c.GetPid()
	if pid == 0 {
		return nil
	}

	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Asks the process group to terminate.
func (c *Command) Terminate() error {
	return c.signalGroup(unix.SIGTERM)
}

func (c *Command) Kill() error {
	return c.signalGroup(unix.SIGKILL)
}

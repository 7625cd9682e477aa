//go:build windows

package utils

import "os/exec"

func NewShellCommand(command string) *Command {
	return newCommand(exec.Command("cmd", "/C", command))
}

func setProcessGroup(cmd *exec.Cmd) {}

func (c *Command) Terminate() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

func (c *Command) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

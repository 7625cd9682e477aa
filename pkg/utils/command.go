package utils

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// A child process started through the system shell.
//
// The process is placed in its own process group so that signals reach
// everything the shell command spawns.
type Command struct {
	cmd    *exec.Cmd
	once   sync.Once
	exited chan struct{}
	err    error
}

func newCommand(cmd *exec.Cmd) *Command {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setProcessGroup(cmd)
	return &Command{
		cmd:    cmd,
		exited: make(chan struct{}),
	}
}

func (c *Command) SetStdout(w io.Writer) {
	c.cmd.Stdout = w
}

func (c *Command) SetStderr(w io.Writer) {
	c.cmd.Stderr = w
}

func (c *Command) SetDir(dir string) {
	c.cmd.Dir = dir
}

// Adds variables on top of the current environment.
func (c *Command) AddEnv(env ...string) {
	if c.cmd.Env == nil {
		c.cmd.Env = os.Environ()
	}
	c.cmd.Env = append(c.cmd.Env, env...)
}

// Starts the process. A goroutine reaps it and closes Exited() once it
// has terminated.
func (c *Command) Start() error {
	if err := c.cmd.Start(); err != nil {
		return err
	}

	go func() {
		c.err = c.cmd.Wait()
		close(c.exited)
	}()

	return nil
}

// Closed when the process has exited and been reaped.
func (c *Command) Exited() <-chan struct{} {
	return c.exited
}

// Blocks until the process has exited and returns the result of Wait.
func (c *Command) Wait() error {
	<-c.exited
	return c.err
}

// Exit code of the process, or -1 if it is still running or was
// terminated by a signal.
func (c *Command) ExitCode() int {
	select {
	case <-c.exited:
		return ExitCode(c.err)
	default:
		return -1
	}
}

func (c *Command) GetPid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Returns the exit code carried by an error returned from Wait.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

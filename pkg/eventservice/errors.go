package eventservice

import (
	"errors"
	"fmt"

	"github.com/srand/espilot/pkg/channel"
)

var (
	ErrSpawn         = errors.New("payload could not be started")
	ErrChannel       = channel.ErrChannel
	ErrChildProcess  = errors.New("payload failed")
	ErrProtocolParse = errors.New("unrecognized payload message")
	ErrProtocol      = errors.New("protocol error")
	ErrHookNotBound  = errors.New("hook not bound")
	ErrPayload       = errors.New("payload unavailable")
	ErrCancelled     = errors.New("run cancelled")
	ErrAlreadyRun    = errors.New("process already run")
)

// Returned when the payload exits with a nonzero code.
type ChildProcessError struct {
	// Exit code, -1 if the payload was killed by a signal.
	ExitCode int
	// File the payload's stderr was redirected to.
	ErrorFile string
}

func (e *ChildProcessError) Error() string {
	return fmt.Sprintf("%s: exit code %d", ErrChildProcess, e.ExitCode)
}

func (e *ChildProcessError) Is(target error) bool {
	return target == ErrChildProcess
}

func (e *ChildProcessError) Details() string {
	if e.ErrorFile == "" {
		return ""
	}
	return "see " + e.ErrorFile
}

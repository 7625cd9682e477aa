package eventservice

// Lifecycle of a Process.
//
//	INIT -> SPAWNED -> RUNNING -> COMPLETED|FAILED -> STOPPED
//
// FAILED may also be entered directly from INIT or SPAWNED when
// starting fails. STOPPED is always reached.
type State int

const (
	StateInit State = iota
	StateSpawned
	StateRunning
	StateCompleted
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSpawned:
		return "SPAWNED"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

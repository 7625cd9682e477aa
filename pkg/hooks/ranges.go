package hooks

import (
	"github.com/srand/espilot/pkg/eventservice"
)

// Status of an injected range that has not been reported on.
const StatusPending = "pending"

// What is known about one event range.
type RangeStatus struct {
	ID      string `json:"eventRangeID"`
	Status  string `json:"status"`
	Output  string `json:"output,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	// CPU and wall clock time in seconds.
	CPU  float64 `json:"cpu,omitempty"`
	Wall float64 `json:"wall,omitempty"`
	// Number of times the range was handed out.
	Attempts int `json:"attempts"`
}

// Event range statuses in injection order. Not safe for concurrent use.
type rangeTable struct {
	ranges map[string]*RangeStatus
	order  []string
}

func newRangeTable() *rangeTable {
	return &rangeTable{ranges: map[string]*RangeStatus{}}
}

func (t *rangeTable) get(id string) *RangeStatus {
	status, ok := t.ranges[id]
	if !ok {
		status = &RangeStatus{ID: id}
		t.ranges[id] = status
		t.order = append(t.order, id)
	}
	return status
}

// Marks a range as handed out. Returns false if it already was and
// has not been reported on since.
func (t *rangeTable) inject(id string) bool {
	status := t.get(id)
	reissue := status.Status == StatusPending
	*status = RangeStatus{ID: id, Status: StatusPending, Attempts: status.Attempts + 1}
	return !reissue
}

func (t *rangeTable) report(msg eventservice.OutMessage) {
	status := t.get(msg.ID)
	status.Status = string(msg.Status)
	status.Output = msg.Output
	status.Code = msg.Code
	status.Message = msg.Message
	status.CPU = msg.CPU.Seconds()
	status.Wall = msg.Wall.Seconds()
}

func (t *rangeTable) count(status string) int {
	n := 0
	for _, r := range t.ranges {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (t *rangeTable) list() []RangeStatus {
	statuses := make([]RangeStatus, 0, len(t.order))
	for _, id := range t.order {
		statuses = append(statuses, *t.ranges[id])
	}
	return statuses
}

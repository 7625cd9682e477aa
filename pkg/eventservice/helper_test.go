package eventservice

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// The test binary doubles as payload. It is started by the driver under
// test with ESPILOT_HELPER_PAYLOAD set and speaks the payload side of
// the protocol, behaving as selected by ESPILOT_HELPER_MODE:
//
//	normal     report every range as finished
//	mixed      report ranges with an even start event as failed
//	failed     report every range as failed, adding an event suffix to
//	           the id of ranges with an even start event
//	duplicate  report every range twice
//	garbage    send an unrecognized line first
//	fail       exit with code 3 without asking for work
//	hang       connect and never say anything
func TestHelperPayload(t *testing.T) {
	if os.Getenv("ESPILOT_HELPER_PAYLOAD") != "1" {
		t.Skip("only runs as payload")
	}
	os.Exit(helperPayload(os.Getenv("ESPILOT_HELPER_MODE")))
}

func helperPayload(mode string) int {
	network, address, ok := strings.Cut(os.Getenv(EnvChannel), "://")
	if !ok {
		fmt.Fprintln(os.Stderr, "no channel in environment")
		return 2
	}

	conn, err := net.Dial(network, address)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer conn.Close()

	switch mode {
	case "fail":
		fmt.Fprintln(os.Stderr, "failing as requested")
		return 3
	case "hang":
		time.Sleep(time.Hour)
		return 0
	case "garbage":
		fmt.Fprintln(conn, "Hello world")
	}

	reader := bufio.NewReader(conn)

	for {
		fmt.Fprintln(conn, RequestEventRanges)

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 4
		}

		line = strings.TrimSpace(line)
		if line == NoMoreEvents {
			break
		}

		var ranges []EventRange
		if err := json.Unmarshal([]byte(line), &ranges); err != nil {
			fmt.Fprintf(conn, "ERR_ATHENAMP_PARSE %q: Wrong format\n", line)
			continue
		}

		for _, r := range ranges {
			id := r.ID()
			start, _ := r["startEvent"].(float64)

			switch {
			case mode == "failed" && int(start)%2 == 0:
				fmt.Fprintf(conn, "ERR_ATHENAMP_PROCESS %s-10-20: boom\n", id)
			case mode == "failed":
				fmt.Fprintf(conn, "ERR_ATHENAMP_PROCESS %s: boom\n", id)
			case mode == "mixed" && int(start)%2 == 0:
				fmt.Fprintf(conn, "ERR_ATHENAMP_PROCESS %s: Failed to process event range\n", id)
			default:
				fmt.Fprintf(conn, "/tmp/out.%s.root,ID:%s,CPU:1,WALL:2\n", id, id)
			}

			if mode == "duplicate" {
				fmt.Fprintf(conn, "ERR_ATHENAMP_PROCESS %s: Reported again\n", id)
			}
		}
	}

	time.Sleep(200 * time.Millisecond)
	return 0
}

func helperCommand(mode string) string {
	return fmt.Sprintf("ESPILOT_HELPER_PAYLOAD=1 ESPILOT_HELPER_MODE=%s exec '%s' -test.run='^TestHelperPayload$'", mode, os.Args[0])
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("payload helper requires a POSIX shell")
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		SocketName:   "espilot-test-" + uuid.NewString()[:8],
		PollInterval: 50 * time.Millisecond,
		GracePeriod:  2 * time.Second,
		DrainTimeout: 200 * time.Millisecond,
		WorkDir:      t.TempDir(),
	}
}

func testRanges(n int) []EventRange {
	ranges := make([]EventRange, 0, n)
	for i := 1; i <= n; i++ {
		ranges = append(ranges, EventRange{
			"eventRangeID": fmt.Sprintf("100-200-300-%d-1", i),
			"startEvent":   i,
			"lastEvent":    i,
			"LFN":          "EVNT.pool.root.1",
			"GUID":         "6A2F29F7-9BAC-4A4F-A8E9-27C0E3A3A4F1",
			"scope":        "mc",
		})
	}
	return ranges
}

// Hands out a fixed set of ranges and records every report.
type testHook struct {
	mu       sync.Mutex
	payload  PayloadSpec
	ranges   []EventRange
	requests []int
	messages []OutMessage
}

func newTestHook(mode string, n int) *testHook {
	return &testHook{
		payload: PayloadSpec{Command: helperCommand(mode)},
		ranges:  testRanges(n),
	}
}

func (h *testHook) GetPayload() (PayloadSpec, error) {
	return h.payload, nil
}

func (h *testHook) GetEventRanges(n int) ([]EventRange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.requests = append(h.requests, n)

	if n > len(h.ranges) {
		n = len(h.ranges)
	}
	batch := h.ranges[:n]
	h.ranges = h.ranges[n:]
	return batch, nil
}

func (h *testHook) HandleOutMessage(msg OutMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *testHook) Messages() []OutMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]OutMessage(nil), h.messages...)
}

package eventservice

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// A terminal report for one event range, parsed from a payload line.
type OutMessage struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	// Output file produced for the range (finished only).
	Output string        `json:"output,omitempty"`
	CPU    time.Duration `json:"cpu,omitempty"`
	Wall   time.Duration `json:"wall,omitempty"`
	// The line as received.
	Message string `json:"message"`
	// Error category reported by the payload, e.g. ERR_ATHENAMP_PROCESS.
	Code string `json:"code,omitempty"`
	// Set when the line could not be fully understood.
	Err error `json:"-"`

	// Id token as written by the payload, before canonicalization.
	token string
}

// Number of hyphen separated segments in a canonical event range id:
// <task>-<job>-<file>-<range>-<attempt>.
const canonicalIDSegments = 5

// Longest duration a report may carry, in seconds.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

var (
	// ERR_<CATEGORY> <id or "quoted range dump">: <reason>
	errorMessageRe = regexp.MustCompile(`^(ERR_[A-Z0-9_]+)\s+("[^"]*"|[^\s:]+)\s*:\s*(.*)$`)

	// eventRangeID inside a dumped range, python repr or JSON
	dumpedRangeIDRe = regexp.MustCompile(`eventRangeID['"]?\s*:\s*u?['"]?([^'",\s}]+)`)
)

// Parses a report line from the payload.
//
// Two shapes are recognized:
//
//	<output path>,ID:<id>,CPU:<seconds>,WALL:<seconds>
//	ERR_<CATEGORY> <id>: <reason>
//
// Any other line yields a failed message with an empty id and Err set,
// so that the raw text still reaches the hook.
func ParseOutMessage(text string) OutMessage {
	if strings.HasPrefix(text, "ERR_") {
		if msg, ok := parseFailed(text); ok {
			return msg
		}
	} else if msg, ok := parseFinished(text); ok {
		return msg
	}

	return OutMessage{
		Status:  StatusFailed,
		Message: text,
		Err:     fmt.Errorf("%w: %q", ErrProtocolParse, text),
	}
}

func parseFinished(text string) (OutMessage, bool) {
	parts := strings.Split(text, ",")
	if len(parts) < 2 {
		return OutMessage{}, false
	}

	msg := OutMessage{
		Status:  StatusFinished,
		Output:  strings.TrimSpace(parts[0]),
		Message: text,
	}
	if msg.Output == "" {
		return OutMessage{}, false
	}

	var cpu, wall bool

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return OutMessage{}, false
		}

		var err error
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "ID":
			msg.ID = strings.TrimSpace(value)
		case "CPU":
			msg.CPU, err = parseSeconds(value)
			cpu = true
		case "WALL":
			msg.Wall, err = parseSeconds(value)
			wall = true
		}
		if err != nil {
			return OutMessage{}, false
		}
	}

	return msg, msg.ID != "" && cpu && wall
}

func parseFailed(text string) (OutMessage, bool) {
	match := errorMessageRe.FindStringSubmatch(text)
	if match == nil {
		return OutMessage{}, false
	}

	msg := OutMessage{
		Status:  StatusFailed,
		Code:    match[1],
		Message: text,
	}

	token := match[2]
	if strings.HasPrefix(token, `"`) {
		// The payload could not parse the range it was given and
		// echoes it back instead of an id.
		found := dumpedRangeIDRe.FindStringSubmatch(token)
		if found == nil {
			msg.Err = fmt.Errorf("%w: no event range id in %s", ErrProtocolParse, token)
			return msg, true
		}
		token = found[1]
	}

	msg.ID = canonicalID(token)
	msg.token = token
	return msg, true
}

// Strips event index suffixes beyond the canonical id.
func canonicalID(id string) string {
	segments := strings.Split(id, "-")
	if len(segments) <= canonicalIDSegments {
		return id
	}
	return strings.Join(segments[:canonicalIDSegments], "-")
}

// Maps an id token from a failure report onto an injected range. The
// token itself wins if known, then the longest known hyphen prefix.
// Without a match the token is cut to the canonical five segments.
func resolveID(token string, known func(string) bool) string {
	id := token
	for {
		if known(id) {
			return id
		}
		i := strings.LastIndex(id, "-")
		if i <= 0 {
			return canonicalID(token)
		}
		id = id[:i]
	}
}

func parseSeconds(value string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("invalid duration %v", seconds)
	}
	if seconds < 0 || seconds > maxSeconds {
		return 0, fmt.Errorf("duration %v out of range", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

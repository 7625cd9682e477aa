package eventservice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version of the line format used on the control channel.
type WireFormat int

const (
	// Requests are "Ready for events". Each injected range is sent as a
	// JSON array holding that one range, keys sorted. "No more events"
	// signals exhaustion.
	WireFormatV1 WireFormat = 1
)

const (
	RequestEventRanges = "Ready for events"
	NoMoreEvents       = "No more events"
)

// Encodes one event range as an outbound line.
func (f WireFormat) Encode(r EventRange) (string, error) {
	switch f {
	case WireFormatV1:
		data, err := json.Marshal([]EventRange{r})
		if err != nil {
			return "", err
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("%w: unsupported wire format %d", ErrProtocol, f)
	}
}

// Returns true if the line is a request for more work.
func (f WireFormat) IsRequest(text string) bool {
	return strings.TrimSpace(text) == RequestEventRanges
}

package eventservice

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// What to run and where its standard streams go.
type PayloadSpec struct {
	// Shell command line starting the payload.
	Command string `json:"payload" mapstructure:"payload"`
	// File receiving the payload's stdout. Optional.
	OutputFile string `json:"output_file,omitempty" mapstructure:"output_file"`
	// File receiving the payload's stderr. Optional.
	ErrorFile string `json:"error_file,omitempty" mapstructure:"error_file"`
}

// An event range, as handed to the payload.
// Besides its identifier it carries whatever the payload needs to locate
// the events (file name, GUID, first and last event, ...).
type EventRange map[string]any

const (
	EventRangeIDKey      = "eventRangeID"
	eventRangeIDFallback = "id"
)

// Returns the identifier of the range, or an empty string if it has none.
func (r EventRange) ID() string {
	for _, key := range []string{EventRangeIDKey, eventRangeIDFallback} {
		if value, ok := r[key]; ok && value != nil {
			switch v := value.(type) {
			case string:
				return v
			case json.Number:
				return v.String()
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			case float32:
				return strconv.FormatFloat(float64(v), 'f', -1, 32)
			default:
				return fmt.Sprint(value)
			}
		}
	}
	return ""
}

// Hook is the seam between the driver and whatever supplies work and
// consumes results.
type Hook interface {
	// Returns the payload to run. Called once per run.
	GetPayload() (PayloadSpec, error)

	// Returns at most n event ranges. Fewer than n, including none,
	// means that work is running out. Once exhausted, every further
	// call returns an empty result.
	GetEventRanges(n int) ([]EventRange, error)

	// Receives one terminal report. Called from the driver loop, so it
	// must return promptly.
	HandleOutMessage(msg OutMessage)
}

type GetEventRangesFunc func(n int) ([]EventRange, error)

type HandleOutMessageFunc func(msg OutMessage)

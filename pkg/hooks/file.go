package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/utils"
)

var ErrJobDescription = errors.New("invalid job description")

// A job description file:
//
//	{
//	  "payload": {"payload": "...", "output_file": "...", "error_file": "..."},
//	  "event_ranges": [{"eventRangeID": "...", ...}, ...]
//	}
type JobDescription struct {
	Payload     eventservice.PayloadSpec  `json:"payload"`
	EventRanges []eventservice.EventRange `json:"event_ranges"`
}

// Event status report written when the run is over.
type StatusDump struct {
	Node    string    `json:"node"`
	Written time.Time `json:"written"`
	// Ranges never handed out.
	Remaining    int           `json:"remaining"`
	Ranges       []RangeStatus `json:"ranges"`
	Unrecognized []string      `json:"unrecognized,omitempty"`
}

// Reads a job description. Files ending in .gz or .zst are decompressed.
func LoadJobDescription(fs utils.Fs, path string) (*JobDescription, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := utils.NewDecompressReader(file, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrJobDescription, path, err)
	}
	defer reader.Close()

	// Numbers stay as written so that numeric ids and event indices
	// reach the payload unchanged.
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	job := &JobDescription{}
	if err := decoder.Decode(job); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrJobDescription, path, err)
	}

	seen := map[string]bool{}
	for i, r := range job.EventRanges {
		id := r.ID()
		if id == "" {
			return nil, fmt.Errorf("%w: %s: event range %d has no identifier", ErrJobDescription, path, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %s: duplicate event range %s", ErrJobDescription, path, id)
		}
		seen[id] = true
	}

	return job, nil
}

// FileHook serves a job description read from a file.
type FileHook struct {
	fs       utils.Fs
	dumpPath string
	log      *log.Logger

	mu           sync.Mutex
	payload      eventservice.PayloadSpec
	queue        []eventservice.EventRange
	ranges       *rangeTable
	unrecognized []string
}

// Loads the job at jobPath. If dumpPath is not empty, WriteStatusDump
// writes the event status report there.
func NewFileHook(fs utils.Fs, jobPath, dumpPath string) (*FileHook, error) {
	job, err := LoadJobDescription(fs, jobPath)
	if err != nil {
		return nil, err
	}

	hook := &FileHook{
		fs:       fs,
		dumpPath: dumpPath,
		log:      log.Named("esfile"),
		payload:  job.Payload,
		queue:    job.EventRanges,
		ranges:   newRangeTable(),
	}

	hook.log.Infof("Loaded %s: %d event range(s)", jobPath, len(job.EventRanges))
	return hook, nil
}

func (h *FileHook) GetPayload() (eventservice.PayloadSpec, error) {
	if h.payload.Command == "" {
		return eventservice.PayloadSpec{}, fmt.Errorf("%w: no payload command", ErrJobDescription)
	}
	return h.payload, nil
}

func (h *FileHook) GetEventRanges(n int) ([]eventservice.EventRange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || len(h.queue) == 0 {
		return nil, nil
	}

	if n > len(h.queue) {
		n = len(h.queue)
	}

	batch := h.queue[:n:n]
	h.queue = h.queue[n:]

	for _, r := range batch {
		h.ranges.inject(r.ID())
	}

	return batch, nil
}

func (h *FileHook) HandleOutMessage(msg eventservice.OutMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.ID == "" {
		h.unrecognized = append(h.unrecognized, msg.Message)
		return
	}

	h.ranges.report(msg)
}

// Number of ranges not yet handed out.
func (h *FileHook) Remaining() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Ranges handed out so far and what became of them.
func (h *FileHook) Ranges() []RangeStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ranges.list()
}

func (h *FileHook) StatusDump() StatusDump {
	h.mu.Lock()
	defer h.mu.Unlock()

	return StatusDump{
		Node:         utils.NodeID(),
		Written:      time.Now().UTC(),
		Remaining:    len(h.queue),
		Ranges:       h.ranges.list(),
		Unrecognized: append([]string(nil), h.unrecognized...),
	}
}

// Writes the event status report. Compressed if the dump path ends
// in .gz or .zst.
func (h *FileHook) WriteStatusDump() error {
	if h.dumpPath == "" {
		return nil
	}

	if err := h.fs.MkdirAll(filepath.Dir(h.dumpPath), 0777); err != nil {
		return err
	}

	data, err := marshalDump(h.StatusDump(), h.dumpPath)
	if err != nil {
		return err
	}

	return afero.WriteFile(h.fs, h.dumpPath, data, 0666)
}

// Same as WriteStatusDump.
func (h *FileHook) Close() error {
	if err := h.WriteStatusDump(); err != nil {
		return err
	}
	if h.dumpPath != "" {
		h.log.Info("Wrote event status to", h.dumpPath)
	}
	return nil
}

package hooks

import (
	"sync"

	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/log"
)

type Statistics struct {
	// Requests for work answered by the hook.
	Requests int
	// Ranges handed out, reissues included.
	Injected int
	// Terminal reports received.
	Finished int
	Failed   int
	// Lines from the payload that could not be attributed to a range.
	Unrecognized int
	// Ranges handed out and not yet reported on.
	Pending int
	// Latest state of the driver.
	State eventservice.State
}

// Stats wraps a hook and keeps account of every range it hands out and
// every report it receives.
type Stats struct {
	hook eventservice.Hook
	log  *log.Logger

	mu        sync.Mutex
	stats     Statistics
	ranges    *rangeTable
	observers []func(eventservice.State)
}

func NewStats(hook eventservice.Hook) *Stats {
	return &Stats{
		hook:   hook,
		log:    log.Named("esstats"),
		ranges: newRangeTable(),
	}
}

func (s *Stats) GetPayload() (eventservice.PayloadSpec, error) {
	return s.hook.GetPayload()
}

func (s *Stats) GetEventRanges(n int) ([]eventservice.EventRange, error) {
	ranges, err := s.hook.GetEventRanges(n)
	if err != nil {
		return ranges, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Requests++
	s.stats.Injected += len(ranges)
	for _, r := range ranges {
		if !s.ranges.inject(r.ID()) {
			s.log.Debug("Reissued:", r.ID())
		}
	}

	return ranges, nil
}

func (s *Stats) HandleOutMessage(msg eventservice.OutMessage) {
	s.mu.Lock()
	switch {
	case msg.ID == "":
		s.stats.Unrecognized++
	case msg.Status == eventservice.StatusFinished:
		s.stats.Finished++
		s.ranges.report(msg)
	default:
		s.stats.Failed++
		s.ranges.report(msg)
	}
	s.mu.Unlock()

	s.hook.HandleOutMessage(msg)
}

// Registers a function called on every driver state change seen by
// ObserveState.
func (s *Stats) OnStateChange(fn func(eventservice.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Records a driver state change. Suitable as Config.OnStateChange.
func (s *Stats) ObserveState(state eventservice.State) {
	s.mu.Lock()
	s.stats.State = state
	observers := append([]func(eventservice.State){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func (s *Stats) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Pending = s.ranges.count(StatusPending)
	return stats
}

// Every range handed out so far, in order.
func (s *Stats) Ranges() []RangeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges.list()
}

package eventservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/srand/espilot/pkg/log"
)

// Manager runs a payload on behalf of a hook.
//
// It asks the hook for the payload, binds the hook's event range
// supplier and report consumer to a Process and runs it.
type Manager struct {
	hook   Hook
	config *Config
	log    *log.Logger

	mu      sync.Mutex
	process *Process
}

func NewManager(hook Hook, config *Config) *Manager {
	if config == nil {
		config = NewConfig()
	}

	return &Manager{
		hook:   hook,
		config: config,
		log:    log.Named("esmanager"),
	}
}

// Runs the payload once. Returns nil if the run completed.
// Nothing is retried.
func (m *Manager) Run(ctx context.Context) error {
	if m.hook == nil {
		return fmt.Errorf("%w: no hook", ErrPayload)
	}

	payload, err := m.getPayload()
	if err != nil {
		m.log.Error(err)
		return err
	}

	m.log.Info("Payload:", payload.Command)

	process := NewProcess(payload, m.config)
	process.SetGetEventRangesHook(m.hook.GetEventRanges)
	process.SetHandleOutMessageHook(m.hook.HandleOutMessage)

	m.mu.Lock()
	m.process = process
	m.mu.Unlock()

	err = process.Run(ctx)

	switch {
	case err == nil:
		m.log.Info("Payload completed")
	case errors.Is(err, ErrCancelled):
		m.log.Warn("Payload cancelled")
	default:
		m.log.Errorf("Payload failed: %v", err)
	}

	return err
}

func (m *Manager) getPayload() (payload PayloadSpec, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrPayload, r)
		}
	}()

	payload, err = m.hook.GetPayload()
	if err != nil {
		return PayloadSpec{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return payload, nil
}

// The process of the latest run, nil before Run.
func (m *Manager) Process() *Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.process
}

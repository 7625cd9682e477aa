package eventservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/srand/espilot/pkg/channel"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/utils"
)

// Environment variable telling the payload where to connect.
const EnvChannel = "ESPILOT_CHANNEL"

// Number of poll intervals between two progress lines.
const progressInterval = 10

// Process drives one payload run.
//
// It binds the control channel, launches the payload with the channel
// address in its environment, answers its requests for work through the
// bound GetEventRanges hook and forwards every report to the bound
// HandleOutMessage hook, until the payload exits, the channel breaks or
// the context is cancelled.
type Process struct {
	payload PayloadSpec
	config  *Config
	log     *log.Logger

	mu               sync.Mutex
	getEventRanges   GetEventRangesFunc
	handleOutMessage HandleOutMessageFunc
	ran              bool
	state            State
	terminal         State
	pid              int
	endpoint         channel.Endpoint
	// Injected ranges without a terminal report.
	pending map[string]struct{}
	// Ranges with a terminal report that have not been injected again.
	reported map[string]struct{}

	queue  chan channel.Message
	thread *channel.MessageThread
	cmd    *utils.Command
	files  []*os.File
	stderr string
}

func NewProcess(payload PayloadSpec, config *Config) *Process {
	if config == nil {
		config = NewConfig()
	} else {
		config.SetDefaults()
	}

	return &Process{
		payload:  payload,
		config:   config,
		log:      log.Named("esprocess"),
		pending:  map[string]struct{}{},
		reported: map[string]struct{}{},
	}
}

func (p *Process) SetGetEventRangesHook(fn GetEventRangesFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getEventRanges = fn
}

func (p *Process) GetEventRangesHook() GetEventRangesFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getEventRanges
}

func (p *Process) SetHandleOutMessageHook(fn HandleOutMessageFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handleOutMessage = fn
}

func (p *Process) HandleOutMessageHook() HandleOutMessageFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handleOutMessage
}

// Current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// COMPLETED or FAILED once the run has ended, INIT before that.
func (p *Process) TerminalState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal
}

// Identifiers of injected ranges not yet reported on, sorted.
func (p *Process) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pid of the payload, 0 before it has been started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Address of the control channel, valid once SPAWNED.
func (p *Process) Endpoint() channel.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoint
}

// Runs the payload to completion. Returns nil if the payload exited
// with code zero. Whatever happens, the channel is closed and the
// payload is terminated and reaped before Run returns.
//
// A Process can only be run once.
func (p *Process) Run(ctx context.Context) (err error) {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return ErrAlreadyRun
	}
	p.ran = true
	getEventRanges := p.getEventRanges
	handleOutMessage := p.handleOutMessage
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in hook: %v", ErrProtocol, r)
			p.log.Error(err)
			p.log.Debug(string(debug.Stack()))
		}

		if err != nil {
			p.log.Errorf("failed -- %v", err)
			p.log.DebugError(err)
			p.setState(StateFailed)
		} else {
			p.setState(StateCompleted)
		}

		p.teardown()
		p.setState(StateStopped)
	}()

	if getEventRanges == nil || handleOutMessage == nil {
		return ErrHookNotBound
	}

	if err := p.spawn(); err != nil {
		return err
	}

	p.setState(StateRunning)

	return p.loop(ctx, getEventRanges, handleOutMessage)
}

func (p *Process) setState(state State) {
	p.mu.Lock()
	p.state = state
	if state.IsTerminal() {
		p.terminal = state
	}
	p.mu.Unlock()

	p.log.Debug("State:", state)

	if p.config.OnStateChange != nil {
		p.config.OnStateChange(state)
	}
}

func (p *Process) spawn() error {
	if strings.TrimSpace(p.payload.Command) == "" {
		return fmt.Errorf("%w: empty payload command", ErrSpawn)
	}

	p.queue = make(chan channel.Message, p.config.QueueSize)
	p.thread = channel.NewMessageThread(
		p.queue,
		p.config.SocketName,
		p.config.SocketContext,
		channel.WithPollInterval(p.config.PollInterval),
		channel.WithMaxLineSize(int(p.config.MaxLineSize)),
	)

	if err := p.thread.Start(); err != nil {
		return err
	}

	endpoint := p.thread.Endpoint()

	stdout, err := p.createFile(p.payload.OutputFile, p.config.PayloadStdout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	stderr, err := p.createFile(p.payload.ErrorFile, p.config.PayloadStderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	p.stderr = stderr.Name()

	cmd := utils.NewShellCommand(p.payload.Command)
	cmd.SetStdout(stdout)
	cmd.SetStderr(stderr)
	if p.config.WorkDir != "" {
		cmd.SetDir(p.config.WorkDir)
	}
	cmd.AddEnv(EnvChannel + "=" + endpoint.String())

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	p.cmd = cmd

	p.mu.Lock()
	p.pid = cmd.GetPid()
	p.endpoint = endpoint
	p.mu.Unlock()

	p.log.Infof("started -- pid=%d executable=%s", cmd.GetPid(), p.payload.Command)
	p.log.Debugf("channel -- %s", endpoint)

	p.setState(StateSpawned)
	return nil
}

func (p *Process) createFile(name, fallback string) (*os.File, error) {
	if name == "" {
		name = fallback
	}
	if !filepath.IsAbs(name) && p.config.WorkDir != "" {
		name = filepath.Join(p.config.WorkDir, name)
	}

	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	p.files = append(p.files, file)
	return file, nil
}

func (p *Process) loop(ctx context.Context, getEventRanges GetEventRangesFunc, handle HandleOutMessageFunc) error {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	iteration := 0

	for {
		select {
		case msg := <-p.queue:
			if p.exited() {
				return p.finish(handle, msg)
			}
			if err := p.dispatch(msg, getEventRanges, handle); err != nil {
				return err
			}

		case <-p.cmd.Exited():
			return p.finish(handle)

		case <-p.thread.Done():
			if p.exited() {
				return p.finish(handle)
			}
			return fmt.Errorf("%w: message thread terminated: %v", ErrChannel, p.thread.Err())

		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))

		case <-ticker.C:
			iteration++
			if iteration%progressInterval == 0 {
				p.log.Infof("running: iteration=%d pid=%d pending=%d", iteration, p.cmd.GetPid(), len(p.Pending()))
			}
		}
	}
}

func (p *Process) exited() bool {
	select {
	case <-p.cmd.Exited():
		return true
	default:
		return false
	}
}

func (p *Process) dispatch(msg channel.Message, getEventRanges GetEventRangesFunc, handle HandleOutMessageFunc) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	p.log.Tracef("Received from %s: %s", msg.Peer, text)

	if p.config.WireFormat.IsRequest(text) {
		return p.injectEventRanges(msg.Peer, getEventRanges)
	}

	p.forward(ParseOutMessage(text), handle)
	return nil
}

func (p *Process) injectEventRanges(peer string, getEventRanges GetEventRangesFunc) error {
	ranges, err := getEventRanges(p.config.RangesPerRequest)
	if err != nil {
		return fmt.Errorf("%w: get event ranges: %v", ErrProtocol, err)
	}

	if len(ranges) == 0 {
		p.log.Info("No more event ranges")
		p.thread.SendTo(peer, NoMoreEvents)
		return nil
	}

	for _, r := range ranges {
		line, err := p.config.WireFormat.Encode(r)
		if err != nil {
			return fmt.Errorf("%w: encode event range %q: %v", ErrProtocol, r.ID(), err)
		}

		p.track(r.ID())
		p.thread.SendTo(peer, line)
	}

	p.log.Debugf("Injected %d event range(s)", len(ranges))
	return nil
}

func (p *Process) track(id string) {
	if id == "" {
		p.log.Warn("Injecting event range without identifier")
		return
	}

	p.mu.Lock()
	_, reissued := p.pending[id]
	p.pending[id] = struct{}{}
	delete(p.reported, id)
	p.mu.Unlock()

	if reissued {
		p.log.Warnf("Event range %s reissued while outstanding", id)
	}
}

func (p *Process) forward(msg OutMessage, handle HandleOutMessageFunc) {
	if msg.ID != "" {
		p.mu.Lock()
		if msg.token != "" {
			msg.ID = resolveID(msg.token, p.known)
		}
		_, duplicate := p.reported[msg.ID]
		if !duplicate {
			delete(p.pending, msg.ID)
			p.reported[msg.ID] = struct{}{}
		}
		p.mu.Unlock()

		if duplicate {
			p.log.Warnf("Dropping duplicate %s report for event range %s", msg.Status, msg.ID)
			return
		}
	}

	if msg.Err != nil {
		p.log.Warn("Unrecognized message from payload:", msg.Message)
	} else {
		p.log.Debugf("Event range %s %s", msg.ID, msg.Status)
	}

	handle(msg)
}

// Whether id was injected during this run. Called with mu held.
func (p *Process) known(id string) bool {
	if _, ok := p.pending[id]; ok {
		return true
	}
	_, ok := p.reported[id]
	return ok
}

// Forwards reports still in flight once the payload has exited, then
// turns the exit code into the result of the run.
func (p *Process) finish(handle HandleOutMessageFunc, held ...channel.Message) error {
	for _, msg := range held {
		p.drained(msg, handle)
	}

	timer := time.NewTimer(p.config.DrainTimeout)
	defer timer.Stop()

drain:
	for {
		select {
		case msg := <-p.queue:
			p.drained(msg, handle)
		case <-timer.C:
			break drain
		}
	}

	code := p.cmd.ExitCode()
	p.log.Infof("exited -- pid=%d code=%d", p.cmd.GetPid(), code)

	if code != 0 {
		return &ChildProcessError{ExitCode: code, ErrorFile: p.stderr}
	}

	if pending := p.Pending(); len(pending) > 0 {
		p.log.Warnf("Payload completed with %d unreported event range(s): %s", len(pending), strings.Join(pending, ", "))
	}

	return nil
}

func (p *Process) drained(msg channel.Message, handle HandleOutMessageFunc) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if p.config.WireFormat.IsRequest(text) {
		p.log.Debug("Ignoring request from exited payload")
		return
	}
	p.forward(ParseOutMessage(text), handle)
}

func (p *Process) teardown() {
	if p.thread != nil {
		p.thread.Stop()
	}

	if p.cmd != nil {
		p.terminate()
	}

	if p.thread != nil {
		select {
		case <-p.thread.Done():
		case <-time.After(p.config.StopTimeout):
			p.log.Warn("Message thread did not terminate in time")
		}
	}

	for _, file := range p.files {
		file.Close()
	}
	p.files = nil
}

// Asks the payload to exit and kills it if it has not done so within
// the grace period. Returns once the payload has been reaped.
func (p *Process) terminate() {
	if p.exited() {
		return
	}

	pid := p.cmd.GetPid()
	p.log.Infof("terminating -- pid=%d", pid)

	if err := p.cmd.Terminate(); err != nil {
		p.log.Warnf("Failed to terminate payload: %v", err)
	}

	select {
	case <-p.cmd.Exited():
		return
	case <-time.After(p.config.GracePeriod):
	}

	p.log.Warnf("killing -- pid=%d did not exit within %s", pid, p.config.GracePeriod)

	if err := p.cmd.Kill(); err != nil {
		p.log.Warnf("Failed to kill payload: %v", err)
	}

	err := p.cmd.Wait()
	p.log.Debugf("reaped -- pid=%d: %v", pid, err)
}

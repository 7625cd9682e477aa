package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/srand/espilot/pkg/log"
	"golang.org/x/sync/errgroup"
)

// A line received from a peer.
type Message struct {
	// Identifier of the connection the line arrived on.
	Peer string
	// The line, without its terminator.
	Text     string
	Received time.Time
}

type outbound struct {
	peer string
	text string
}

type peerConn struct {
	id   string
	conn net.Conn
	once sync.Once
}

func (p *peerConn) writeLine(text string, timeout time.Duration) error {
	if timeout > 0 {
		p.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := io.WriteString(p.conn, text+"\n")
	return err
}

func (p *peerConn) close() {
	p.once.Do(func() { p.conn.Close() })
}

// MessageThread owns the control-channel socket shared with a payload.
//
// Once started, a background loop accepts peers, forwards every line they
// send to the inbound queue and writes lines passed to Send/SendTo back to
// them. The owner consumes the queue; the thread is its only producer.
//
// A thread can be started once. Stop is idempotent and asynchronous:
// IsAlive may report true for a short while after Stop returns, wait on
// Done for the loop to finish.
type MessageThread struct {
	queue      chan<- Message
	socketName string
	context    Context
	opts       options
	log        *log.Logger

	mu       sync.Mutex
	started  bool
	endpoint Endpoint
	pending  []outbound
	err      error

	// Only touched by the loop goroutine.
	lastPeer string

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMessageThread(queue chan<- Message, socketName string, bindContext Context, opts ...Option) *MessageThread {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &MessageThread{
		queue:      queue,
		socketName: socketName,
		context:    bindContext,
		opts:       o,
		log:        log.Named("esmessage"),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Binds the socket and starts the loop.
func (t *MessageThread) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	fail := func(err error) error {
		t.err = err
		close(t.done)
		return err
	}

	endpoint, err := ResolveEndpoint(t.socketName, t.context)
	if err != nil {
		return fail(err)
	}

	listener, endpoint, err := endpoint.listen()
	if err != nil {
		return fail(fmt.Errorf("%w: bind %s: %v", ErrChannel, endpoint, err))
	}

	t.endpoint = endpoint
	t.log.Debug("Listening on", endpoint)

	go t.run(listener)
	return nil
}

// Queues a line for the most recently active peer. Never blocks.
// If no peer is connected yet, the line is delivered to the first one
// that connects.
func (t *MessageThread) Send(text string) {
	t.SendTo("", text)
}

// Queues a line for a specific peer. Never blocks.
func (t *MessageThread) SendTo(peer, text string) {
	t.mu.Lock()
	t.pending = append(t.pending, outbound{peer: peer, text: text})
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Requests the loop to terminate.
func (t *MessageThread) Stop() {
	t.cancel()
}

// Returns true once Stop has been called.
func (t *MessageThread) Stopped() bool {
	return t.ctx.Err() != nil
}

// Returns true while the loop is executing.
func (t *MessageThread) IsAlive() bool {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()

	if !started {
		return false
	}

	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Closed when the loop has exited. Never closed for a thread that
// was not started.
func (t *MessageThread) Done() <-chan struct{} {
	return t.done
}

// The error that ended the loop, if it did not end because of Stop.
func (t *MessageThread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// The address peers connect to. Valid after a successful Start.
func (t *MessageThread) Endpoint() Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

func (t *MessageThread) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *MessageThread) run(listener net.Listener) {
	defer close(t.done)

	g, ctx := errgroup.WithContext(t.ctx)

	accepted := make(chan *peerConn)
	inbound := make(chan Message)
	closed := make(chan string)
	conns := map[string]*peerConn{}

	g.Go(func() error {
		return t.accept(ctx, listener, accepted)
	})

	ticker := time.NewTicker(t.opts.pollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case peer := <-accepted:
			t.log.Debug("Peer connected:", peer.id)
			conns[peer.id] = peer
			t.lastPeer = peer.id
			g.Go(func() error {
				t.read(ctx, peer, inbound, closed)
				return nil
			})
			t.flush(conns)

		case id := <-closed:
			t.log.Debug("Peer disconnected:", id)
			if peer, ok := conns[id]; ok {
				peer.close()
				delete(conns, id)
			}
			if t.lastPeer == id {
				t.lastPeer = ""
			}

		case msg := <-inbound:
			t.lastPeer = msg.Peer
			select {
			case t.queue <- msg:
			case <-ctx.Done():
				break loop
			}

		case <-t.wake:
			t.flush(conns)

		case <-ticker.C:
			t.flush(conns)
		}
	}

	// Lines queued before Stop still go out.
	t.flush(conns)

	listener.Close()
	for _, peer := range conns {
		peer.close()
	}

	if err := g.Wait(); err != nil {
		t.log.Error(err)
		t.setErr(err)
	}

	t.log.Debug("Message thread terminated")
}

func (t *MessageThread) accept(ctx context.Context, listener net.Listener, accepted chan<- *peerConn) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: accept: %v", ErrChannel, err)
		}

		peer := &peerConn{id: uuid.NewString(), conn: conn}

		select {
		case accepted <- peer:
		case <-ctx.Done():
			peer.close()
			return nil
		}
	}
}

func (t *MessageThread) read(ctx context.Context, peer *peerConn, inbound chan<- Message, closed chan<- string) {
	scanner := bufio.NewScanner(peer.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), t.opts.maxLineSize)

	for scanner.Scan() {
		msg := Message{
			Peer:     peer.id,
			Text:     strings.TrimRight(scanner.Text(), "\r"),
			Received: time.Now(),
		}

		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		t.log.Warnf("Read from peer %s failed: %v", peer.id, err)
	}

	select {
	case closed <- peer.id:
	case <-ctx.Done():
	}
}

// Writes queued lines to their peers. Lines without an explicit peer
// that cannot be delivered yet are kept for the next attempt.
func (t *MessageThread) flush(conns map[string]*peerConn) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var keep []outbound

	for _, out := range pending {
		id := out.peer
		if id == "" {
			id = t.lastPeer
		}

		peer, ok := conns[id]
		if !ok {
			if out.peer == "" {
				keep = append(keep, out)
			} else {
				t.log.Warnf("Dropping message for disconnected peer %s: %s", out.peer, out.text)
			}
			continue
		}

		if err := peer.writeLine(out.text, t.opts.writeTimeout); err != nil {
			t.log.Warnf("Write to peer %s failed: %v", id, err)
			peer.close()
			delete(conns, id)
			if t.lastPeer == id {
				t.lastPeer = ""
			}
			continue
		}

		t.log.Tracef("Sent to %s: %s", id, out.text)
	}

	if len(keep) > 0 {
		t.mu.Lock()
		t.pending = append(keep, t.pending...)
		t.mu.Unlock()
	}
}

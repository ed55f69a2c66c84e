// Package session binds an inbound TCP listener and routes handshaking
// peer connections to the per-torrent worker registered for their
// infohash.
package session

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	eventBufferSize = 1024

	// handshakeTimeout bounds how long a not-yet-routed connection may
	// take to send its handshake. Handshakes are read off the dispatch
	// loop (see handshakeConn) specifically so a slow or malicious peer
	// can only stall its own goroutine, never routing for every other
	// connection or pending RegisterWorker/UnregisterWorker call.
	handshakeTimeout = 10 * time.Second
)

// PeerConn is an inbound peer connection that has already yielded a valid
// handshake and been routed to the worker owning its infohash.
type PeerConn struct {
	Conn   net.Conn
	Addr   net.Addr
	PeerID [20]byte
}

// Session owns the listener, the peer-id, and the infohash→worker routing
// table. Cross-task communication goes through a single bounded event
// channel so ordering across connections and (un)registrations is FIFO.
type Session struct {
	peerID     [20]byte
	httpClient *http.Client
	listener   net.Listener
	logger     *zap.Logger

	events chan event

	mu     sync.Mutex
	routes map[[20]byte]chan<- *PeerConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type event interface{ isEvent() }

type newConnEvent struct {
	conn     net.Conn
	addr     net.Addr
	infoHash [20]byte
	peerID   [20]byte
}

type registerEvent struct {
	infoHash [20]byte
	sink     chan<- *PeerConn
	result   chan<- error
}

type unregisterEvent struct {
	infoHash [20]byte
}

func (newConnEvent) isEvent()    {}
func (registerEvent) isEvent()   {}
func (unregisterEvent) isEvent() {}

// Bind opens a TCP listener on an ephemeral port on 0.0.0.0, generates a
// peer-id, and starts the accept and dispatch tasks. ctx bounds the
// session's lifetime in addition to an explicit Close call.
func Bind(ctx context.Context, logger *zap.Logger) (*Session, error) {
	listener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return nil, wrapError(KindIO, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		peerID:     NewPeerID(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		listener:   listener,
		logger:     logger,
		events:     make(chan event, eventBufferSize),
		routes:     make(map[[20]byte]chan<- *PeerConn),
		ctx:        sctx,
		cancel:     cancel,
	}

	s.wg.Add(2)
	go s.acceptLoop()
	go s.dispatchLoop()

	return s, nil
}

func (s *Session) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.logger.Debug("accept loop exiting", zap.Error(err))
			return
		}
		go s.handshakeConn(conn)
	}
}

// handshakeConn reads and validates one connection's handshake under a
// deadline, entirely off the dispatch loop, then hands the result to it
// as a newConnEvent. A peer that never completes its handshake only ever
// blocks this one goroutine, which self-terminates at handshakeTimeout.
func (s *Session) handshakeConn(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	infoHash, peerID, err := ReadHandshake(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		s.logger.Debug("dropping connection with invalid handshake",
			zap.Error(err), zap.Stringer("addr", conn.RemoteAddr()))
		conn.Close()
		return
	}

	ev := newConnEvent{conn: conn, addr: conn.RemoteAddr(), infoHash: infoHash, peerID: peerID}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		conn.Close()
	}
}

func (s *Session) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.handle(ev)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case newConnEvent:
		s.handleNewConn(e)
	case registerEvent:
		s.handleRegister(e)
	case unregisterEvent:
		s.handleUnregister(e)
	}
}

func (s *Session) handleNewConn(e newConnEvent) {
	s.mu.Lock()
	sink, ok := s.routes[e.infoHash]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("no worker registered for infohash, dropping connection",
			zap.Binary("infohash", e.infoHash[:]))
		e.conn.Close()
		return
	}

	pc := &PeerConn{Conn: e.conn, Addr: e.addr, PeerID: e.peerID}
	select {
	case sink <- pc:
	case <-s.ctx.Done():
		e.conn.Close()
	}
}

func (s *Session) handleRegister(e registerEvent) {
	s.mu.Lock()
	_, dup := s.routes[e.infoHash]
	if !dup {
		s.routes[e.infoHash] = e.sink
	}
	s.mu.Unlock()

	if dup {
		e.result <- newError(KindDuplicateRoute, "worker already registered for this infohash")
		return
	}
	e.result <- nil
}

func (s *Session) handleUnregister(e unregisterEvent) {
	s.mu.Lock()
	delete(s.routes, e.infoHash)
	s.mu.Unlock()
}

// RegisterWorker installs sink as the recipient of inbound peer
// connections whose handshake carries infoHash. Duplicate registration
// for an infohash already in use is rejected, not evicted.
func (s *Session) RegisterWorker(infoHash [20]byte, sink chan<- *PeerConn) error {
	result := make(chan error, 1)
	select {
	case s.events <- registerEvent{infoHash: infoHash, sink: sink, result: result}:
	case <-s.ctx.Done():
		return newError(KindClosed, "session is closed")
	}
	return <-result
}

// UnregisterWorker removes the route for infoHash, if any.
func (s *Session) UnregisterWorker(infoHash [20]byte) {
	select {
	case s.events <- unregisterEvent{infoHash: infoHash}:
	case <-s.ctx.Done():
	}
}

// PeerID returns this session's 20-byte peer identifier.
func (s *Session) PeerID() [20]byte { return s.peerID }

// ListenAddr returns the address the session's listener is bound to.
func (s *Session) ListenAddr() net.Addr { return s.listener.Addr() }

// HTTPClient returns the HTTP client shared by every tracker worker.
func (s *Session) HTTPClient() *http.Client { return s.httpClient }

// Close cancels the accept and dispatch tasks and closes the listener,
// then waits for both to exit. It does not close or signal the registered
// workers' peer-stream channels: a running worker is not notified of the
// closure and keeps running until its own context ends or it is aborted.
func (s *Session) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Package socket implements the Socket Service of spec §4.1: a shared
// asynchronous I/O runtime providing a broadcast-enabled UDP endpoint
// for discovery and a TCP listener/dialer for transfer sessions.
//
// The teacher (jesintharnold-goshare) drives raw net.Listen/net.Dial
// loops directly inside the transfer package; this rewrite pulls that
// pattern out into its own reusable service so Discovery and Transfer
// share one runtime instead of each rolling their own goroutines, per
// spec §5 "One shared asynchronous I/O reactor underlies Socket
// Service."
package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
)

type ConnState int

const (
	Connected ConnState = iota
	Disconnected
	StatusError
)

func (s ConnState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type BytesHandler func(data []byte, endpoint string)
type StatusHandler func(state ConnState, endpoint string, err error)
type DatagramHandler = func(data []byte, sourceEndpoint string)

// pendingWrite is one queued outbound write for an endpoint's writer
// goroutine, so writes to the same endpoint are applied in submission
// order (spec §4.1 "Ordering").
type pendingWrite struct {
	data []byte
	done chan writeResult
}

type writeResult struct {
	n   int
	err error
}

// connEntry tracks one TCP connection. done is closed exactly once
// (via closeOnce) when the connection goes away, so writerLoop can
// stop and SendTCP can observe closure without ever sending on a
// closed channel.
type connEntry struct {
	conn      net.Conn
	writeCh   chan pendingWrite
	done      chan struct{}
	closeOnce sync.Once
}

func newConnEntry(conn net.Conn) *connEntry {
	return &connEntry{
		conn:    conn,
		writeCh: make(chan pendingWrite, 64),
		done:    make(chan struct{}),
	}
}

func (e *connEntry) close() {
	e.closeOnce.Do(func() { close(e.done) })
}

// Service is the shared reactor. It owns zero or one TCP listener, zero
// or one UDP socket, and every open outbound/inbound TCP connection,
// keyed by endpoint string; a connection is dropped from the map once
// it closes.
type Service struct {
	logger *log.Logger

	mu          sync.Mutex
	conns       map[string]*connEntry
	listener    net.Listener
	udpConn     *net.UDPConn
	udpPort     int
	closed      bool

	onBytes  BytesHandler
	onStatus StatusHandler

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	return &Service{
		logger: logger,
		conns:  make(map[string]*connEntry),
		group:  group,
		ctx:    gctx,
		cancel: cancel,
	}
}

// ListenTCP binds a TCP listener on port. Each accepted connection is
// registered under its remote endpoint string "ip:port"; onBytes fires
// per receive in wire order, onStatus fires on Connected/Disconnected/
// Error transitions.
func (s *Service) ListenTCP(port int, onBytes BytesHandler, onStatus StatusHandler) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("socket: listen tcp :%d: %w", port, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.onBytes = onBytes
	s.onStatus = onStatus
	s.mu.Unlock()

	s.group.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return nil
				default:
					s.logger.Printf("socket: accept error: %v", err)
					return nil
				}
			}
			s.adopt(conn, onBytes, onStatus)
		}
	})
	return nil
}

// DialTCP initiates an outbound connection to host:port with the same
// callback contract as ListenTCP.
func (s *Service) DialTCP(host string, port int, onBytes BytesHandler, onStatus StatusHandler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("socket: dial tcp %s: %w", addr, err)
	}
	s.adopt(conn, onBytes, onStatus)
	return nil
}

func (s *Service) adopt(conn net.Conn, onBytes BytesHandler, onStatus StatusHandler) {
	endpoint := conn.RemoteAddr().String()
	entry := newConnEntry(conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[endpoint] = entry
	s.mu.Unlock()

	if onStatus != nil {
		onStatus(Connected, endpoint, nil)
	}

	s.group.Go(func() error {
		s.writerLoop(endpoint, entry)
		return nil
	})
	s.group.Go(func() error {
		s.readerLoop(endpoint, entry, onBytes, onStatus)
		return nil
	})
}

func (s *Service) writerLoop(endpoint string, entry *connEntry) {
	for {
		select {
		case pw := <-entry.writeCh:
			n, err := entry.conn.Write(pw.data)
			pw.done <- writeResult{n: n, err: err}
		case <-entry.done:
			return
		}
	}
}

func (s *Service) readerLoop(endpoint string, entry *connEntry, onBytes BytesHandler, onStatus StatusHandler) {
	buf := make([]byte, 64*1024)
	for {
		n, err := entry.conn.Read(buf)
		if n > 0 && onBytes != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			onBytes(data, endpoint)
		}
		if err != nil {
			s.removeConn(endpoint)
			if onStatus != nil {
				if err == io.EOF || isConnReset(err) {
					onStatus(Disconnected, endpoint, nil)
				} else {
					onStatus(StatusError, endpoint, err)
				}
			}
			return
		}
	}
}

// isConnReset reports whether err is a connection-reset or broken-pipe
// condition (spec §4.1: those map to Disconnected; every other I/O
// error maps to Error). It inspects the wrapped syscall.Errno rather
// than the *net.OpError wrapper, which is also present for genuine
// I/O errors.
func isConnReset(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.ECONNRESET || errno == syscall.EPIPE
}

func (s *Service) removeConn(endpoint string) {
	s.mu.Lock()
	entry, ok := s.conns[endpoint]
	if ok {
		delete(s.conns, endpoint)
	}
	s.mu.Unlock()
	if ok {
		entry.close()
		entry.conn.Close()
	}
}

// CloseConn forcibly tears down endpoint's connection, if any. The
// readerLoop blocked on Read notices the close and reports StatusError
// to onStatus, the same path a genuine I/O error takes; callers that
// want to abandon a connection for a protocol violation use this
// instead of waiting for the peer to misbehave on its own.
func (s *Service) CloseConn(endpoint string) {
	s.mu.Lock()
	entry, ok := s.conns[endpoint]
	s.mu.Unlock()
	if ok {
		entry.conn.Close()
	}
}

// SendTCP enqueues a write to endpoint's connection. Writes to the same
// endpoint are applied in submission order; a send to an unknown or
// closed endpoint returns an error rather than panicking.
func (s *Service) SendTCP(endpoint string, data []byte) (int, error) {
	s.mu.Lock()
	entry, ok := s.conns[endpoint]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("socket: unknown endpoint %s", endpoint)
	}

	done := make(chan writeResult, 1)
	select {
	case entry.writeCh <- pendingWrite{data: data, done: done}:
	case <-entry.done:
		return 0, fmt.Errorf("socket: endpoint %s closed", endpoint)
	default:
		return 0, fmt.Errorf("socket: write queue full for %s", endpoint)
	}

	select {
	case res := <-done:
		return res.n, res.err
	case <-entry.done:
		return 0, fmt.Errorf("socket: endpoint %s closed", endpoint)
	}
}

// BindUDP opens a UDP socket on port with SO_BROADCAST set, per spec
// §4.1 ("a UDP socket with broadcast permitted"); without it,
// BroadcastUDP's write to the LAN broadcast address fails with EACCES
// on Linux and most other platforms. onDatagram fires per received
// packet.
func (s *Service) BindUDP(port int, onDatagram DatagramHandler) (int, error) {
	lc := net.ListenConfig{Control: setBroadcast}
	pc, err := lc.ListenPacket(s.ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("socket: bind udp :%d: %w", port, err)
	}
	conn := pc.(*net.UDPConn)

	s.mu.Lock()
	s.udpConn = conn
	s.udpPort = conn.LocalAddr().(*net.UDPAddr).Port
	boundPort := s.udpPort
	s.mu.Unlock()

	s.group.Go(func() error {
		buf := make([]byte, 64*1024)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-s.ctx.Done():
					return nil
				default:
					return nil
				}
			}
			if onDatagram != nil {
				data := make([]byte, n)
				copy(data, buf[:n])
				onDatagram(data, addr.String())
			}
		}
	})
	return boundPort, nil
}

// setBroadcast is the net.ListenConfig.Control hook that sets
// SO_BROADCAST on the raw socket before it is bound.
func setBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// BroadcastUDP sends data to the LAN broadcast address on port using
// the bound UDP socket.
func (s *Service) BroadcastUDP(port int, data []byte) (int, error) {
	return s.SendUDP("255.255.255.255", port, data)
}

// SendUDP sends data to host:port using the bound UDP socket.
func (s *Service) SendUDP(host string, port int, data []byte) (int, error) {
	s.mu.Lock()
	conn := s.udpConn
	s.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("socket: udp socket not bound")
	}
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return 0, fmt.Errorf("socket: resolve %s:%d: %w", host, port, err)
	}
	return conn.WriteToUDP(data, addr)
}

// UDPPort returns the actually-bound UDP port, useful when BindUDP was
// called with port 0.
func (s *Service) UDPPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpPort
}

// Shutdown idempotently closes the listener, every tracked connection
// and the UDP socket, then drains the reactor's goroutines.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	udp := s.udpConn
	conns := s.conns
	s.conns = make(map[string]*connEntry)
	s.mu.Unlock()

	s.cancel()
	if ln != nil {
		ln.Close()
	}
	if udp != nil {
		udp.Close()
	}
	for _, entry := range conns {
		entry.close()
		entry.conn.Close()
	}
	_ = s.group.Wait()
}

// File: server/server.go
// Package server - listener, connection table, and the host-pumped loop.
// License: Apache-2.0
//
// The server owns the listening socket and every live connection. Nothing
// happens unless the host calls Service: the loop accepts, reads, parses,
// dispatches, and flushes only while being pumped, which is what lets a
// single-threaded, cooperatively-scheduled host embed it and still observe
// external interrupts between Service calls.

package server

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/eddelbuettel/httpuv/api"
	"github.com/eddelbuettel/httpuv/pool"
	"github.com/eddelbuettel/httpuv/protocol"
	"github.com/eddelbuettel/httpuv/reactor"
)

// Server owns one listening socket and its set of live connections.
// All methods except Stop must run on the goroutine pumping Service; Stop
// may be called from elsewhere once pumping has ceased.
type Server struct {
	cfg      *Config
	boundary *boundary
	log      *log.Logger
	bufPool  *pool.BytePool
	poller   *reactor.Poller

	lfd  int
	host string
	port int

	conns   map[int]*conn
	wsConns map[uint64]*conn
	nextWS  uint64

	stopping bool
	stopped  bool
	stopFlag atomic.Bool
}

// Start binds host:port and begins listening. The host must be a concrete
// IPv4/IPv6 literal or the any-address ("" and "0.0.0.0" and "::" all work);
// port 0 binds an ephemeral port, readable afterwards via Port. Connections
// queue at the OS level but are not accepted until Service runs.
func Start(host string, port int, app api.App, opts ...Option) (*Server, error) {
	if app == nil {
		return nil, api.ErrNilApp
	}
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	family, sa, err := sockaddrFor(host, port)
	if err != nil {
		return nil, err
	}

	lfd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %v", api.ErrBind, err)
	}
	if err := unix.SetsockoptInt(lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(lfd)
		return nil, fmt.Errorf("%w: setsockopt: %v", api.ErrBind, err)
	}
	if err := unix.Bind(lfd, sa); err != nil {
		unix.Close(lfd)
		return nil, fmt.Errorf("%w: %s:%d: %v", api.ErrBind, host, port, err)
	}
	if err := unix.Listen(lfd, cfg.Backlog); err != nil {
		unix.Close(lfd)
		return nil, fmt.Errorf("%w: listen: %v", api.ErrBind, err)
	}

	boundPort := port
	if local, err := unix.Getsockname(lfd); err == nil {
		switch v := local.(type) {
		case *unix.SockaddrInet4:
			boundPort = v.Port
		case *unix.SockaddrInet6:
			boundPort = v.Port
		}
	}

	poller, err := reactor.NewPoller()
	if err != nil {
		unix.Close(lfd)
		return nil, fmt.Errorf("%w: %v", api.ErrBind, err)
	}

	s := &Server{
		cfg:      cfg,
		boundary: &boundary{app: app, log: cfg.Logger},
		log:      cfg.Logger,
		bufPool:  pool.NewBytePool(cfg.IOBufferSize),
		poller:   poller,
		lfd:      lfd,
		host:     host,
		port:     boundPort,
		conns:    make(map[int]*conn),
		wsConns:  make(map[uint64]*conn),
	}
	if err := poller.Add(lfd, reactor.Readable, s.onAccept); err != nil {
		poller.Close()
		unix.Close(lfd)
		return nil, fmt.Errorf("%w: %v", api.ErrBind, err)
	}
	return s, nil
}

// Service pumps the event loop for approximately timeoutMs milliseconds.
// Zero pumps until Stop is requested. Service returns once the deadline
// passes even when no connection is active, so a host loop can check for
// external interrupts between calls. Only one Service call may be
// outstanding at a time.
func (s *Server) Service(timeoutMs int) error {
	if s.stopped {
		return api.ErrServerStopped
	}

	if timeoutMs <= 0 {
		for !s.stopFlag.Load() {
			if _, err := s.poller.Wait(-1); err != nil {
				return err
			}
		}
		return nil
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil
		}
		waitMs := int(remain / time.Millisecond)
		if waitMs <= 0 {
			waitMs = 1
		}
		if _, err := s.poller.Wait(waitMs); err != nil {
			return err
		}
		if s.stopFlag.Load() {
			return nil
		}
	}
}

// RequestStop asks a blocked or looping Service call to return without
// tearing anything down. Safe from any goroutine.
func (s *Server) RequestStop() {
	s.stopFlag.Store(true)
	s.poller.Wakeup()
}

// Stop closes every connection (best-effort close frame for WebSocket
// peers, then forced), unbinds the listening socket, and releases the loop.
// After Stop no callback fires and the port is free for rebinding. Stopping
// twice is a safe no-op reporting ErrServerStopped.
func (s *Server) Stop() error {
	if s.stopped {
		return api.ErrServerStopped
	}
	s.stopping = true
	s.stopFlag.Store(true)
	s.poller.Wakeup()

	goingAway := protocol.EncodeFrame(protocol.OpcodeClose, true,
		protocol.ClosePayload(protocol.CloseGoingAway, ""), false)
	for _, c := range s.conns {
		if c.mode == modeWebSocket && !c.closeSent {
			unix.Write(c.fd, goingAway)
		}
		c.destroy()
	}

	s.poller.Remove(s.lfd)
	unix.Close(s.lfd)
	s.poller.Close()
	s.stopped = true
	return nil
}

// Addr returns the bound address as host:port with the actual port.
func (s *Server) Addr() string {
	host := s.host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.port))
}

// Port returns the actually bound port, useful after binding port 0.
func (s *Server) Port() int { return s.port }

// Running reports whether the server still accepts Service calls.
func (s *Server) Running() bool { return !s.stopped }

// StopRequested reports whether RequestStop or Stop has been called. Safe
// from any goroutine; a pump loop uses it to stop re-entering Service once a
// stop is pending.
func (s *Server) StopRequested() bool { return s.stopFlag.Load() }

func (s *Server) onAccept(_ int, _ reactor.Event) {
	for {
		fd, sa, err := unix.Accept4(s.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			s.log.Printf("httpuv: accept: %v", err)
			return
		}
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		c := newConn(s, fd, remoteString(sa))
		s.conns[fd] = c
		if err := s.poller.Add(fd, reactor.Readable, c.onEvent); err != nil {
			s.log.Printf("httpuv: register connection: %v", err)
			delete(s.conns, fd)
			unix.Close(fd)
		}
	}
}

func (s *Server) registerWS(c *conn, req *api.Request) *webSocket {
	s.nextWS++
	ws := newWebSocket(s, s.nextWS, req)
	s.wsConns[ws.id] = c
	return ws
}

func (s *Server) unregisterWS(id uint64) {
	delete(s.wsConns, id)
}

func (s *Server) lookupWS(id uint64) *conn {
	c := s.wsConns[id]
	if c == nil || c.mode == modeClosed {
		return nil
	}
	return c
}

func sockaddrFor(host string, port int) (int, unix.Sockaddr, error) {
	if port < 0 || port > 65535 {
		return 0, nil, fmt.Errorf("%w: invalid port %d", api.ErrBind, port)
	}
	if host == "" || host == "0.0.0.0" || host == "*" {
		return unix.AF_INET, &unix.SockaddrInet4{Port: port}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return 0, nil, fmt.Errorf("%w: invalid address %q", api.ErrBind, host)
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return unix.AF_INET6, sa, nil
}

func remoteString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	}
	return "unknown"
}

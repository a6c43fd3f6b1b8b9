// File: httpuv.go
// Package httpuv is an embeddable HTTP and WebSocket server. A host process
// starts a server bound to an address, repeatedly pumps the I/O loop with
// Service, and receives parsed requests and WebSocket events through the App
// contract. No traffic is processed except while the host services the
// loop, so the engine fits inside single-threaded, cooperatively-scheduled
// host runtimes that must stay responsive to external interrupts.
// License: Apache-2.0

package httpuv

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eddelbuettel/httpuv/api"
	"github.com/eddelbuettel/httpuv/server"
)

// Re-exported contracts so embedding hosts only import this package.
type (
	App       = api.App
	Request   = api.Request
	Response  = api.Response
	Header    = api.Header
	FileBody  = api.FileBody
	WebSocket = api.WebSocket
	Server    = server.Server
	Option    = server.Option
)

// NewResponse returns a Response with an initialized header map.
func NewResponse(status int) *Response { return api.NewResponse(status) }

// Re-exported sentinels, matchable with errors.Is.
var (
	ErrBind             = api.ErrBind
	ErrServerStopped    = api.ErrServerStopped
	ErrConnectionClosed = api.ErrConnectionClosed
	ErrNilApp           = api.ErrNilApp
)

// Loop-share used per server when servicing several servers in one cycle.
const multiServerSliceMs = 100

var (
	registryMu sync.Mutex
	registry   []*server.Server
)

// StartServer binds host:port, registers the server on this process's loop
// registry, and returns its handle. It fails with api.ErrBind when the port
// is taken or privilege is insufficient, and with api.ErrNilApp when app is
// nil.
func StartServer(host string, port int, app App, opts ...Option) (*Server, error) {
	s, err := server.Start(host, port, app, opts...)
	if err != nil {
		return nil, err
	}
	registryMu.Lock()
	registry = append(registry, s)
	registryMu.Unlock()
	return s, nil
}

// StopServer stops one server and removes it from the loop registry.
// Stopping an already stopped server is a safe no-op reporting
// api.ErrServerStopped.
func StopServer(s *Server) error {
	unregister(s)
	return s.Stop()
}

// StopAllServers stops every server registered on this loop.
func StopAllServers() {
	registryMu.Lock()
	servers := registry
	registry = nil
	registryMu.Unlock()
	for _, s := range servers {
		s.Stop()
	}
}

// Service processes ready I/O for the current servicing cycle across all
// active servers on this loop. With a positive timeout each server receives
// an equal slice; zero keeps pumping until every server has stopped.
func Service(timeoutMs int) error {
	servers := snapshot()
	if len(servers) == 0 {
		if timeoutMs > 0 {
			time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		}
		return nil
	}

	if timeoutMs <= 0 {
		for {
			servers = snapshot()
			if len(servers) == 0 {
				return nil
			}
			if err := serviceOnce(servers, multiServerSliceMs); err != nil {
				return err
			}
		}
	}

	share := timeoutMs / len(servers)
	if share < 1 {
		share = 1
	}
	return serviceOnce(servers, share)
}

// RunServer is the convenience composition: start, pump at the given
// interrupt interval, and guarantee teardown on exit. The pump ends on
// SIGINT or SIGTERM, on a Service error, or once a stop has been requested
// on the server.
func RunServer(host string, port int, app App, interruptIntervalMs int, opts ...Option) error {
	if interruptIntervalMs <= 0 {
		interruptIntervalMs = multiServerSliceMs
	}
	s, err := StartServer(host, port, app, opts...)
	if err != nil {
		return err
	}
	defer StopServer(s)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case <-sig:
			return nil
		default:
		}
		if err := s.Service(interruptIntervalMs); err != nil {
			if errors.Is(err, api.ErrServerStopped) {
				return nil
			}
			return err
		}
		if s.StopRequested() {
			return nil
		}
	}
}

func serviceOnce(servers []*server.Server, shareMs int) error {
	for _, s := range servers {
		if !s.Running() {
			unregister(s)
			continue
		}
		if err := s.Service(shareMs); err != nil && !errors.Is(err, api.ErrServerStopped) {
			return err
		}
	}
	return nil
}

func snapshot() []*server.Server {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*server.Server, len(registry))
	copy(out, registry)
	return out
}

func unregister(s *server.Server) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for i, v := range registry {
		if v == s {
			registry = append(registry[:i], registry[i+1:]...)
			return
		}
	}
}

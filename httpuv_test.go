// File: httpuv_test.go
// License: Apache-2.0

//go:build linux

package httpuv

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type okApp struct{}

func (okApp) Call(req *Request) *Response {
	resp := NewResponse(200)
	resp.Header.Set("Content-Type", "text/plain")
	resp.Body = []byte("ok")
	return resp
}

func (okApp) OnWSOpen(ws WebSocket) {}

func TestServiceWithoutServersIsIdle(t *testing.T) {
	start := time.Now()
	if err := Service(1); err != nil {
		t.Fatalf("Service on empty registry: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("idle Service overslept")
	}
}

func TestStartServiceStop(t *testing.T) {
	s, err := StartServer("127.0.0.1", 0, okApp{})
	if err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}

	var quit atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for !quit.Load() {
			if err := Service(20); err != nil {
				return
			}
		}
	}()

	c, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial %s: %v", s.Addr(), err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(5 * time.Second))

	io.WriteString(c, "GET / HTTP/1.1\r\nHost: t\r\n\r\n")
	resp, err := http.ReadResponse(bufio.NewReader(c), &http.Request{Method: "GET"})
	if err != nil {
		t.Fatalf("ReadResponse failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Errorf("response = %d %q", resp.StatusCode, body)
	}

	quit.Store(true)
	s.RequestStop()
	<-done

	if err := StopServer(s); err != nil {
		t.Fatalf("StopServer failed: %v", err)
	}
	if err := StopServer(s); !errors.Is(err, ErrServerStopped) {
		t.Errorf("second StopServer = %v, want ErrServerStopped", err)
	}
}

// RunServer owns the whole start-pump-teardown cycle; a stop requested on
// the server must end the pump and release everything.
func TestRunServerStopsOnRequest(t *testing.T) {
	done := make(chan error, 1)
	go func() { done <- RunServer("127.0.0.1", 0, okApp{}, 20) }()

	var s *Server
	deadline := time.Now().Add(5 * time.Second)
	for s == nil {
		if servers := snapshot(); len(servers) > 0 {
			s = servers[0]
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("RunServer never registered its server")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.RequestStop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunServer returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunServer did not return after the stop request")
	}
	if s.Running() {
		t.Error("server still running after RunServer returned")
	}
	if len(snapshot()) != 0 {
		t.Error("server still registered after RunServer returned")
	}
}

func TestStopAllServers(t *testing.T) {
	a, err := StartServer("127.0.0.1", 0, okApp{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := StartServer("127.0.0.1", 0, okApp{})
	if err != nil {
		t.Fatal(err)
	}

	StopAllServers()
	if a.Running() || b.Running() {
		t.Error("servers still running after StopAllServers")
	}
	if err := Service(1); err != nil {
		t.Errorf("Service after StopAllServers: %v", err)
	}
}

// File: server/conn.go
// Package server - per-connection state machine.
// License: Apache-2.0
//
// A conn owns one accepted socket: its protocol mode, the unparsed read
// buffer, and the FIFO write queue. It is the unit of backpressure (reads
// pause while the write queue is above the high watermark) and of failure
// isolation (host-logic and protocol failures close this connection only).

package server

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/eddelbuettel/httpuv/api"
	"github.com/eddelbuettel/httpuv/protocol"
	"github.com/eddelbuettel/httpuv/protocol/http1"
	"github.com/eddelbuettel/httpuv/reactor"
)

type connMode int

const (
	modeHTTP connMode = iota
	modeWebSocket
	modeClosing
	modeClosed
)

// fileStream is a write-queue entry referencing a file-backed response body,
// read and written chunk by chunk so large payloads never sit in memory.
type fileStream struct {
	f      *os.File
	remain int64
}

type conn struct {
	srv    *Server
	fd     int
	remote string
	mode   connMode

	rbuf   []byte
	parser *http1.Parser

	// Outbound pipeline, drained in order: pending is the chunk currently
	// being written, stream a file body being chunked, wq everything behind
	// them ([]byte or *fileStream entries).
	wq          *queue.Queue
	pending     []byte
	stream      *fileStream
	queuedBytes int
	readPaused  bool
	interest    reactor.Event

	dec       protocol.Decoder
	ws        *webSocket
	fragOp    byte
	frag      []byte
	closeSent bool
}

func newConn(srv *Server, fd int, remote string) *conn {
	return &conn{
		srv:      srv,
		fd:       fd,
		remote:   remote,
		parser:   http1.NewParser(srv.cfg.MaxHeaderBytes, srv.cfg.MaxBodyBytes),
		wq:       queue.New(),
		interest: reactor.Readable,
	}
}

// onEvent is the reactor callback for this connection's socket.
func (c *conn) onEvent(_ int, ev reactor.Event) {
	if ev&reactor.Writable != 0 {
		c.flush()
		if c.mode == modeClosed {
			return
		}
	}
	if ev&reactor.Readable != 0 {
		c.readable()
		if c.mode == modeClosed {
			return
		}
	}
	if ev&reactor.Closed != 0 && ev&reactor.Readable == 0 {
		c.destroy()
		return
	}
	c.updateInterest()
}

func (c *conn) readable() {
	eof := false
	buf := c.srv.bufPool.Get()
	for {
		n, err := unix.Read(c.fd, buf.Bytes())
		if n > 0 {
			c.rbuf = append(c.rbuf, buf.Bytes()[:n]...)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			if err == unix.EINTR {
				continue
			}
			buf.Release()
			c.destroy()
			return
		}
		if n == 0 {
			eof = true
			break
		}
	}
	buf.Release()

	c.process()
	if eof && c.mode != modeClosed {
		c.destroy()
	}
}

// process advances whichever protocol state machine is active over the
// accumulated read buffer. In HTTP mode no second request is parsed until
// the dispatch for the current one has returned, so pipelined requests are
// answered strictly in arrival order.
func (c *conn) process() {
	for c.mode == modeHTTP {
		n, done, err := c.parser.Feed(c.rbuf)
		c.rbuf = c.rbuf[n:]
		if c.parser.TakeContinue() {
			c.enqueue([]byte(http1.ContinueResponse))
			c.flush()
		}
		if err != nil {
			c.httpError(err)
			return
		}
		if !done {
			break
		}
		req := c.parser.Take()
		req.RemoteAddr = c.remote
		c.handleRequest(req)
	}

	if c.mode == modeWebSocket {
		c.processFrames()
	}
	if len(c.rbuf) == 0 {
		c.rbuf = nil
	}
}

func (c *conn) handleRequest(req *api.Request) {
	if protocol.IsUpgradeRequest(req) {
		c.upgrade(req)
		return
	}
	c.respond(req, c.srv.boundary.call(req))
}

// upgrade performs the WebSocket opening handshake. On success the 101
// response is queued, the connection switches to WebSocket mode, and the
// app's open callback runs; bytes the client sent after the handshake are
// already in the read buffer and are decoded as frames next. On failure the
// connection stays in HTTP mode and answers with a 400.
func (c *conn) upgrade(req *api.Request) {
	accept, err := protocol.Upgrade(req)
	if err != nil {
		resp := api.NewResponse(400)
		resp.Header.Set("Content-Type", "text/plain")
		resp.Body = []byte(err.Error())
		c.respond(req, resp)
		return
	}

	c.enqueue(http1.SwitchingProtocols(accept))
	c.mode = modeWebSocket
	c.dec = protocol.Decoder{MaxPayload: c.srv.cfg.MaxFramePayload, RequireMask: true}
	c.ws = c.srv.registerWS(c, req)
	c.flush()

	// The handshake write can fail and tear the connection down; the open
	// callback must not run after the close callbacks already did.
	if c.mode != modeWebSocket {
		return
	}
	if !c.srv.boundary.wsOpen(c.ws) {
		c.startClose(protocol.CloseInternalServerErr, "")
	}
}

func (c *conn) respond(req *api.Request, resp *api.Response) {
	shouldClose := http1.ShouldClose(req)
	if resp.Header != nil && resp.Header.Contains("Connection", "close") {
		shouldClose = true
	}
	head := req.Method == "HEAD"

	var bodyLen int64
	var fs *fileStream
	if resp.File != nil {
		var err error
		bodyLen, fs, err = openFileBody(resp.File)
		if err != nil {
			c.srv.log.Printf("httpuv: %s: file body: %v", c.remote, err)
			resp = failureResponse(fmt.Sprintf("cannot stream file: %v", err))
			bodyLen = int64(len(resp.Body))
		}
	} else {
		bodyLen = int64(len(resp.Body))
	}

	c.enqueue(http1.AppendResponse(nil, resp, bodyLen, head, shouldClose))
	if fs != nil {
		if head || bodyLen == 0 {
			fs.f.Close()
		} else {
			c.wq.Add(fs)
		}
	}
	if shouldClose {
		c.mode = modeClosing
	}
	c.flush()
}

func openFileBody(fb *api.FileBody) (int64, *fileStream, error) {
	f, err := os.Open(fb.Path)
	if err != nil {
		return 0, nil, err
	}
	length := fb.Length
	if length < 0 {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return 0, nil, err
		}
		length = st.Size() - fb.Offset
		if length < 0 {
			length = 0
		}
	}
	if fb.Offset > 0 {
		if _, err := f.Seek(fb.Offset, io.SeekStart); err != nil {
			f.Close()
			return 0, nil, err
		}
	}
	return length, &fileStream{f: f, remain: length}, nil
}

func (c *conn) httpError(err error) {
	status := 400
	switch {
	case errors.Is(err, http1.ErrHeaderTooLarge):
		status = 431
	case errors.Is(err, http1.ErrBodyTooLarge):
		status = 413
	}
	c.srv.log.Printf("httpuv: %s: %v", c.remote, err)

	resp := api.NewResponse(status)
	resp.Header.Set("Content-Type", "text/plain")
	resp.Body = []byte(err.Error())
	c.enqueue(http1.AppendResponse(nil, resp, int64(len(resp.Body)), false, true))
	c.mode = modeClosing
	c.flush()
}

func (c *conn) processFrames() {
	for c.mode == modeWebSocket {
		f, n, err := c.dec.Decode(c.rbuf)
		if err != nil {
			c.wsError(err)
			return
		}
		if f == nil {
			break
		}
		c.rbuf = c.rbuf[n:]
		c.handleFrame(f)
	}
}

func (c *conn) handleFrame(f *protocol.Frame) {
	switch f.Opcode {
	case protocol.OpcodePing:
		c.sendFrame(protocol.OpcodePong, f.Payload)

	case protocol.OpcodePong:
		// Unsolicited pongs are permitted and ignored.

	case protocol.OpcodeClose:
		if !c.closeSent {
			var echo []byte
			if code, _ := protocol.ParseClosePayload(f.Payload); code != protocol.CloseNoStatusRcvd {
				echo = protocol.ClosePayload(code, "")
			}
			c.sendFrame(protocol.OpcodeClose, echo)
			c.closeSent = true
		}
		c.mode = modeClosing
		c.flush()

	case protocol.OpcodeText, protocol.OpcodeBinary:
		if c.fragOp != 0 {
			c.wsError(fmt.Errorf("%w: new data frame before final fragment", api.ErrProtocol))
			return
		}
		if f.Fin {
			c.deliver(f.Opcode == protocol.OpcodeBinary, f.Payload)
			return
		}
		c.fragOp = f.Opcode
		c.frag = append([]byte(nil), f.Payload...)

	case protocol.OpcodeContinuation:
		if c.fragOp == 0 {
			c.wsError(fmt.Errorf("%w: continuation without initial frame", api.ErrProtocol))
			return
		}
		c.frag = append(c.frag, f.Payload...)
		if c.srv.cfg.MaxMessageSize > 0 && int64(len(c.frag)) > c.srv.cfg.MaxMessageSize {
			c.wsError(fmt.Errorf("%w: reassembled message", api.ErrMessageTooBig))
			return
		}
		if f.Fin {
			binary := c.fragOp == protocol.OpcodeBinary
			data := c.frag
			c.fragOp = 0
			c.frag = nil
			c.deliver(binary, data)
		}
	}
}

func (c *conn) deliver(binary bool, data []byte) {
	if c.ws == nil {
		return
	}
	if !c.srv.boundary.wsMessage(c.ws, binary, data) {
		c.startClose(protocol.CloseInternalServerErr, "")
	}
}

func (c *conn) wsError(err error) {
	code := protocol.CloseProtocolError
	if errors.Is(err, api.ErrMessageTooBig) {
		code = protocol.CloseMessageTooBig
	}
	c.srv.log.Printf("httpuv: %s: %v", c.remote, err)
	c.startClose(code, "")
}

// sendFrame queues one outbound frame. No-op once the closing handshake has
// started; server frames are never masked.
func (c *conn) sendFrame(opcode byte, payload []byte) error {
	if c.mode != modeWebSocket || c.closeSent {
		return nil
	}
	c.enqueue(protocol.EncodeFrame(opcode, true, payload, false))
	c.flush()
	return nil
}

// startClose initiates the WebSocket closing handshake: send a close frame
// if none was sent, then tear the connection down once the queue drains.
func (c *conn) startClose(code int, reason string) {
	if c.mode != modeWebSocket {
		return
	}
	if !c.closeSent {
		c.sendFrame(protocol.OpcodeClose, protocol.ClosePayload(code, reason))
		c.closeSent = true
	}
	c.mode = modeClosing
	c.flush()
}

func (c *conn) enqueue(b []byte) {
	if c.mode == modeClosed || len(b) == 0 {
		return
	}
	c.wq.Add(b)
	c.queuedBytes += len(b)
}

func (c *conn) drained() bool {
	return len(c.pending) == 0 && c.stream == nil && c.wq.Length() == 0
}

// flush writes queued chunks until the socket would block or the queue
// drains. File-backed entries are read through a pooled buffer one chunk at
// a time.
func (c *conn) flush() {
	if c.mode == modeClosed {
		return
	}
	for {
		if len(c.pending) > 0 {
			n, err := unix.Write(c.fd, c.pending)
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				c.destroy()
				return
			}
			c.pending = c.pending[n:]
			c.queuedBytes -= n
			if len(c.pending) > 0 {
				break
			}
			c.pending = nil
			continue
		}

		if c.stream != nil {
			buf := c.srv.bufPool.Get()
			want := int64(len(buf.Bytes()))
			if want > c.stream.remain {
				want = c.stream.remain
			}
			n, err := c.stream.f.Read(buf.Bytes()[:want])
			if n > 0 {
				c.pending = append([]byte(nil), buf.Bytes()[:n]...)
				c.queuedBytes += n
				c.stream.remain -= int64(n)
			}
			buf.Release()
			if c.stream.remain == 0 {
				c.stream.f.Close()
				c.stream = nil
			} else if err != nil {
				// The header section promised Content-Length bytes that
				// the file can no longer provide.
				c.srv.log.Printf("httpuv: %s: file body truncated: %v", c.remote, err)
				c.destroy()
				return
			}
			continue
		}

		if c.wq.Length() == 0 {
			break
		}
		switch v := c.wq.Remove().(type) {
		case []byte:
			c.pending = v
		case *fileStream:
			c.stream = v
		}
	}

	if c.mode == modeClosing && c.drained() {
		c.destroy()
		return
	}
	c.updateInterest()
}

// updateInterest recomputes epoll interest: reads while parsing is allowed
// and the write queue is below the high watermark, writes while outbound
// data is pending.
func (c *conn) updateInterest() {
	if c.mode == modeClosed {
		return
	}
	if c.queuedBytes > c.srv.cfg.WriteHighWater {
		c.readPaused = true
	} else if c.readPaused && c.queuedBytes <= c.srv.cfg.WriteLowWater {
		c.readPaused = false
	}

	var ev reactor.Event
	if (c.mode == modeHTTP || c.mode == modeWebSocket) && !c.readPaused {
		ev |= reactor.Readable
	}
	if !c.drained() {
		ev |= reactor.Writable
	}
	if ev != c.interest {
		if err := c.srv.poller.Modify(c.fd, ev); err == nil {
			c.interest = ev
		}
	}
}

// destroy force-closes the connection, releases its buffers, removes it from
// the server's tables, and fires WebSocket close callbacks exactly once.
// Callbacks are suppressed while the server itself is stopping.
func (c *conn) destroy() {
	if c.mode == modeClosed {
		return
	}
	c.mode = modeClosed

	c.srv.poller.Remove(c.fd)
	unix.Close(c.fd)

	if c.stream != nil {
		c.stream.f.Close()
		c.stream = nil
	}
	for c.wq.Length() > 0 {
		if fs, ok := c.wq.Remove().(*fileStream); ok {
			fs.f.Close()
		}
	}
	c.pending = nil
	c.rbuf = nil
	c.frag = nil

	delete(c.srv.conns, c.fd)
	if c.ws != nil {
		c.srv.unregisterWS(c.ws.id)
		if !c.srv.stopping {
			c.srv.boundary.wsClose(c.ws)
		}
	}
}

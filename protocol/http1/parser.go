// File: protocol/http1/parser.go
// Package http1 implements incremental HTTP/1.1 request parsing and response
// serialization for the connection engine.
// License: Apache-2.0
//
// The parser is a push state machine: the connection feeds it whatever bytes
// the socket produced, and it consumes exactly up to the end of one message.
// Bytes past the message boundary are left to the caller, which is what makes
// pipelined requests parse strictly in arrival order. Parsing the same bytes
// in one call or split at arbitrary boundaries yields identical requests.

package http1

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eddelbuettel/httpuv/api"
)

// Limit errors, distinguished from plain protocol errors so the server can
// answer 431/413 instead of 400.
var (
	ErrHeaderTooLarge = errors.New("request header section too large")
	ErrBodyTooLarge   = errors.New("request body too large")
)

type parseState int

const (
	stateRequestLine parseState = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkCRLF
	stateTrailers
	stateDone
)

// Parser assembles one request at a time from a byte stream.
type Parser struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64

	state       parseState
	req         *api.Request
	line        []byte // partial line carried across Feed calls
	headerBytes int

	bodyRemain  int64
	chunkRemain int64
	body        bytes.Buffer

	continuePending bool
}

// NewParser returns a parser enforcing the given limits. Zero limits mean
// unlimited.
func NewParser(maxHeader int, maxBody int64) *Parser {
	return &Parser{MaxHeaderBytes: maxHeader, MaxBodyBytes: maxBody}
}

// Feed consumes bytes from data and returns how many were consumed and
// whether a complete request is ready for Take. Feed never consumes past the
// end of the current message.
func (p *Parser) Feed(data []byte) (int, bool, error) {
	consumed := 0
	for consumed < len(data) && p.state != stateDone {
		switch p.state {
		case stateRequestLine, stateHeaders, stateChunkSize, stateChunkCRLF, stateTrailers:
			line, n, ok, err := p.takeLine(data[consumed:])
			consumed += n
			if err != nil {
				return consumed, false, err
			}
			if !ok {
				return consumed, false, nil
			}
			if err := p.handleLine(line); err != nil {
				return consumed, false, err
			}

		case stateBody:
			n := int64(len(data) - consumed)
			if n > p.bodyRemain {
				n = p.bodyRemain
			}
			p.body.Write(data[consumed : consumed+int(n)])
			consumed += int(n)
			p.bodyRemain -= n
			if p.bodyRemain == 0 {
				p.state = stateDone
			}

		case stateChunkData:
			n := int64(len(data) - consumed)
			if n > p.chunkRemain {
				n = p.chunkRemain
			}
			if p.MaxBodyBytes > 0 && int64(p.body.Len())+n > p.MaxBodyBytes {
				return consumed, false, ErrBodyTooLarge
			}
			p.body.Write(data[consumed : consumed+int(n)])
			consumed += int(n)
			p.chunkRemain -= n
			if p.chunkRemain == 0 {
				p.state = stateChunkCRLF
			}
		}
	}
	return consumed, p.state == stateDone, nil
}

// Take returns the completed request and resets the parser for the next
// message on the same connection.
func (p *Parser) Take() *api.Request {
	req := p.req
	req.Body = append([]byte(nil), p.body.Bytes()...)
	p.req = nil
	p.body.Reset()
	p.line = nil
	p.headerBytes = 0
	p.state = stateRequestLine
	return req
}

// TakeContinue reports, exactly once per request, that the client sent
// Expect: 100-continue and an interim 100 response is due before its body.
func (p *Parser) TakeContinue() bool {
	due := p.continuePending
	p.continuePending = false
	return due
}

// takeLine extracts one CRLF (or bare LF) terminated line, carrying partial
// lines across calls. The returned slice excludes the terminator.
func (p *Parser) takeLine(data []byte) ([]byte, int, bool, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if err := p.countHeaderBytes(len(data)); err != nil {
			return nil, 0, false, err
		}
		p.line = append(p.line, data...)
		return nil, len(data), false, nil
	}
	if err := p.countHeaderBytes(idx + 1); err != nil {
		return nil, 0, false, err
	}
	line := data[:idx]
	if len(p.line) > 0 {
		line = append(p.line, line...)
		p.line = nil
	}
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, idx + 1, true, nil
}

func (p *Parser) countHeaderBytes(n int) error {
	if p.state != stateRequestLine && p.state != stateHeaders {
		return nil
	}
	p.headerBytes += n
	if p.MaxHeaderBytes > 0 && p.headerBytes > p.MaxHeaderBytes {
		return ErrHeaderTooLarge
	}
	return nil
}

func (p *Parser) handleLine(line []byte) error {
	switch p.state {
	case stateRequestLine:
		if len(line) == 0 {
			// Tolerate empty lines before the request line (robustness
			// rule from RFC 9112 section 2.2).
			return nil
		}
		return p.parseRequestLine(string(line))

	case stateHeaders:
		if len(line) == 0 {
			return p.endOfHeaders()
		}
		return p.parseHeaderLine(string(line))

	case stateChunkSize:
		s := string(line)
		if i := strings.IndexByte(s, ';'); i >= 0 {
			s = s[:i] // chunk extensions are ignored
		}
		size, err := strconv.ParseInt(strings.TrimSpace(s), 16, 64)
		if err != nil || size < 0 {
			return fmt.Errorf("%w: bad chunk size %q", api.ErrProtocol, s)
		}
		if size == 0 {
			p.state = stateTrailers
			return nil
		}
		p.chunkRemain = size
		p.state = stateChunkData
		return nil

	case stateChunkCRLF:
		if len(line) != 0 {
			return fmt.Errorf("%w: missing CRLF after chunk data", api.ErrProtocol)
		}
		p.state = stateChunkSize
		return nil

	case stateTrailers:
		if len(line) == 0 {
			p.state = stateDone
		}
		// Trailer fields are accepted and discarded.
		return nil
	}
	return nil
}

func (p *Parser) parseRequestLine(line string) error {
	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return fmt.Errorf("%w: malformed request line %q", api.ErrProtocol, line)
	}
	target, proto, ok := strings.Cut(rest, " ")
	if !ok || method == "" || target == "" {
		return fmt.Errorf("%w: malformed request line %q", api.ErrProtocol, line)
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return fmt.Errorf("%w: unsupported protocol %q", api.ErrProtocol, proto)
	}

	path, query, _ := strings.Cut(target, "?")
	p.req = &api.Request{
		Method: method,
		Path:   path,
		Query:  query,
		Proto:  proto,
		Header: make(api.Header),
	}
	p.state = stateHeaders
	return nil
}

func (p *Parser) parseHeaderLine(line string) error {
	if line[0] == ' ' || line[0] == '\t' {
		return fmt.Errorf("%w: obsolete header line folding", api.ErrProtocol)
	}
	key, value, ok := strings.Cut(line, ":")
	if !ok || key == "" || strings.TrimRight(key, " \t") != key {
		return fmt.Errorf("%w: malformed header line %q", api.ErrProtocol, line)
	}
	p.req.Header.Add(key, strings.TrimSpace(value))
	return nil
}

func (p *Parser) endOfHeaders() error {
	h := p.req.Header

	if h.Contains("Transfer-Encoding", "chunked") {
		p.state = stateChunkSize
		p.continuePending = h.Contains("Expect", "100-continue")
		return nil
	}
	if te := h.Get("Transfer-Encoding"); te != "" {
		return fmt.Errorf("%w: unsupported transfer encoding %q", api.ErrProtocol, te)
	}

	if cl := h.Get("Content-Length"); cl != "" {
		length, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || length < 0 {
			return fmt.Errorf("%w: bad Content-Length %q", api.ErrProtocol, cl)
		}
		if p.MaxBodyBytes > 0 && length > p.MaxBodyBytes {
			return ErrBodyTooLarge
		}
		if length == 0 {
			p.state = stateDone
			return nil
		}
		p.bodyRemain = length
		p.state = stateBody
		p.continuePending = h.Contains("Expect", "100-continue")
		return nil
	}

	p.state = stateDone
	return nil
}

// ShouldClose reports whether the connection must close after answering req:
// an explicit Connection: close, or an HTTP/1.0 request without keep-alive.
func ShouldClose(req *api.Request) bool {
	if req.Header.Contains("Connection", "close") {
		return true
	}
	return req.Proto == "HTTP/1.0" && !req.Header.Contains("Connection", "keep-alive")
}

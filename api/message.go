// File: api/message.go
// Package api defines the contracts shared between the engine and host code.
// License: Apache-2.0
//
// HTTP request/response value types exchanged across the dispatch boundary.

package api

import "strings"

// Header is a case-insensitive header mapping. Keys are stored lowercased;
// repeated fields are comma-joined per HTTP field semantics.
type Header map[string]string

// Get returns the value for key, or "" when absent.
func (h Header) Get(key string) string {
	return h[strings.ToLower(key)]
}

// Set replaces any existing value for key.
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Add appends value to key, comma-joining with any existing value.
func (h Header) Add(key, value string) {
	k := strings.ToLower(key)
	if prev, ok := h[k]; ok && prev != "" {
		h[k] = prev + ", " + value
		return
	}
	h[k] = value
}

// Del removes key.
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Contains reports whether the field named key contains token in its
// comma-separated value list, case-insensitively. Used for fields like
// Connection and Upgrade whose values are token lists.
func (h Header) Contains(key, token string) bool {
	v := h.Get(key)
	if v == "" {
		return false
	}
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// Request is one fully assembled HTTP request. The engine buffers chunked and
// length-delimited bodies completely before dispatch, so Body is never
// partial. Requests are transient: constructed per message, discarded once
// the response has been handed back.
type Request struct {
	Method     string
	Path       string // request target with the query string stripped
	Query      string // raw query string, "" when absent
	Proto      string // "HTTP/1.1" or "HTTP/1.0"
	Header     Header
	Body       []byte
	RemoteAddr string
}

// FileBody references a file-backed response payload that the engine streams
// in chunks instead of holding in memory.
type FileBody struct {
	Path   string
	Offset int64
	Length int64 // -1 streams from Offset to EOF
}

// Response is the host's answer to one request. Exactly one of Body and File
// should be set; when File is non-nil it wins. The engine fills in
// Content-Length, Date, and Connection headers when the host leaves them out.
type Response struct {
	Status int
	Header Header
	Body   []byte
	File   *FileBody
}

// NewResponse returns a Response with an initialized header map.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(Header)}
}

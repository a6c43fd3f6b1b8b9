// File: server/boundary.go
// Package server - the app dispatch boundary.
// License: Apache-2.0
//
// The boundary is the single place where host-supplied logic runs. Every
// call site converts a panic in host code into a local recovery action, so
// one misbehaving callback degrades exactly one connection and never the
// engine: Call failures become 500 responses, open/message failures close
// the affected connection, close-callback failures are swallowed.

package server

import (
	"fmt"
	"log"

	"github.com/eddelbuettel/httpuv/api"
)

type boundary struct {
	app api.App
	log *log.Logger
}

// call invokes the app's request handler. A panic or a nil response is
// downgraded to a 500 response carrying a diagnostic body.
func (b *boundary) call(req *api.Request) *api.Response {
	resp := func() (resp *api.Response) {
		defer func() {
			if r := recover(); r != nil {
				b.log.Printf("httpuv: app call failed: %v", r)
				resp = failureResponse(r)
			}
		}()
		return b.app.Call(req)
	}()
	if resp == nil {
		resp = failureResponse("app returned nil response")
	}
	return resp
}

// wsOpen invokes the app's open callback. Returns false when the callback
// failed and the just-opened connection must be closed.
func (b *boundary) wsOpen(ws *webSocket) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("httpuv: onWSOpen failed: %v", r)
			ok = false
		}
	}()
	b.app.OnWSOpen(ws)
	return true
}

// wsMessage delivers one message to the handle's registered callbacks in
// order. On the first failure it stops, skipping the remaining callbacks,
// and returns false so the caller closes the connection.
func (b *boundary) wsMessage(ws *webSocket, binary bool, data []byte) bool {
	for _, cb := range ws.messageCallbacks() {
		if !b.invokeMessage(cb, binary, data) {
			return false
		}
	}
	return true
}

func (b *boundary) invokeMessage(cb func(bool, []byte), binary bool, data []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("httpuv: onMessage failed: %v", r)
			ok = false
		}
	}()
	cb(binary, data)
	return true
}

// wsClose fires the handle's close callbacks. Failures are swallowed: the
// connection is already gone and nothing more can be done.
func (b *boundary) wsClose(ws *webSocket) {
	for _, cb := range ws.closeCallbacks() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Printf("httpuv: onClose failed: %v", r)
				}
			}()
			cb()
		}()
	}
}

func failureResponse(v any) *api.Response {
	resp := api.NewResponse(500)
	resp.Header.Set("Content-Type", "text/plain")
	resp.Body = []byte(fmt.Sprintf("Internal Server Error: %v", v))
	return resp
}

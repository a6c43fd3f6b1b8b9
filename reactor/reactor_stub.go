// File: reactor/reactor_stub.go
// Package reactor - stub for platforms without an epoll implementation.
// License: Apache-2.0

//go:build !linux

package reactor

import "errors"

// Poller is unavailable on this platform.
type Poller struct{}

var errUnsupported = errors.New("reactor: no poller implementation for this platform")

func NewPoller() (*Poller, error) { return nil, errUnsupported }

func (p *Poller) Add(int, Event, Callback) error { return errUnsupported }

func (p *Poller) Modify(int, Event) error { return errUnsupported }

func (p *Poller) Remove(int) error { return errUnsupported }

func (p *Poller) Wait(int) (int, error) { return 0, errUnsupported }

func (p *Poller) Wakeup() error { return errUnsupported }

func (p *Poller) Close() error { return nil }

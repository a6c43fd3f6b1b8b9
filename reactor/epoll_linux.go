// File: reactor/epoll_linux.go
// Package reactor - Linux epoll implementation.
// License: Apache-2.0

//go:build linux

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// Poller is an epoll-backed demultiplexer. It is not safe for concurrent
// use; all methods except Wakeup must run on the servicing goroutine.
type Poller struct {
	epfd      int
	wakeFd    int
	callbacks map[int]Callback
	events    []unix.EpollEvent
	closed    bool
}

// NewPoller creates the epoll instance plus an eventfd used to interrupt a
// blocking Wait from another goroutine.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &Poller{
		epfd:      epfd,
		wakeFd:    wakeFd,
		callbacks: make(map[int]Callback),
		events:    make([]unix.EpollEvent, maxEvents),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		p.Close()
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}
	return p, nil
}

// Add registers fd with the given interest and callback.
func (p *Poller) Add(fd int, events Event, cb Callback) error {
	ev := unix.EpollEvent{Events: epollBits(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	p.callbacks[fd] = cb
	return nil
}

// Modify changes the readiness interest for an already registered fd.
func (p *Poller) Modify(fd int, events Event) error {
	ev := unix.EpollEvent{Events: epollBits(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove unregisters fd. Removing an fd from within its own callback is
// allowed; any readiness already reported for it in this cycle is dropped.
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	delete(p.callbacks, fd)
	return nil
}

// Wait blocks for up to timeoutMs milliseconds (-1 blocks indefinitely) and
// dispatches callbacks for every ready descriptor. It returns the number of
// descriptors dispatched. A signal interruption or a Wakeup call yields a
// normal zero-count return.
func (p *Poller) Wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if fd == p.wakeFd {
			p.drainWakeup()
			continue
		}
		// The callback may have been removed by an earlier callback in
		// this same cycle.
		cb, ok := p.callbacks[fd]
		if !ok {
			continue
		}
		var ev Event
		bits := p.events[i].Events
		if bits&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
			ev |= Readable
		}
		if bits&unix.EPOLLOUT != 0 {
			ev |= Writable
		}
		if bits&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			ev |= Closed
		}
		cb(fd, ev)
		dispatched++
	}
	return dispatched, nil
}

// Wakeup interrupts a concurrent Wait. Safe to call from any goroutine.
func (p *Poller) Wakeup() error {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, err := unix.Write(p.wakeFd, one[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Close releases the epoll and eventfd descriptors.
func (p *Poller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}

func (p *Poller) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func epollBits(events Event) uint32 {
	var bits uint32 = unix.EPOLLRDHUP
	if events&Readable != 0 {
		bits |= unix.EPOLLIN
	}
	if events&Writable != 0 {
		bits |= unix.EPOLLOUT
	}
	return bits
}

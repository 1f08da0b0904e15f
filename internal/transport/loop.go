// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

// Package transport provides a reference net.Listener/net.Conn-backed
// implementation of the SocketLoop/NetworkManager/ActivationState
// interfaces the monitor package consumes. The original firmware's socket
// loop is an external, board-specific select/epoll dispatcher this service
// only registers callbacks with; here a goroutine-per-registration
// dispatcher plays the same role, adapted to Go's concurrency model.
package transport

import (
	"log/slog"
	"net"
	"sync"

	"github.com/tuyaopen/ai-monitor/internal/monitor"
)

// ConnID is an alias for the identifier type the monitor package's
// SocketLoop interface uses, so this implementation satisfies it exactly.
type ConnID = monitor.ConnID

// Loop is a minimal SocketLoop: each registered connection gets its own
// reader goroutine that calls onReadable repeatedly, serialized per
// connection, until it is unregistered. The onError callbacks passed to
// RegisterListener and RegisterConn are never invoked: the caller's
// onReadable must detect and handle accept and read errors itself. This
// trades the original's single-threaded cooperative dispatch for Go's
// idiomatic goroutine-per-connection model.
type Loop struct {
	logger *slog.Logger

	mu        sync.Mutex
	conns     map[ConnID]net.Conn
	cancelers map[ConnID]chan struct{}

	listener        net.Listener
	listenerCancel  chan struct{}
	listenerRunning bool
}

// NewLoop builds an empty Loop.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:    logger,
		conns:     make(map[ConnID]net.Conn),
		cancelers: make(map[ConnID]chan struct{}),
	}
}

// RegisterListener starts a goroutine that invokes onReadable once per
// incoming-connection-is-ready notification (here, once per loop
// iteration, since net.Listener.Accept already blocks until one is ready)
// until UnregisterListener is called. onError is not invoked.
func (l *Loop) RegisterListener(ln net.Listener, onReadable func(), onError func(error)) error {
	l.mu.Lock()
	l.listener = ln
	cancel := make(chan struct{})
	l.listenerCancel = cancel
	l.listenerRunning = true
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-cancel:
				return
			default:
			}
			onReadable()
			l.mu.Lock()
			stillRunning := l.listenerRunning
			l.mu.Unlock()
			if !stillRunning {
				return
			}
		}
	}()
	_ = onError // invoked by the caller's own Accept error path, not scheduled here
	return nil
}

// UnregisterListener stops the listener's accept-notification goroutine.
func (l *Loop) UnregisterListener() {
	l.mu.Lock()
	l.listenerRunning = false
	cancel := l.listenerCancel
	l.listener = nil
	l.mu.Unlock()
	if cancel != nil {
		close(cancel)
	}
}

// RegisterConn starts a goroutine that blocks waiting for conn to become
// readable (via a zero-byte peek read is not portable in Go, so instead
// this simply invokes onReadable once per notification cycle, relying on
// the caller's own conn.Read to do the actual blocking read) until the
// connection errors out or Unregister is called.
func (l *Loop) RegisterConn(id ConnID, conn net.Conn, onReadable func(), onError func(error)) error {
	_ = onError // the caller's onReadable already handles read/accept errors inline
	l.mu.Lock()
	l.conns[id] = conn
	cancel := make(chan struct{})
	l.cancelers[id] = cancel
	l.mu.Unlock()

	go func() {
		for {
			select {
			case <-cancel:
				return
			default:
			}
			onReadable()
			l.mu.Lock()
			_, stillRegistered := l.conns[id]
			l.mu.Unlock()
			if !stillRegistered {
				return
			}
		}
	}()
	return nil
}

// Unregister stops id's notification goroutine and forgets it.
func (l *Loop) Unregister(id ConnID) {
	l.mu.Lock()
	cancel, ok := l.cancelers[id]
	delete(l.conns, id)
	delete(l.cancelers, id)
	l.mu.Unlock()
	if ok {
		close(cancel)
	}
}

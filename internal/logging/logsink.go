// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MonitorLogSink is a slog.Handler that fans every record out to zero or
// more registered observers, in addition to a primary handler. It is the
// CUSTOM_LOG broadcast mechanism: each subscribing observer client
// registers itself as long as its subscription bitmap includes
// CUSTOM_LOG, and is removed the moment it unsubscribes or disconnects.
//
// This mirrors fanOutHandler's dispatch-to-two-handlers shape, generalized
// from "one dedicated secondary handler" to "N dynamically
// registered/unregistered observer writers". The set of observers is the
// reference count from the original firmware's tal_log_add_output_term/
// tal_log_del_output_term pair: the facility stays wired exactly as long
// as at least one client wants it, never torn down and rebuilt per call.
type MonitorLogSink struct {
	primary slog.Handler

	mu        sync.Mutex
	observers map[uint32]func(line string)
}

// NewMonitorLogSink wraps primary, the base logger's own handler, so
// ordinary logging is unaffected by whether any observer is subscribed.
func NewMonitorLogSink(primary slog.Handler) *MonitorLogSink {
	return &MonitorLogSink{primary: primary, observers: make(map[uint32]func(line string))}
}

func (s *MonitorLogSink) Enabled(ctx context.Context, level slog.Level) bool {
	return s.primary.Enabled(ctx, level)
}

func (s *MonitorLogSink) Handle(ctx context.Context, r slog.Record) error {
	if err := s.primary.Handle(ctx, r); err != nil {
		return err
	}

	s.mu.Lock()
	if len(s.observers) == 0 {
		s.mu.Unlock()
		return nil
	}
	writers := make([]func(string), 0, len(s.observers))
	for _, w := range s.observers {
		writers = append(writers, w)
	}
	s.mu.Unlock()

	line := formatRecord(r)
	for _, w := range writers {
		// Best-effort delivery, called synchronously on the logging
		// goroutine: a panicking observer is recovered and skipped, so it
		// cannot break the sink or the other observers.
		deliver(w, line)
	}
	return nil
}

func (s *MonitorLogSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MonitorLogSink{primary: s.primary.WithAttrs(attrs), observers: s.observers}
}

func (s *MonitorLogSink) WithGroup(name string) slog.Handler {
	return &MonitorLogSink{primary: s.primary.WithGroup(name), observers: s.observers}
}

// AddObserver registers id to receive every subsequent log line. w may be
// nil, meaning the client wants the subscription accounted for (so the
// facility stays wired) without payload delivery — delivery is an optional
// capability here, not a guarantee.
func (s *MonitorLogSink) AddObserver(id uint32, w func(line string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[id] = w
	return nil
}

// RemoveObserver unregisters id. A no-op if it was never registered.
func (s *MonitorLogSink) RemoveObserver(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}

func deliver(w func(string), line string) {
	if w == nil {
		return
	}
	defer func() { recover() }() // an observer writer must never panic the sink
	w(line)
}

func formatRecord(r slog.Record) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s", r.Time.Format("15:04:05.000"), r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value)
		return true
	})
	return buf.String()
}

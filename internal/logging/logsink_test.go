// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestMonitorLogSink_AlwaysDeliversToPrimary(t *testing.T) {
	var buf bytes.Buffer
	sink := NewMonitorLogSink(slog.NewTextHandler(&buf, nil))
	logger := slog.New(sink)

	logger.Info("hello")

	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected primary handler to receive the record, got %q", buf.String())
	}
}

func TestMonitorLogSink_FansOutToRegisteredObservers(t *testing.T) {
	sink := NewMonitorLogSink(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger := slog.New(sink)

	var mu sync.Mutex
	var received []string
	sink.AddObserver(1, func(line string) {
		mu.Lock()
		received = append(received, line)
		mu.Unlock()
	})

	logger.Info("observed line")

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || !strings.Contains(received[0], "observed line") {
		t.Fatalf("expected observer to receive one line, got %+v", received)
	}
}

func TestMonitorLogSink_RemoveObserverStopsDelivery(t *testing.T) {
	sink := NewMonitorLogSink(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger := slog.New(sink)

	var calls int
	sink.AddObserver(2, func(line string) { calls++ })
	sink.RemoveObserver(2)

	logger.Info("after removal")

	if calls != 0 {
		t.Fatalf("expected no delivery after RemoveObserver, got %d calls", calls)
	}
}

func TestMonitorLogSink_NilObserverWriterIsAllowed(t *testing.T) {
	sink := NewMonitorLogSink(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger := slog.New(sink)

	if err := sink.AddObserver(3, nil); err != nil {
		t.Fatalf("unexpected error registering a nil writer: %v", err)
	}
	logger.Info("should not panic")
}

func TestMonitorLogSink_PanickingObserverDoesNotBreakOtherObservers(t *testing.T) {
	sink := NewMonitorLogSink(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger := slog.New(sink)

	var mu sync.Mutex
	var gotIt bool
	sink.AddObserver(4, func(line string) { panic("boom") })
	sink.AddObserver(5, func(line string) {
		mu.Lock()
		gotIt = true
		mu.Unlock()
	})

	logger.Info("resilient fan-out")

	mu.Lock()
	defer mu.Unlock()
	if !gotIt {
		t.Fatal("expected the non-panicking observer to still receive the line")
	}
}

func TestMonitorLogSink_EnabledDelegatesToPrimary(t *testing.T) {
	sink := NewMonitorLogSink(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if sink.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level to be disabled when the primary handler is set to warn")
	}
	if !sink.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected error level to be enabled")
	}
}

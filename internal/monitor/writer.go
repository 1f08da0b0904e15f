// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package monitor

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/tuyaopen/ai-monitor/internal/protocol"
)

// ErrWriteFailed is returned by PacketWriter.Write when the retry budget is
// exhausted without completing the send. A non-timeout write error is
// returned as is, not as ErrWriteFailed.
var ErrWriteFailed = errors.New("monitor: write failed")

// PacketWriter is the 4-stage contract the AI biz encoder drives to emit
// one fan-out packet to one client: get this direction's fragment-offset
// cell, get the next outbound sequence number, send the wrapper preamble,
// then send the encoded body. It is the Go rendition of the original's
// polymorphic writer stage callbacks.
type PacketWriter interface {
	// FragOffset returns a mutable pointer to the fragment-offset cell for
	// dir. Three cells exist, selected by dir modulo their count, matching
	// the original's per-direction (not per-client) fragment bookkeeping.
	FragOffset(dir Direction) *uint32
	// NextSequence returns the next sequence number for dir on this
	// client, post-incrementing and skipping zero on wrap.
	NextSequence(dir Direction) uint16
	// PreWrite sends the 5-byte wrapper preamble for dir as its own Write
	// call, before any encoder bytes — observers must not assume the
	// preamble and body share one TCP segment.
	PreWrite(dir Direction) error
	// Write sends buf in full, retrying on transient would-block
	// conditions up to the adapter's bounded budget.
	Write(buf []byte) error
}

// writerAdapter implements PacketWriter over one client's net.Conn. Writes
// are serialized by callers (the fan-out path holds the client table's
// per-slot access pattern; see fanout.go) — this adapter itself is not
// safe for concurrent use by multiple goroutines against the same conn.
type writerAdapter struct {
	conn net.Conn

	fragOffsets [3]uint32
	slot        *clientSlot

	limiter    *rate.Limiter
	retryDelay time.Duration
	maxRetries int
}

// newWriterAdapter builds an adapter over slot's connection. limiter paces
// retry attempts on a would-block write; it replaces the original's bare
// 50ms sleep loop with a token-bucket wait, so a client in sustained
// backpressure does not spin a goroutine in a tight retry loop.
func newWriterAdapter(slot *clientSlot, limiter *rate.Limiter) *writerAdapter {
	return &writerAdapter{
		conn:       slot.conn,
		slot:       slot,
		limiter:    limiter,
		retryDelay: 50 * time.Millisecond,
		maxRetries: 20, // ~1s total budget at the original's 50ms cadence
	}
}

func (w *writerAdapter) FragOffset(dir Direction) *uint32 {
	return &w.fragOffsets[int(dir)%len(w.fragOffsets)]
}

func (w *writerAdapter) NextSequence(dir Direction) uint16 {
	return w.slot.nextSequence()
}

func (w *writerAdapter) PreWrite(dir Direction) error {
	buf := make([]byte, protocol.PreambleSize)
	protocol.EncodePreamble(buf, dir)
	return w.Write(buf)
}

func (w *writerAdapter) Write(buf []byte) error {
	remaining := buf
	retries := 0
	for len(remaining) > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.retryDelay))
		n, err := w.conn.Write(remaining)
		remaining = remaining[n:]
		if err == nil {
			continue
		}
		if !isTimeout(err) {
			return err
		}
		// Would-block equivalent: wait and retry, bounded.
		retries++
		if retries > w.maxRetries {
			return ErrWriteFailed
		}
		if w.limiter != nil {
			if werr := w.limiter.WaitN(context.Background(), 1); werr != nil {
				return ErrWriteFailed
			}
		} else {
			time.Sleep(w.retryDelay)
		}
	}
	_ = w.conn.SetWriteDeadline(time.Time{})
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, io.ErrShortWrite)
}

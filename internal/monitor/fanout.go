// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package monitor

import (
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// WriterFactory builds the PacketWriter for one client slot. The Service
// owns one limiter per client (not global), so one slow observer cannot
// starve another's retry budget.
type WriterFactory func(slot *clientSlot) PacketWriter

// fanoutDispatcher implements the two AI biz layer hooks: on_recv
// (cloud→device, DS) and on_send (device→cloud, US). Both funnel into the
// same per-client iteration, differing only in the direction tag attached
// to the outgoing copies.
type fanoutDispatcher struct {
	table    *ClientTable
	encoder  BizEncoder
	newWrite WriterFactory
	logger   *slog.Logger
}

func newFanoutDispatcher(table *ClientTable, encoder BizEncoder, newWrite WriterFactory, logger *slog.Logger) *fanoutDispatcher {
	return &fanoutDispatcher{table: table, encoder: encoder, newWrite: newWrite, logger: logger}
}

// OnBizRecv is registered with the AI biz layer as its on_recv hook: data
// arriving from the cloud, fanned out to observers tagged downstream. id
// is the wire channel number the biz layer reports the packet on, and is
// copied onto attr so the common fan-out path (and the encoder beyond it)
// can tell sub-channels like mic/reference/AEC apart.
func (d *fanoutDispatcher) OnBizRecv(id uint16, attr PacketAttr, head PacketStreamHead, data []byte) error {
	attr.ChannelID = id
	return d.dispatch(DirDownstream, attr, head, data)
}

// OnBizSend is registered as the on_send hook: data the device is sending
// to the cloud, fanned out to observers tagged upstream.
func (d *fanoutDispatcher) OnBizSend(id uint16, attr PacketAttr, head PacketStreamHead, data []byte) error {
	attr.ChannelID = id
	return d.dispatch(DirUpstream, attr, head, data)
}

func (d *fanoutDispatcher) dispatch(dir Direction, attr PacketAttr, head PacketStreamHead, data []byte) error {
	// Fragmentation is rejected before touching any client, matching the
	// original's up-front check.
	if head.Fragmented() {
		return newError(CodeUnsupported, "fanout.dispatch", ErrFragmentedPacket)
	}

	d.table.Range(func(slot *clientSlot) {
		if !slot.isSubscribed(attr.Type) {
			return
		}
		writer := d.newWrite(slot)
		if err := d.encoder.EncodeCustomPacket(writer, dir, attr, head, data); err != nil {
			d.logger.Warn("fan-out send failed for client",
				"client", slot.id, "channel", attr.Type, "err", err)
		}
	})
	return nil
}

// rateLimitedWriterFactory wraps newWriterAdapter with a fresh token
// bucket per client, used as the Service's default WriterFactory.
func rateLimitedWriterFactory(limiters *clientLimiters) WriterFactory {
	return func(slot *clientSlot) PacketWriter {
		return newWriterAdapter(slot, limiters.get(slot.id))
	}
}

// clientLimiters hands out one rate.Limiter per client id, lazily, so the
// Writer Adapter's bounded retry backs off independently per observer.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[ConnID]*rate.Limiter
}

func newClientLimiters() *clientLimiters {
	return &clientLimiters{limiters: make(map[ConnID]*rate.Limiter)}
}

func (c *clientLimiters) get(id ConnID) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[id]
	if !ok {
		l = rate.NewLimiter(20, 1) // ~20 retries/sec ceiling, matching the 50ms retry cadence
		c.limiters[id] = l
	}
	return l
}

func (c *clientLimiters) forget(id ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.limiters, id)
}

// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package monitor

import (
	"log/slog"
	"time"

	"github.com/tuyaopen/ai-monitor/internal/protocol"
)

// inboundHandler dispatches complete decoded inner packet bodies arriving
// from observer clients. It is constructed once per Service and shared by
// every client's read path.
type inboundHandler struct {
	logger  *slog.Logger
	logSink LogSink
	now     func() time.Time
}

func newInboundHandler(logger *slog.Logger, logSink LogSink, now func() time.Time) *inboundHandler {
	if now == nil {
		now = time.Now
	}
	return &inboundHandler{logger: logger, logSink: logSink, now: now}
}

// Handle parses body and reacts to it, sending any required response
// through writer. Parse failures are logged and swallowed — the client
// stays connected rather than being dropped over a malformed frame.
func (h *inboundHandler) Handle(slot *clientSlot, body []byte, writer PacketWriter) error {
	head, rest, err := protocol.ParsePayloadHead(body)
	if err != nil {
		h.logger.Warn("dropping malformed inbound packet", "err", err)
		return newError(CodeMalformed, "inbound.parse_head", err)
	}

	switch head.Type {
	case protocol.MsgTypePing:
		return h.handlePing(slot, rest, writer)
	case protocol.MsgTypeEvent:
		return h.handleEvent(slot, rest, writer)
	default:
		h.logger.Warn("unsupported inbound packet type", "type", head.Type)
		return newError(CodeUnsupported, "inbound.dispatch", nil)
	}
}

func (h *inboundHandler) handlePing(slot *clientSlot, attrBlock []byte, writer PacketWriter) error {
	ping, err := protocol.ParsePing(attrBlock)
	if err != nil {
		h.logger.Warn("malformed ping", "err", err)
		return newError(CodeMalformed, "inbound.ping", err)
	}

	slot.lastPingTime = h.now()
	serverTS := uint64(slot.lastPingTime.UnixMilli())

	pong := protocol.EncodePong(ping.ClientTS, serverTS)
	return sendPacket(writer, DirAck, pong)
}

func (h *inboundHandler) handleEvent(slot *clientSlot, body []byte, writer PacketWriter) error {
	ev, err := protocol.ParseEvent(body)
	if err != nil {
		h.logger.Warn("malformed event", "err", err)
		return newError(CodeMalformed, "inbound.event", err)
	}

	handlerErr := h.dispatchEvent(slot, ev)

	ack := protocol.EncodeEventAck(ev.Attrs, ev.EventType, ResultCode(handlerErr))
	if err := sendPacket(writer, DirAck, ack); err != nil {
		h.logger.Warn("failed to send event ack", "err", err)
		return err
	}
	return handlerErr
}

func (h *inboundHandler) dispatchEvent(slot *clientSlot, ev protocol.ParsedEvent) error {
	switch ev.EventType {
	case protocol.EventMonitorFilter:
		return h.handleMonitorFilter(slot, ev)
	case protocol.EventMonitorAlgCtrl:
		return newError(CodeUnsupported, "inbound.alg_ctrl", nil)
	default:
		return newError(CodeUnsupported, "inbound.unknown_event", nil)
	}
}

// handleMonitorFilter applies a subscription bitmap update. The bitmap is
// carried as an 8-byte big-endian value in the event's user-data attribute;
// bit i maps to ChannelType(i), except CUSTOM_LOG, which is bit
// customLogWireBit (60). CUSTOM_LOG additionally registers or
// unregisters this client with the log sink, which keeps the facility
// wired for as long as any client still subscribes to it.
func (h *inboundHandler) handleMonitorFilter(slot *clientSlot, ev protocol.ParsedEvent) error {
	if len(ev.Attrs.UserData) != 8 {
		return newError(CodeInvalidArgument, "inbound.monitor_filter", nil)
	}

	var bitmap uint64
	for _, b := range ev.Attrs.UserData {
		bitmap = bitmap<<8 | uint64(b)
	}

	wasLogSubscribed := slot.isSubscribed(ChannelCustomLog)
	slot.applyFilterBitmap(bitmap)
	nowLogSubscribed := slot.isSubscribed(ChannelCustomLog)

	if h.logSink == nil {
		return nil
	}
	if nowLogSubscribed && !wasLogSubscribed {
		if err := h.logSink.AddObserver(uint32(slot.id), nil); err != nil {
			h.logger.Warn("failed to register log sink observer", "err", err)
		}
	} else if !nowLogSubscribed && wasLogSubscribed {
		h.logSink.RemoveObserver(uint32(slot.id))
	}
	return nil
}

func sendPacket(writer PacketWriter, dir Direction, body []byte) error {
	*writer.FragOffset(dir) = 0
	writer.NextSequence(dir)
	if err := writer.PreWrite(dir); err != nil {
		return err
	}
	return writer.Write(body)
}

// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

// Package monitor implements the AI Monitor Service: a TCP server that
// multiplexes the AI session's binary protocol traffic between the running
// AI biz layer and a handful of local-network observer/control clients.
package monitor

import (
	"context"
	"net"
)

// ConnID is an opaque handle identifying one accepted observer connection.
// It replaces the raw file descriptor the original firmware keyed its
// client table on; callers never need its representation.
type ConnID uint32

// SocketLoop is the external socket-dispatcher this service registers
// itself with. It owns the poll/select loop; the service only supplies
// callbacks and never drives I/O readiness itself.
//
// RegisterListener and RegisterConn mirror the two registration shapes the
// original socket loop exposes: a listening descriptor that only ever
// fires onReadable (accept) or onError (fatal), and a client descriptor
// that fires onReadable (data available) or onError (disconnect).
type SocketLoop interface {
	RegisterListener(ln net.Listener, onReadable func(), onError func(err error)) error
	RegisterConn(id ConnID, conn net.Conn, onReadable func(), onError func(err error)) error
	Unregister(id ConnID)
	UnregisterListener()
}

// NetworkManager resolves the local address the listening socket binds to.
// On the original firmware this queries the device's active network
// interface; here it is a seam for tests to supply a fixed loopback address.
type NetworkManager interface {
	LocalIP(ctx context.Context) (string, error)
}

// ActivationState reports whether the device has completed IoT activation.
// The Lifecycle Controller polls this on its periodic timer and only opens
// the listening socket once it returns true, exactly as the original
// firmware gates creation on tuya_iot_activated().
type ActivationState interface {
	IsActivated() bool
}

// LogSink lets the Inbound Handler register and unregister a per-client log
// forwarder when a client subscribes to/unsubscribes from CUSTOM_LOG. A
// sink may be registered by more than one client; the implementation is
// responsible for reference counting so the underlying facility stays wired
// while at least one observer still wants it.
type LogSink interface {
	AddObserver(id uint32, w func(line string)) error
	RemoveObserver(id uint32)
}

// BizEncoder is the AI biz/protocol encoder this service hands off to for
// everything it does not implement itself: encoding a fan-out packet body
// onto the wire for a given client and direction. Its own packet ABI is out
// of scope here — this service only calls it.
type BizEncoder interface {
	EncodeCustomPacket(w PacketWriter, dir Direction, attr PacketAttr, head PacketStreamHead, data []byte) error
}

// FanoutHook is the shape of the two callbacks the AI biz layer invokes on
// every packet it receives from, or sends to, the cloud. id is the wire
// channel number the biz layer is reporting for (e.g. ChanUSMic vs
// ChanUSAudio), not a client connection handle.
type FanoutHook func(id uint16, attr PacketAttr, head PacketStreamHead, data []byte) error

// BizRegistrar lets the Lifecycle Controller hand its fan-out hooks to the
// AI biz layer at Start, mirroring tuya_ai_biz_monitor_register.
type BizRegistrar interface {
	RegisterHooks(onRecv, onSend FanoutHook)
}

// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package transport

import (
	"encoding/binary"

	"github.com/tuyaopen/ai-monitor/internal/monitor"
	"github.com/tuyaopen/ai-monitor/internal/protocol"
)

// SimpleEncoder is a minimal BizEncoder: it wraps a fan-out payload in the
// inner PayloadHead this service itself understands and writes it through
// the packet writer's four stages. The AI biz/protocol encoder's actual
// wire format is out of scope here — this stands in for it so the demo
// binary and scenario tests have something concrete to drive.
//
// It prefixes the data with attr.ChannelID (u16, big-endian) ahead of
// data, right after PayloadHead, so an observer can tell channels that
// share a MsgType — mic, reference, and AEC are all MsgTypeAudio — apart.
type SimpleEncoder struct{}

func (SimpleEncoder) EncodeCustomPacket(w monitor.PacketWriter, dir monitor.Direction, attr monitor.PacketAttr, head monitor.PacketStreamHead, data []byte) error {
	msgType := msgTypeForChannel(attr.Type)
	body := protocol.PayloadHead{Type: msgType, HasAttrs: false}.Encode()
	body = binary.BigEndian.AppendUint16(body, attr.ChannelID)
	body = append(body, data...)

	*w.FragOffset(dir) = 0
	w.NextSequence(dir)
	if err := w.PreWrite(dir); err != nil {
		return err
	}
	return w.Write(body)
}

func msgTypeForChannel(ch monitor.ChannelType) protocol.MsgType {
	switch ch {
	case monitor.ChannelVideo:
		return protocol.MsgTypeVideo
	case monitor.ChannelAudio:
		return protocol.MsgTypeAudio
	case monitor.ChannelImage:
		return protocol.MsgTypeImage
	case monitor.ChannelFile:
		return protocol.MsgTypeFile
	case monitor.ChannelText:
		return protocol.MsgTypeText
	case monitor.ChannelEvent:
		return protocol.MsgTypeEvent
	case monitor.ChannelCustomLog:
		return protocol.MsgTypeCustomLog
	default:
		return protocol.MsgTypeError
	}
}

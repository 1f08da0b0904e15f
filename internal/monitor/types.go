// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package monitor

import "github.com/tuyaopen/ai-monitor/internal/protocol"

// Direction re-exports the wire frame direction so callers outside this
// package never need to import internal/protocol directly for it.
type Direction = protocol.Direction

const (
	DirUpstream   = protocol.DirectionUpstream
	DirDownstream = protocol.DirectionDownstream
	DirAck        = protocol.DirectionAck
)

// ChannelType identifies the category of data a fan-out packet carries. The
// Client Table's subscription bitmap is indexed by this type, and observers
// select which categories they receive via MONITOR_FILTER.
type ChannelType uint8

const (
	ChannelVideo ChannelType = iota
	ChannelAudio
	ChannelImage
	ChannelFile
	ChannelText
	ChannelEvent
	ChannelCustomLog
	channelTypeCount
)

// customLogWireBit is the MONITOR_FILTER subscription bitmap bit for
// CUSTOM_LOG, pinned to its wire packet-type value (60) rather than its
// internal ChannelType index. VIDEO/AUDIO/IMAGE/FILE/TEXT/EVENT keep their
// sequential internal indices as their bitmap bits too, since those are
// not pinned to a wire value.
const customLogWireBit = 60

func (c ChannelType) bit() uint64 {
	return 1 << uint(c)
}

// StreamFlag marks a fan-out packet's position within a logical stream of
// packets (a multi-chunk audio utterance, a streamed text response, …).
type StreamFlag uint8

const (
	StreamStart StreamFlag = 1 << iota
	StreamIng
	StreamEnd
)

// PacketAttr is the fan-out attribute header the AI biz layer and the
// Broadcast API both populate before handing a packet to the common
// fan-out path. It is the Go rendition of the original's opaque
// "ai_attribute_t": this service reads type/stream_flag/total_len/len to
// make fan-out decisions but never interprets the payload itself.
//
// ChannelID is the wire channel number (the TY_AI_MONITOR_US_MIC-style
// constants from broadcast.go, or the id an on_recv/on_send hook call
// supplies), distinct from Type: several channel IDs (mic, reference,
// AEC) share the same Type (audio) but must still reach the observer as
// distinguishable frames.
type PacketAttr struct {
	Type          ChannelType
	ChannelID     uint16
	StreamFlag    StreamFlag
	SessionIDList []string
	CodecType     uint8
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
}

// PacketStreamHead carries the fragmentation accounting the Fan-out
// Dispatcher checks before ever touching the client table: a packet whose
// TotalLen is set and disagrees with Len is a fragment, and fragment
// reassembly is out of scope here — such packets are rejected outright.
type PacketStreamHead struct {
	Len      uint32
	TotalLen uint32
}

// Fragmented reports whether head describes one fragment of a larger
// logical packet rather than a complete one.
func (h PacketStreamHead) Fragmented() bool {
	return h.TotalLen > 0 && h.TotalLen != h.Len
}

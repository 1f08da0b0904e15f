// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package protocol

import "encoding/binary"

// MsgType is the inner packet's message type, carried in PayloadHead.Type.
// Only PING and EVENT are handled by this service; every other type is
// fan-out payload the Inbound Handler never inspects.
type MsgType uint8

const (
	MsgTypePing      MsgType = 4
	MsgTypePong      MsgType = 5
	MsgTypeVideo     MsgType = 30
	MsgTypeAudio     MsgType = 31
	MsgTypeImage     MsgType = 32
	MsgTypeFile      MsgType = 33
	MsgTypeText      MsgType = 34
	MsgTypeEvent     MsgType = 35
	MsgTypeCustomLog MsgType = 60
	MsgTypeError     MsgType = 0xFF
)

// PayloadHeadSize is the wire size of PayloadHead: type(1) + attr_flag(1).
const PayloadHeadSize = 2

// PayloadHead is the fixed header of every inner packet body this service
// parses or synthesizes itself (as opposed to the opaque fan-out payloads
// it merely relays).
type PayloadHead struct {
	Type     MsgType
	HasAttrs bool
}

// ParsePayloadHead reads PayloadHead from the front of body and returns the
// remaining bytes (the attribute block, when HasAttrs is true).
func ParsePayloadHead(body []byte) (PayloadHead, []byte, error) {
	if len(body) < PayloadHeadSize {
		return PayloadHead{}, nil, ErrTruncatedFrame
	}
	head := PayloadHead{
		Type:     MsgType(body[0]),
		HasAttrs: body[1] != 0,
	}
	return head, body[PayloadHeadSize:], nil
}

// Encode renders h as its 2-byte wire form.
func (h PayloadHead) Encode() []byte {
	return h.encode()
}

func (h PayloadHead) encode() []byte {
	b := make([]byte, PayloadHeadSize)
	b[0] = byte(h.Type)
	if h.HasAttrs {
		b[1] = 1
	}
	return b
}

// AttrTag identifies one TLV entry in an attribute block.
type AttrTag uint8

const (
	AttrClientTS  AttrTag = 0x01
	AttrServerTS  AttrTag = 0x02
	AttrSessionID AttrTag = 0x03
	AttrEventID   AttrTag = 0x04
	AttrUserData  AttrTag = 0x05
)

// attrHeaderSize is tag(1) + length(2, big-endian).
const attrHeaderSize = 3

// ParseAttributes reads the attribute block at the front of buf: a 4-byte
// big-endian block length followed by that many bytes of tag/length/value
// TLV entries, and returns the decoded attributes.
//
// The loop bound is deliberately "while position is within the attribute
// block" (position < blockLen, both measured from the start of the block
// body) rather than comparing a post-advance absolute offset against the
// block length — the latter is a known bug in the reference implementation
// this service's wire format is modeled on, and produces either an infinite
// skip or a spurious truncation.
func ParseAttributes(buf []byte) (map[AttrTag][]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrNoAttributes
	}
	blockLen := binary.BigEndian.Uint32(buf[0:4])
	if uint64(blockLen) > uint64(len(buf)-4) {
		return nil, 0, ErrAttrLenOverflow
	}
	block := buf[4 : 4+blockLen]

	attrs := make(map[AttrTag][]byte)
	pos := 0
	for pos < len(block) {
		if len(block)-pos < attrHeaderSize {
			return nil, 0, ErrAttrLenOverflow
		}
		tag := AttrTag(block[pos])
		length := binary.BigEndian.Uint16(block[pos+1 : pos+3])
		pos += attrHeaderSize
		if uint64(length) > uint64(len(block)-pos) {
			return nil, 0, ErrAttrLenOverflow
		}
		attrs[tag] = block[pos : pos+int(length)]
		pos += int(length)
	}
	return attrs, 4 + int(blockLen), nil
}

func encodeAttributes(order []AttrTag, values map[AttrTag][]byte) []byte {
	block := make([]byte, 0, 32)
	for _, tag := range order {
		v := values[tag]
		entry := make([]byte, attrHeaderSize+len(v))
		entry[0] = byte(tag)
		binary.BigEndian.PutUint16(entry[1:3], uint16(len(v)))
		copy(entry[3:], v)
		block = append(block, entry...)
	}
	out := make([]byte, 4+len(block))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(block)))
	copy(out[4:], block)
	return out
}

// PingAttrs holds the attributes carried on an inbound PING.
type PingAttrs struct {
	ClientTS uint64
}

// ParsePing parses a PING packet body (PayloadHead already consumed by the
// caller, attrs is the remainder). A PING with no attribute block is
// malformed — the client timestamp is required.
func ParsePing(attrs []byte) (PingAttrs, error) {
	parsed, _, err := ParseAttributes(attrs)
	if err != nil {
		return PingAttrs{}, err
	}
	raw, ok := parsed[AttrClientTS]
	if !ok || len(raw) < 8 {
		return PingAttrs{}, ErrNoAttributes
	}
	return PingAttrs{ClientTS: binary.BigEndian.Uint64(raw)}, nil
}

// EncodePong builds a complete PONG packet body echoing clientTS alongside
// serverTS, both as 64-bit big-endian attributes.
func EncodePong(clientTS, serverTS uint64) []byte {
	clientBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(clientBuf, clientTS)
	serverBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(serverBuf, serverTS)

	attrBlock := encodeAttributes(
		[]AttrTag{AttrClientTS, AttrServerTS},
		map[AttrTag][]byte{AttrClientTS: clientBuf, AttrServerTS: serverBuf},
	)

	head := PayloadHead{Type: MsgTypePong, HasAttrs: true}
	return append(head.encode(), attrBlock...)
}

// EventType is the application-level event carried in an EVENT packet's
// payload, independent of the wrapper's MsgType.
type EventType uint16

const (
	EventMonitorFilter  EventType = 0xF000
	EventMonitorAlgCtrl EventType = 0xF001
	EventMonitorInvalid EventType = 0xFFFF
)

// EventAttrs holds the attributes carried on an inbound/outbound EVENT.
type EventAttrs struct {
	SessionID []byte
	EventID   uint32
	UserData  []byte
}

// ParsedEvent is a fully decoded EVENT packet: its attributes plus the
// event type and trailing payload from the packet body.
type ParsedEvent struct {
	Attrs     EventAttrs
	EventType EventType
	Payload   []byte
}

// ParseEvent parses an EVENT packet body (PayloadHead already consumed).
func ParseEvent(body []byte) (ParsedEvent, error) {
	parsed, n, err := ParseAttributes(body)
	if err != nil {
		return ParsedEvent{}, err
	}
	rest := body[n:]
	if len(rest) < 2 {
		return ParsedEvent{}, ErrTruncatedFrame
	}

	attrs := EventAttrs{
		SessionID: parsed[AttrSessionID],
		UserData:  parsed[AttrUserData],
	}
	if raw, ok := parsed[AttrEventID]; ok && len(raw) >= 4 {
		attrs.EventID = binary.BigEndian.Uint32(raw)
	}

	return ParsedEvent{
		Attrs:     attrs,
		EventType: EventType(binary.BigEndian.Uint16(rest[0:2])),
		Payload:   rest[2:],
	}, nil
}

// EncodeEventAck builds the ACK EVENT packet body this service always sends
// in response to an inbound EVENT: same session id/event id/user data
// attributes, plus a {event_type, length=4, result_code} response payload.
func EncodeEventAck(attrs EventAttrs, eventType EventType, resultCode uint32) []byte {
	eventIDBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(eventIDBuf, attrs.EventID)

	attrBlock := encodeAttributes(
		[]AttrTag{AttrSessionID, AttrEventID, AttrUserData},
		map[AttrTag][]byte{
			AttrSessionID: attrs.SessionID,
			AttrEventID:   eventIDBuf,
			AttrUserData:  attrs.UserData,
		},
	)

	resp := make([]byte, 8)
	binary.BigEndian.PutUint16(resp[0:2], uint16(eventType))
	binary.BigEndian.PutUint16(resp[2:4], 4)
	binary.BigEndian.PutUint32(resp[4:8], resultCode)

	head := PayloadHead{Type: MsgTypeEvent, HasAttrs: true}
	out := head.encode()
	out = append(out, attrBlock...)
	out = append(out, resp...)
	return out
}

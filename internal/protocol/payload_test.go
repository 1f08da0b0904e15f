// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package protocol

import "testing"

func TestParsePingRoundTrip(t *testing.T) {
	attrBlock := encodeAttributes([]AttrTag{AttrClientTS}, map[AttrTag][]byte{
		AttrClientTS: encodeUint64(1_700_000_000_123),
	})

	ping, err := ParsePing(attrBlock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ping.ClientTS != 1_700_000_000_123 {
		t.Errorf("ClientTS = %d, want 1700000000123", ping.ClientTS)
	}
}

func TestParsePingRequiresAttributes(t *testing.T) {
	if _, err := ParsePing(nil); err == nil {
		t.Fatal("expected an error when no attribute block is present")
	}
}

func TestEncodePongEchoesClientTS(t *testing.T) {
	body := EncodePong(42, 99)

	head, rest, err := ParsePayloadHead(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.Type != MsgTypePong || !head.HasAttrs {
		t.Fatalf("head = %+v, want Pong with attrs", head)
	}

	attrs, _, err := ParseAttributes(rest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := encodeUint64ToUint(attrs[AttrClientTS]); got != 42 {
		t.Errorf("client ts = %d, want 42", got)
	}
	if got := encodeUint64ToUint(attrs[AttrServerTS]); got != 99 {
		t.Errorf("server ts = %d, want 99", got)
	}
}

func TestParseEventAndAck(t *testing.T) {
	attrBlock := encodeAttributes(
		[]AttrTag{AttrSessionID, AttrEventID, AttrUserData},
		map[AttrTag][]byte{
			AttrSessionID: []byte("session-1"),
			AttrEventID:   encodeUint32(7),
			AttrUserData:  encodeUint64(0xFF00000000000001), // bitmap: VIDEO|CUSTOM_LOG-ish bits
		},
	)
	body := append(attrBlock, encodeUint16(uint16(EventMonitorFilter))...)

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ev.Attrs.SessionID) != "session-1" {
		t.Errorf("session id = %q", ev.Attrs.SessionID)
	}
	if ev.Attrs.EventID != 7 {
		t.Errorf("event id = %d, want 7", ev.Attrs.EventID)
	}
	if ev.EventType != EventMonitorFilter {
		t.Errorf("event type = %x, want MONITOR_FILTER", ev.EventType)
	}

	ack := EncodeEventAck(ev.Attrs, ev.EventType, 0)
	head, rest, err := ParsePayloadHead(ack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head.Type != MsgTypeEvent {
		t.Fatalf("ack type = %v, want Event", head.Type)
	}
	ackAttrs, n, err := ParseAttributes(rest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ackAttrs[AttrSessionID]) != "session-1" {
		t.Errorf("ack session id = %q", ackAttrs[AttrSessionID])
	}
	resp := rest[n:]
	if len(resp) != 8 {
		t.Fatalf("ack response payload len = %d, want 8", len(resp))
	}
}

func TestParseAttributes_LoopBoundBugFix(t *testing.T) {
	// Regression test for the resolved PING-parser bug: the loop must walk
	// positions within the attribute block body, not compare an
	// already-advanced absolute offset against the block length. A block
	// with several small attributes packed back-to-back must fully parse,
	// not stop after (or loop forever on) the first entry.
	block := encodeAttributes(
		[]AttrTag{AttrClientTS, AttrServerTS, AttrSessionID},
		map[AttrTag][]byte{
			AttrClientTS:  encodeUint64(1),
			AttrServerTS:  encodeUint64(2),
			AttrSessionID: []byte("abc"),
		},
	)

	attrs, consumed, err := ParseAttributes(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(block) {
		t.Fatalf("consumed = %d, want %d", consumed, len(block))
	}
	if len(attrs) != 3 {
		t.Fatalf("got %d attributes, want 3", len(attrs))
	}
	if string(attrs[AttrSessionID]) != "abc" {
		t.Errorf("session id = %q, want abc", attrs[AttrSessionID])
	}
}

func TestParseAttributes_OverflowRejected(t *testing.T) {
	// Declared block length longer than the bytes actually available.
	buf := []byte{0x00, 0x00, 0x00, 0x10, 0x01, 0x00, 0x01, 0xAA}
	if _, _, err := ParseAttributes(buf); err == nil {
		t.Fatal("expected an overflow error")
	}
}

// --- small test-local encoding helpers (mirroring the package's internal
// big-endian conventions, kept separate from production code) ---

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func encodeUint16(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

func encodeUint64ToUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package transport

import (
	"encoding/binary"
	"testing"

	"github.com/tuyaopen/ai-monitor/internal/monitor"
	"github.com/tuyaopen/ai-monitor/internal/protocol"
)

type fakeWriter struct {
	frag [3]uint32
	seq  uint16
	sent [][]byte
}

func (w *fakeWriter) FragOffset(dir monitor.Direction) *uint32 { return &w.frag[int(dir)%len(w.frag)] }
func (w *fakeWriter) NextSequence(dir monitor.Direction) uint16 {
	w.seq++
	return w.seq
}
func (w *fakeWriter) PreWrite(dir monitor.Direction) error { return nil }
func (w *fakeWriter) Write(buf []byte) error {
	w.sent = append(w.sent, append([]byte(nil), buf...))
	return nil
}

func TestSimpleEncoder_EncodesHeadChannelIDAndData(t *testing.T) {
	var enc SimpleEncoder
	w := &fakeWriter{}

	attr := monitor.PacketAttr{Type: monitor.ChannelText, ChannelID: monitor.ChanUSText}
	err := enc.EncodeCustomPacket(w, monitor.DirAck, attr, monitor.PacketStreamHead{Len: 5}, []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.sent) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(w.sent))
	}

	head, rest, err := protocol.ParsePayloadHead(w.sent[0])
	if err != nil {
		t.Fatalf("unexpected error parsing head: %v", err)
	}
	if head.Type != protocol.MsgTypeText {
		t.Errorf("msg type = %v, want MsgTypeText", head.Type)
	}
	if len(rest) < 2 {
		t.Fatalf("expected at least a channel id prefix, got %d bytes", len(rest))
	}
	if gotID := binary.BigEndian.Uint16(rest[0:2]); gotID != monitor.ChanUSText {
		t.Errorf("channel id = %d, want %d", gotID, monitor.ChanUSText)
	}
	if string(rest[2:]) != "hello" {
		t.Errorf("payload = %q, want %q", rest[2:], "hello")
	}
}

func TestSimpleEncoder_DistinguishesAudioSubChannelsSharingAMsgType(t *testing.T) {
	var enc SimpleEncoder

	cases := []struct {
		name string
		id   uint16
	}{
		{"plain", monitor.ChanUSAudio},
		{"mic", monitor.ChanUSMic},
		{"reference", monitor.ChanUSReference},
		{"aec", monitor.ChanUSAEC},
	}

	frames := make(map[string][]byte, len(cases))
	for _, c := range cases {
		w := &fakeWriter{}
		attr := monitor.PacketAttr{Type: monitor.ChannelAudio, ChannelID: c.id}
		if err := enc.EncodeCustomPacket(w, monitor.DirAck, attr, monitor.PacketStreamHead{Len: 4}, []byte("data")); err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		frames[c.name] = w.sent[0]
	}

	seen := make(map[string]string)
	for _, c := range cases {
		key := string(frames[c.name])
		if other, dup := seen[key]; dup {
			t.Fatalf("%s and %s produced identical frames, expected distinguishable channel ids", c.name, other)
		}
		seen[key] = c.name
	}
}

func TestMsgTypeForChannel_UnknownChannelMapsToError(t *testing.T) {
	if got := msgTypeForChannel(monitor.ChannelType(99)); got != protocol.MsgTypeError {
		t.Errorf("msg type for unknown channel = %v, want MsgTypeError", got)
	}
}

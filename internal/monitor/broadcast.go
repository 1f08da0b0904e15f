// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package monitor

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// Channel IDs identify a fan-out stream, mirroring the original firmware's
// TY_AI_MONITOR_* constants exactly so operators correlating against
// device logs see the same numbers. They populate PacketAttr.ChannelID:
// the Broadcast API uses the upstream/US values directly below; the
// downstream/DS values are supplied by the external AI biz layer as the
// on_recv hook's own id argument (see fanout.go's OnBizRecv), since a
// downstream packet's channel is the cloud's to report, not this
// service's to choose.
const (
	ChanUSAudio     = 1
	ChanDSAudio     = 2
	ChanUSVideo     = 3
	ChanDSText      = 4
	ChanUSText      = 5
	ChanUSImage     = 7
	ChanUSLog       = 0x8001
	ChanUSMic       = 0x8003
	ChanUSReference = 0x8005
	ChanUSAEC       = 0x8007
)

// compressThreshold gates optional zstd compression on file/image
// broadcasts: small payloads aren't worth the round-trip cost, large ones
// are where it pays off.
const compressThreshold = 4096

// Broadcaster is the Broadcast API: synthesized {attr, head} packets
// pushed through the same fan-out path the AI biz hooks use, with
// direction fixed to ACK (service→observer) since these never originate
// from the AI session itself.
type Broadcaster struct {
	dispatch func(dir Direction, attr PacketAttr, head PacketStreamHead, data []byte) error
}

func newBroadcaster(dispatch func(Direction, PacketAttr, PacketStreamHead, []byte) error) *Broadcaster {
	return &Broadcaster{dispatch: dispatch}
}

func (b *Broadcaster) send(attr PacketAttr, data []byte) error {
	head := PacketStreamHead{Len: uint32(len(data))}
	return b.dispatch(DirAck, attr, head, data)
}

// BroadcastText fans text (or event/custom-log) data out as a single
// complete chunk (stream_flag START|END), empty session id list, matching
// the original's tuya_ai_monitor_broadcast_text.
func (b *Broadcaster) BroadcastText(data []byte) error {
	attr := PacketAttr{Type: ChannelText, ChannelID: ChanUSText, StreamFlag: StreamStart | StreamEnd}
	return b.send(attr, data)
}

// BroadcastLog fans a CUSTOM_LOG line out to subscribed observers, exactly
// as BroadcastText but tagged for the log channel's own subscription bit.
func (b *Broadcaster) BroadcastLog(line string) error {
	attr := PacketAttr{Type: ChannelCustomLog, ChannelID: ChanUSLog, StreamFlag: StreamStart | StreamEnd}
	return b.send(attr, []byte(line))
}

// broadcastAudio is the common audio path: Type is always ChannelAudio for
// subscription purposes, but channelID distinguishes which audio
// sub-channel the frame belongs to (plain audio, mic, reference, AEC), so
// callers downstream of the subscription check can still tell them apart.
func (b *Broadcaster) broadcastAudio(channelID uint16, codecType uint8, flag StreamFlag, data []byte) error {
	attr := PacketAttr{
		Type:          ChannelAudio,
		ChannelID:     channelID,
		StreamFlag:    flag,
		CodecType:     codecType,
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
	return b.send(attr, data)
}

// BroadcastAudio fans one chunk of 16kHz mono 16-bit PCM out on the plain
// upstream audio channel, with the caller choosing the chunk's position in
// the overall utterance via flag (START/ING/END) and the codec identifier,
// per the original's audio channel parameters.
func (b *Broadcaster) BroadcastAudio(codecType uint8, flag StreamFlag, data []byte) error {
	return b.broadcastAudio(ChanUSAudio, codecType, flag, data)
}

// BroadcastMic selects the microphone audio sub-channel
// (TY_AI_MONITOR_US_MIC), for implementations that distinguish raw mic
// capture from the post-AEC audio path.
func (b *Broadcaster) BroadcastMic(codecType uint8, flag StreamFlag, data []byte) error {
	return b.broadcastAudio(ChanUSMic, codecType, flag, data)
}

// BroadcastReference selects the echo-reference audio sub-channel
// (TY_AI_MONITOR_US_REF).
func (b *Broadcaster) BroadcastReference(codecType uint8, flag StreamFlag, data []byte) error {
	return b.broadcastAudio(ChanUSReference, codecType, flag, data)
}

// BroadcastAEC selects the post-AEC audio sub-channel
// (TY_AI_MONITOR_US_AEC).
func (b *Broadcaster) BroadcastAEC(codecType uint8, flag StreamFlag, data []byte) error {
	return b.broadcastAudio(ChanUSAEC, codecType, flag, data)
}

// BroadcastFile fans a complete file payload out to subscribed observers.
// This channel is not present in the original's channel table — it
// supplements AI_MSG_TYPE_FILE_STREAM from the firmware's own message type
// enum, which the distilled channel table omitted. Payloads above
// compressThreshold are zstd-compressed; compressed is reported to callers
// so they can set the appropriate content framing on their own side.
func (b *Broadcaster) BroadcastFile(data []byte) (compressed bool, err error) {
	return b.broadcastCompressible(ChannelFile, data)
}

// BroadcastImage fans a complete image payload out, with the same
// compression behavior as BroadcastFile. Supplements
// AI_MSG_TYPE_IMAGE_STREAM, also dropped from the distilled channel table.
func (b *Broadcaster) BroadcastImage(data []byte) (compressed bool, err error) {
	return b.broadcastCompressible(ChannelImage, data)
}

func (b *Broadcaster) broadcastCompressible(ch ChannelType, data []byte) (bool, error) {
	payload := data
	compressed := false
	if len(data) > compressThreshold {
		var buf bytes.Buffer
		enc, encErr := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if encErr == nil {
			if _, werr := enc.Write(data); werr == nil {
				if cerr := enc.Close(); cerr == nil {
					payload = buf.Bytes()
					compressed = true
				}
			}
		}
	}
	// No ChannelID: file/image have no wire channel number in the original's
	// channel table (see the doc comments on BroadcastFile/BroadcastImage).
	attr := PacketAttr{Type: ch, StreamFlag: StreamStart | StreamEnd}
	return compressed, b.send(attr, payload)
}

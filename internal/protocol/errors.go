// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

// Package protocol implements the wire format of the AI Monitor's observer
// channel: the wrapper frame around cloud-protocol packets, and the inner
// ping/event payloads this service parses and synthesizes itself.
package protocol

import "errors"

// Sentinel errors for the frame codec and payload parser. Callers should
// use errors.Is against these, not string matching.
var (
	ErrInvalidMagic    = errors.New("protocol: invalid magic bytes")
	ErrInvalidVersion  = errors.New("protocol: unsupported packet version")
	ErrInvalidFrame    = errors.New("protocol: invalid frame fields")
	ErrTruncatedFrame  = errors.New("protocol: truncated frame")
	ErrFragmented      = errors.New("protocol: fragmented frames are not supported")
	ErrNoAttributes    = errors.New("protocol: expected attribute block, none present")
	ErrAttrLenOverflow = errors.New("protocol: attribute length exceeds block")
	ErrUnsupportedType = errors.New("protocol: unsupported packet type")
)

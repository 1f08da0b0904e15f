// Copyright (c) 2025 Tuya Inc. All Rights Reserved.

package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
)

// LocalNetwork is a NetworkManager that reports the first non-loopback
// IPv4 address found on the host's interfaces, standing in for the
// original firmware's netmgr_conn_get query against the active Wi-Fi/
// Ethernet interface.
type LocalNetwork struct{}

func (LocalNetwork) LocalIP(ctx context.Context) (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("listing interface addresses: %w", err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found")
}

// FixedActivation is an ActivationState that can be flipped at runtime,
// useful both for tests and for wiring to whatever IoT activation signal
// the deployment actually uses.
type FixedActivation struct {
	activated atomic.Bool
}

// NewFixedActivation builds an ActivationState starting in the given state.
func NewFixedActivation(activated bool) *FixedActivation {
	f := &FixedActivation{}
	f.activated.Store(activated)
	return f
}

func (f *FixedActivation) IsActivated() bool { return f.activated.Load() }

// SetActivated updates the reported activation state.
func (f *FixedActivation) SetActivated(v bool) { f.activated.Store(v) }

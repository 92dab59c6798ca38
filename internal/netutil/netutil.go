// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package netutil resolves the node's advertised network identity: interface
// name, MAC address, and the local address used to reach the registry.
package netutil

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// PlaceholderMAC is advertised when the interface MAC cannot be read.
const PlaceholderMAC = "00-00-00-00-00-00"

// InterfaceName returns the configured interface name, or the first
// non-loopback interface that is up, or "eth0" as a last resort.
func InterfaceName(configured string) string {
	if configured != "" {
		return configured
	}
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			if iface.Flags&net.FlagUp == 0 {
				continue
			}
			return iface.Name
		}
	}
	return "eth0"
}

// InterfaceMAC returns the interface's MAC formatted as six xx-xx octets,
// or the all-zero placeholder when unavailable.
func InterfaceMAC(name string) string {
	iface, err := net.InterfaceByName(name)
	if err != nil || len(iface.HardwareAddr) == 0 {
		return PlaceholderMAC
	}
	return FormatMAC(iface.HardwareAddr)
}

// FormatMAC renders a hardware address as lowercase dash-separated octets.
func FormatMAC(addr net.HardwareAddr) string {
	if len(addr) == 0 {
		return PlaceholderMAC
	}
	parts := make([]string, len(addr))
	for i, b := range addr {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, "-")
}

// AdvertiseHost picks the address this node publishes for its own APIs.
// With a static registry URL the kernel route toward it wins; otherwise the
// hostname is resolved best-effort, falling back to loopback.
func AdvertiseHost(staticRegistryURLs []string) string {
	if len(staticRegistryURLs) > 0 {
		return AdvertiseIP(staticRegistryURLs[0])
	}
	name, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(name)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}
	return addrs[0]
}

// AdvertiseIP determines the local address the kernel would use to reach the
// registry by opening a UDP socket toward it. Best-effort: falls back to
// loopback on any failure.
func AdvertiseIP(registryURL string) string {
	parsed, err := url.Parse(registryURL)
	if err != nil || parsed.Hostname() == "" {
		return "127.0.0.1"
	}
	port := parsed.Port()
	if port == "" {
		if parsed.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	conn, err := net.Dial("udp", net.JoinHostPort(parsed.Hostname(), port))
	if err != nil {
		return "127.0.0.1"
	}
	defer func() { _ = conn.Close() }()
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || local.IP == nil {
		return "127.0.0.1"
	}
	return local.IP.String()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import (
	"fmt"
	"net"
)

// ValidationError reports a staged patch that violates the parameter schema.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func validIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

func validateTransportParams(tp TransportParams) error {
	if !validIPv4(tp.DestinationIP) {
		return invalidf("destination_ip", "%q is not an IPv4 address", tp.DestinationIP)
	}
	if tp.DestinationPort < 1 || tp.DestinationPort > 65535 {
		return invalidf("destination_port", "%d outside [1, 65535]", tp.DestinationPort)
	}
	if tp.SourceIP != nil && !validIPv4(*tp.SourceIP) {
		return invalidf("source_ip", "%q is not an IPv4 address", *tp.SourceIP)
	}
	if tp.InterfaceIP != nil && !validIPv4(*tp.InterfaceIP) {
		return invalidf("interface_ip", "%q is not an IPv4 address", *tp.InterfaceIP)
	}
	if tp.TTL < 1 || tp.TTL > 255 {
		return invalidf("ttl", "%d outside [1, 255]", tp.TTL)
	}
	if tp.SampleRate < 8000 || tp.SampleRate > 192000 {
		return invalidf("sample_rate", "%d outside [8000, 192000]", tp.SampleRate)
	}
	if tp.EncodingName == "" {
		return invalidf("encoding_name", "must not be empty")
	}
	if tp.PayloadType < 0 || tp.PayloadType > 127 {
		return invalidf("payload_type", "%d outside [0, 127]", tp.PayloadType)
	}
	return nil
}

func validateStaged(s StagedState) error {
	if len(s.TransportParams) != 1 {
		return invalidf("transport_params", "exactly one interface leg expected, got %d", len(s.TransportParams))
	}
	for _, tp := range s.TransportParams {
		if err := validateTransportParams(tp); err != nil {
			return err
		}
	}
	if s.Activation.Mode == "" {
		return invalidf("activation.mode", "must not be empty")
	}
	if s.Audio.Volume < 0 || s.Audio.Volume > 100 {
		return invalidf("audio.volume", "%d outside [0, 100]", s.Audio.Volume)
	}
	return nil
}

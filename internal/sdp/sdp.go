// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sdp renders the session description handed to the audio daemon.
package sdp

import (
	"fmt"
	"strings"
)

// Params is the transport parameter subset an SDP document is built from.
type Params struct {
	DestinationIP   string
	DestinationPort int
	TTL             int
	PayloadType     int
	EncodingName    string
	SampleRate      int
}

// Build renders a mono RTP audio session description. The output is
// deterministic: identical inputs produce byte-identical CRLF-terminated
// documents, including the trailing CRLF.
func Build(p Params, streamLabel string) string {
	lines := []string{
		"v=0",
		fmt.Sprintf("o=- 0 0 IN IP4 %s", p.DestinationIP),
		fmt.Sprintf("s=%s", streamLabel),
		"t=0 0",
		fmt.Sprintf("c=IN IP4 %s/%d", p.DestinationIP, p.TTL),
		fmt.Sprintf("m=audio %d RTP/AVP %d", p.DestinationPort, p.PayloadType),
		fmt.Sprintf("a=rtpmap:%d %s/%d/1", p.PayloadType, p.EncodingName, p.SampleRate),
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

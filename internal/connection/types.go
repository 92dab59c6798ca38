// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package connection implements the IS-05 receiver state model: the staged
// and active parameter stores and the atomic activation that composes the
// daemon, audio-loop, and mixer side effects.
package connection

// ModeActivateImmediate is the only activation mode the controller honors.
// Other modes parse but are rejected at activation time.
const ModeActivateImmediate = "activate_immediate"

// TransportParams describes one RTP interface leg. This node exposes a
// single leg.
type TransportParams struct {
	DestinationIP   string  `json:"destination_ip"`
	DestinationPort int     `json:"destination_port"`
	SourceIP        *string `json:"source_ip"`
	InterfaceIP     *string `json:"interface_ip"`
	TTL             int     `json:"ttl"`
	SampleRate      int     `json:"sample_rate"`
	EncodingName    string  `json:"encoding_name"`
	PayloadType     int     `json:"payload_type"`
}

// ActivationParams carries the requested activation mode.
type ActivationParams struct {
	Mode          string  `json:"mode"`
	RequestedTime *string `json:"requested_time"`
}

// AudioParams carries the playback volume and mute flags applied on
// activation.
type AudioParams struct {
	Volume int  `json:"volume"`
	Mute   bool `json:"mute"`
}

// StagedState is the full staged (or active) parameter set.
type StagedState struct {
	MasterEnable    bool              `json:"master_enable"`
	TransportParams []TransportParams `json:"transport_params"`
	Activation      ActivationParams  `json:"activation"`
	Audio           AudioParams       `json:"audio"`
}

// ReceiverState is the persisted receiver state: staged and active parameter
// sets plus the activation outcome.
type ReceiverState struct {
	Staged        StagedState `json:"staged"`
	Active        StagedState `json:"active"`
	LastActivated *string     `json:"last_activated"`
	SinkActive    bool        `json:"sink_active"`
}

// DefaultTransportParams returns the single-leg defaults.
func DefaultTransportParams() TransportParams {
	return TransportParams{
		DestinationIP:   "239.0.0.1",
		DestinationPort: 5004,
		TTL:             64,
		SampleRate:      48000,
		EncodingName:    "L24",
		PayloadType:     96,
	}
}

// DefaultStaged returns the staged defaults seeded with the configured
// default volume.
func DefaultStaged(defaultVolume int) StagedState {
	return StagedState{
		MasterEnable:    false,
		TransportParams: []TransportParams{DefaultTransportParams()},
		Activation:      ActivationParams{Mode: ModeActivateImmediate},
		Audio:           AudioParams{Volume: defaultVolume},
	}
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy of the staged state.
func (s StagedState) Clone() StagedState {
	out := s
	out.TransportParams = make([]TransportParams, len(s.TransportParams))
	for i, tp := range s.TransportParams {
		tp.SourceIP = cloneStringPtr(tp.SourceIP)
		tp.InterfaceIP = cloneStringPtr(tp.InterfaceIP)
		out.TransportParams[i] = tp
	}
	out.Activation.RequestedTime = cloneStringPtr(s.Activation.RequestedTime)
	return out
}

// Clone returns a deep copy of the receiver state.
func (r ReceiverState) Clone() ReceiverState {
	out := r
	out.Staged = r.Staged.Clone()
	out.Active = r.Active.Clone()
	out.LastActivated = cloneStringPtr(r.LastActivated)
	return out
}

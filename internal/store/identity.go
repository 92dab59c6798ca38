// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

// Identity holds the three persistent UUIDs this node presents to the
// control plane. Once allocated they never change across restarts.
type Identity struct {
	NodeID     string
	DeviceID   string
	ReceiverID string
}

// EnsureIdentity allocates (or loads) the Node, Device, and Receiver UUIDs.
func EnsureIdentity(s *Store) (Identity, error) {
	nodeID, err := s.GetOrCreateUUID("node_id")
	if err != nil {
		return Identity{}, err
	}
	deviceID, err := s.GetOrCreateUUID("device_id")
	if err != nil {
		return Identity{}, err
	}
	receiverID, err := s.GetOrCreateUUID("receiver_id")
	if err != nil {
		return Identity{}, err
	}
	return Identity{NodeID: nodeID, DeviceID: deviceID, ReceiverID: receiverID}, nil
}

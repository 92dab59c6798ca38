// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry implements the IS-04 side of the node: resource
// construction, registry discovery, and the registration/heartbeat worker.
package registry

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/config"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

// PlaceholderGMID is advertised while no valid grandmaster id is known.
const PlaceholderGMID = "00-00-00-00-00-00-00-00"

var gmidPattern = regexp.MustCompile(`^([0-9a-f]{2}-){7}[0-9a-f]{2}$`)

// TAIVersion renders a resource version string in the seconds:nanoseconds
// form required by the registry schema.
func TAIVersion(t time.Time) string {
	return fmt.Sprintf("%d:%d", t.Unix(), t.Nanosecond())
}

// Clock is the node clock object projected from the daemon's PTP status.
type Clock struct {
	Name      string `json:"name"`
	RefType   string `json:"ref_type"`
	Traceable bool   `json:"traceable"`
	Version   string `json:"version"`
	GMID      string `json:"gmid"`
	Locked    bool   `json:"locked"`
}

// CoerceGMID normalizes a PTP grandmaster id to eight dash-separated hex
// octets, substituting the all-zero placeholder for anything else.
func CoerceGMID(v any) string {
	s, ok := v.(string)
	if !ok {
		return PlaceholderGMID
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if gmidPattern.MatchString(s) {
		return s
	}
	return PlaceholderGMID
}

// ClockFromPTP projects a daemon PTP status payload into the clk0 object.
// A nil payload yields an unlocked clock with the placeholder grandmaster.
func ClockFromPTP(ptp map[string]any) Clock {
	locked := false
	var gmid any
	if ptp != nil {
		locked = ptp["status"] == "locked"
		gmid = ptp["gmid"]
	}
	return Clock{
		Name:      "clk0",
		RefType:   "ptp",
		Traceable: locked,
		Version:   "IEEE1588-2008",
		GMID:      CoerceGMID(gmid),
		Locked:    locked,
	}
}

// Endpoint identifies a discovered registration API.
type Endpoint struct {
	URL      string
	Priority int
}

// Control is one entry of a Device's controls list.
type Control struct {
	Href          string `json:"href"`
	Type          string `json:"type"`
	Authorization bool   `json:"authorization"`
}

// APIEndpoint is one entry of the Node's api.endpoints list.
type APIEndpoint struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Protocol      string `json:"protocol"`
	Authorization bool   `json:"authorization"`
}

// NodeAPI is the Node's api object.
type NodeAPI struct {
	Versions  []string      `json:"versions"`
	Endpoints []APIEndpoint `json:"endpoints"`
}

// Interface is one entry of the Node's interfaces list.
type Interface struct {
	Name      string  `json:"name"`
	ChassisID *string `json:"chassis_id"`
	PortID    string  `json:"port_id"`
}

// Node is the IS-04 Node resource.
type Node struct {
	ID          string              `json:"id"`
	Version     string              `json:"version"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Tags        map[string][]string `json:"tags"`
	Href        string              `json:"href"`
	API         NodeAPI             `json:"api"`
	Services    []any               `json:"services"`
	Clocks      []Clock             `json:"clocks"`
	Interfaces  []Interface         `json:"interfaces"`
	Hostname    string              `json:"hostname"`
}

// Device is the IS-04 Device resource.
type Device struct {
	ID          string              `json:"id"`
	Version     string              `json:"version"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Type        string              `json:"type"`
	NodeID      string              `json:"node_id"`
	Controls    []Control           `json:"controls"`
	Receivers   []string            `json:"receivers"`
	Senders     []string            `json:"senders"`
	Tags        map[string][]string `json:"tags"`
}

// ReceiverCaps is the Receiver capability object.
type ReceiverCaps struct {
	MediaTypes []string `json:"media_types"`
}

// Subscription is the Receiver subscription object. SenderID stays null:
// this node does not track IS-04 sender subscriptions.
type Subscription struct {
	SenderID *string `json:"sender_id"`
	Active   bool    `json:"active"`
}

// Receiver is the IS-04 Receiver resource.
type Receiver struct {
	ID                string              `json:"id"`
	Version           string              `json:"version"`
	Label             string              `json:"label"`
	Description       string              `json:"description"`
	Format            string              `json:"format"`
	Caps              ReceiverCaps        `json:"caps"`
	Transport         string              `json:"transport"`
	DeviceID          string              `json:"device_id"`
	Subscription      Subscription        `json:"subscription"`
	InterfaceBindings []string            `json:"interface_bindings"`
	Tags              map[string][]string `json:"tags"`
}

// Advertise is the host/port this node publishes for its own APIs.
type Advertise struct {
	Host string
	Port int
}

// BuildNode constructs the Node resource.
func BuildNode(cfg config.AppConfig, id store.Identity, clock Clock, adv Advertise, ifaceName, mac string) Node {
	return Node{
		ID:          id.NodeID,
		Version:     TAIVersion(time.Now()),
		Label:       cfg.NodeFriendlyName,
		Description: fmt.Sprintf("AES67 receiver on %s", adv.Host),
		Tags:        map[string][]string{},
		Href:        fmt.Sprintf("http://%s:%d/x-nmos/node/%s", adv.Host, adv.Port, cfg.Registry.Versions[0]),
		API: NodeAPI{
			Versions: append([]string(nil), cfg.Registry.Versions...),
			Endpoints: []APIEndpoint{
				{Host: adv.Host, Port: adv.Port, Protocol: "http"},
			},
		},
		Services: []any{},
		Clocks:   []Clock{clock},
		Interfaces: []Interface{
			{Name: ifaceName, PortID: mac},
		},
		Hostname: adv.Host,
	}
}

// BuildDevice constructs the Device resource. The controls list advertises
// each supported Connection API version back at this node.
func BuildDevice(cfg config.AppConfig, id store.Identity, adv Advertise) Device {
	controls := make([]Control, 0, len(cfg.Registry.Versions))
	for _, version := range cfg.Registry.Versions {
		controls = append(controls, Control{
			Href: fmt.Sprintf("http://%s:%d/x-nmos/connection/%s/", adv.Host, adv.Port, version),
			Type: fmt.Sprintf("urn:x-nmos:control:sr-ctrl/%s", version),
		})
	}
	return Device{
		ID:          id.DeviceID,
		Version:     TAIVersion(time.Now()),
		Label:       cfg.DeviceFriendlyName,
		Description: "AES67 mono receiver device",
		Type:        "urn:x-nmos:device:generic",
		NodeID:      id.NodeID,
		Controls:    controls,
		Receivers:   []string{id.ReceiverID},
		Senders:     []string{},
		Tags:        map[string][]string{},
	}
}

// BuildReceiver constructs the Receiver resource with the current sink state.
func BuildReceiver(cfg config.AppConfig, id store.Identity, ifaceName string, active bool) Receiver {
	return Receiver{
		ID:          id.ReceiverID,
		Version:     TAIVersion(time.Now()),
		Label:       cfg.ReceiverFriendlyName,
		Description: "Mono AES67 RTP receiver",
		Format:      "urn:x-nmos:format:audio",
		Caps: ReceiverCaps{
			MediaTypes: []string{"audio/L24"},
		},
		Transport:         "urn:x-nmos:transport:rtp.mcast",
		DeviceID:          id.DeviceID,
		Subscription:      Subscription{Active: active},
		InterfaceBindings: []string{ifaceName},
		Tags:              map[string][]string{},
	}
}

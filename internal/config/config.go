// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config defines the application configuration model and loader.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SupportedVersions lists the NMOS API versions this node serves, newest first.
// The same set is used for the Node API and the Connection API.
var SupportedVersions = []string{"v1.3", "v1.2", "v1.1"}

// DefaultMixerControls are the amixer control names updated for volume/mute
// when the configuration does not name any.
var DefaultMixerControls = []string{"DAC LEFT LINEOUT", "DAC RIGHT LINEOUT"}

// RegistryConfig holds NMOS registration discovery and cadence settings.
type RegistryConfig struct {
	// Mode selects the discovery strategy: "dns-sd" browses for registries
	// advertising _nmos-registration._tcp, "static" relies on StaticURLs.
	Mode              string   `yaml:"mode"`
	StaticURLs        []string `yaml:"static_urls"`
	Versions          []string `yaml:"versions"`
	HeartbeatInterval float64  `yaml:"heartbeat_interval"` // seconds between heartbeats
	DNSSDTimeout      float64  `yaml:"dns_sd_timeout"`     // seconds to wait for browse results
}

// HeartbeatPeriod returns the heartbeat interval as a duration.
func (r RegistryConfig) HeartbeatPeriod() time.Duration {
	return time.Duration(r.HeartbeatInterval * float64(time.Second))
}

// BrowseTimeout returns the DNS-SD browse timeout as a duration.
func (r RegistryConfig) BrowseTimeout() time.Duration {
	return time.Duration(r.DNSSDTimeout * float64(time.Second))
}

// DaemonConfig points at the local aes67-linux-daemon HTTP API.
type DaemonConfig struct {
	BaseURL            string  `yaml:"base_url"`
	SinkID             int     `yaml:"sink_id"`
	StatusPollInterval float64 `yaml:"status_poll_interval"` // seconds between monitor polls
}

// PollPeriod returns the status poll interval as a duration.
func (d DaemonConfig) PollPeriod() time.Duration {
	return time.Duration(d.StatusPollInterval * float64(time.Second))
}

// ControlsList accepts either a YAML sequence of control names or a bare
// string, which is treated as a single-element list.
type ControlsList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ControlsList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*c = ControlsList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = ControlsList(list)
		return nil
	default:
		return fmt.Errorf("amixer_controls must be a string or a list of strings")
	}
}

// AudioConfig describes the local audio bridge: the alsaloop capture→playback
// pipe and the amixer volume path.
type AudioConfig struct {
	CaptureDevice  string       `yaml:"capture_device"`  // ALSA capture device (daemon-provided)
	PlaybackDevice string       `yaml:"playback_device"` // ALSA playback device (headphone jack)
	LoopBufferMS   int          `yaml:"alsaloop_buffer_ms"`
	MixerCard      string       `yaml:"amixer_card"`
	MixerControls  ControlsList `yaml:"amixer_controls"`
	DefaultVolume  int          `yaml:"default_volume"`
}

// AppConfig is the root configuration for the node.
type AppConfig struct {
	NodeFriendlyName     string         `yaml:"node_friendly_name"`
	DeviceFriendlyName   string         `yaml:"device_friendly_name"`
	ReceiverFriendlyName string         `yaml:"receiver_friendly_name"`
	Registry             RegistryConfig `yaml:"registry"`
	Daemon               DaemonConfig   `yaml:"daemon"`
	Audio                AudioConfig    `yaml:"audio"`
	InterfaceName        string         `yaml:"interface_name"`
	HTTPPort             int            `yaml:"http_port"`
	StateFile            string         `yaml:"state_file"`
	LogLevel             string         `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() AppConfig {
	return AppConfig{
		NodeFriendlyName:     "AES67 Receiver",
		DeviceFriendlyName:   "AES67 Device",
		ReceiverFriendlyName: "AES67 Mono Receiver",
		Registry: RegistryConfig{
			Mode:              "dns-sd",
			Versions:          append([]string(nil), SupportedVersions...),
			HeartbeatInterval: 5.0,
			DNSSDTimeout:      3.0,
		},
		Daemon: DaemonConfig{
			BaseURL:            "http://127.0.0.1:8080",
			SinkID:             0,
			StatusPollInterval: 5.0,
		},
		Audio: AudioConfig{
			CaptureDevice:  "hw:2,0",
			PlaybackDevice: "hw:1,0",
			LoopBufferMS:   50,
			MixerCard:      "1",
			MixerControls:  ControlsList(append([]string(nil), DefaultMixerControls...)),
			DefaultVolume:  80,
		},
		HTTPPort:  8000,
		StateFile: "state/runtime.json",
		LogLevel:  "info",
	}
}

// Validate checks the configuration against the documented constraints.
func (c *AppConfig) Validate() error {
	switch c.Registry.Mode {
	case "dns-sd", "static":
	default:
		return fmt.Errorf("registry.mode must be \"dns-sd\" or \"static\", got %q", c.Registry.Mode)
	}
	if c.Registry.HeartbeatInterval <= 0 {
		return fmt.Errorf("registry.heartbeat_interval must be > 0")
	}
	if c.Registry.DNSSDTimeout <= 0 {
		return fmt.Errorf("registry.dns_sd_timeout must be > 0")
	}
	if c.Daemon.BaseURL == "" {
		return fmt.Errorf("daemon.base_url must not be empty")
	}
	if c.Daemon.SinkID < 0 {
		return fmt.Errorf("daemon.sink_id must be >= 0")
	}
	if c.Daemon.StatusPollInterval <= 0 {
		return fmt.Errorf("daemon.status_poll_interval must be > 0")
	}
	if c.Audio.LoopBufferMS < 10 || c.Audio.LoopBufferMS > 500 {
		return fmt.Errorf("audio.alsaloop_buffer_ms must be within [10, 500], got %d", c.Audio.LoopBufferMS)
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 100 {
		return fmt.Errorf("audio.default_volume must be within [0, 100], got %d", c.Audio.DefaultVolume)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be within [1, 65535], got %d", c.HTTPPort)
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file must not be empty")
	}
	return nil
}

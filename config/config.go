// Package config loads the bridge configuration file and builds the routes it
// declares.
package config

import (
	"net/netip"
	"os"

	"github.com/sagernet/sing-bridge"

	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Workers      int            `yaml:"workers,omitempty"`
	PoolCapacity int            `yaml:"pool_capacity,omitempty"`
	SlotSize     int            `yaml:"slot_size,omitempty"`
	WriteSpin    int            `yaml:"spin,omitempty"`
	Metrics      string         `yaml:"metrics,omitempty"`
	Routes       []*RouteConfig `yaml:"routes"`
}

type RouteConfig struct {
	Listen      string `yaml:"listen"`
	Type        string `yaml:"type"`
	Destination string `yaml:"destination,omitempty"`
	Window      int    `yaml:"window,omitempty"`
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, E.Cause(err, "read config")
	}
	config := new(Config)
	if err = yaml.Unmarshal(content, config); err != nil {
		return nil, E.Cause(err, "parse config")
	}
	if len(config.Routes) == 0 {
		return nil, E.New("no routes configured")
	}
	return config, nil
}

func (c *RouteConfig) Build(service *bridge.Service) (*bridge.Listener, error) {
	bind, err := netip.ParseAddrPort(c.Listen)
	if err != nil {
		return nil, E.Cause(err, "parse listen address ", c.Listen)
	}
	var handler bridge.Handler
	switch c.Type {
	case "echo":
		handler = &bridge.EchoHandler{Window: c.Window}
	case "discard":
		handler = &bridge.DiscardHandler{Window: c.Window}
	case "relay", "":
		destination := M.ParseSocksaddr(c.Destination)
		if !destination.IsValid() {
			return nil, E.New("invalid destination ", c.Destination)
		}
		relay := bridge.NewRelayHandler(service, destination)
		relay.Window = c.Window
		handler = relay
	default:
		return nil, E.New("unknown route type ", c.Type)
	}
	return service.InstallServerRoute(bind, handler)
}

package conf

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"os"
	"time"

	"github.com/sagernet/sing-reactor/common"
	E "github.com/sagernet/sing-reactor/common/exceptions"
	"github.com/sagernet/sing-reactor/common/poll"
	"github.com/sagernet/sing-reactor/common/reactor"
)

type Config struct {
	Listen         string       `json:"listen"`
	MaxConnections int          `json:"max_connections,omitempty"`
	Backend        poll.Backend `json:"backend,omitempty"`
	EdgeTriggered  bool         `json:"edge_triggered,omitempty"`
	AcceptTimeout  Duration     `json:"accept_timeout,omitempty"`
	PollTimeout    Duration     `json:"poll_timeout,omitempty"`
	OverloadWait   Duration     `json:"overload_wait,omitempty"`
	RecvTimeout    Duration     `json:"recv_timeout,omitempty"`
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, E.Cause(err, "read config")
	}
	return Parse(content)
}

// Parse decodes a JSON config, rejecting unknown fields.
func Parse(content []byte) (*Config, error) {
	var config Config
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&config)
	if err != nil {
		return nil, E.Cause(err, "decode config")
	}
	return &config, config.Validate()
}

func (c *Config) Validate() error {
	if _, err := c.ListenAddr(); err != nil {
		return err
	}
	if c.MaxConnections < 0 {
		return E.New("invalid max_connections: ", c.MaxConnections)
	}
	if c.Backend != "" {
		if !common.Contains(poll.Available(), c.Backend) {
			return E.New("backend ", c.Backend, " is not available on this platform")
		}
	}
	if c.EdgeTriggered && c.Backend == poll.BackendSelect {
		return E.New("backend select does not support edge triggering")
	}
	for name, value := range map[string]Duration{
		"accept_timeout": c.AcceptTimeout,
		"poll_timeout":   c.PollTimeout,
		"overload_wait":  c.OverloadWait,
		"recv_timeout":   c.RecvTimeout,
	} {
		if value < 0 {
			return E.New("invalid ", name, ": ", value)
		}
	}
	return nil
}

func (c *Config) ListenAddr() (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(c.Listen)
	if err != nil {
		return netip.AddrPort{}, E.Cause(err, "parse listen address")
	}
	return addr, nil
}

func (c *Config) ReactorOptions() reactor.Options {
	return reactor.Options{
		MaxConnections: c.MaxConnections,
		Backend:        c.Backend,
		EdgeTriggered:  c.EdgeTriggered,
	}
}

// Duration is a time.Duration written as a string such as "250ms" in JSON.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(content []byte) error {
	var value string
	err := json.Unmarshal(content, &value)
	if err != nil {
		return E.Cause(err, "duration must be a string")
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

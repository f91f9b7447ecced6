//go:build unix

package tcp

import (
	"time"

	"github.com/sagernet/sing-reactor/common/control"

	"github.com/sirupsen/logrus"
)

type Option func(*AcceptServer)

func WithBacklog(backlog int) Option {
	return func(server *AcceptServer) {
		server.backlog = backlog
	}
}

// WithReuseAddr toggles SO_REUSEADDR on the listening socket; it is on by default.
func WithReuseAddr(enabled bool) Option {
	return func(server *AcceptServer) {
		server.reuseAddr = enabled
	}
}

// WithIPv6Only restricts an IPv6 listener to IPv6 peers. It has no effect on
// IPv4 listeners.
func WithIPv6Only(enabled bool) Option {
	return func(server *AcceptServer) {
		server.ipv6Only = &enabled
	}
}

func WithControl(controlFunc control.Func) Option {
	return func(server *AcceptServer) {
		server.control = control.Append(server.control, controlFunc)
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(server *AcceptServer) {
		server.logger = logger
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(server *AcceptServer) {
		server.timeout = timeout
	}
}

func WithOverloadWait(wait time.Duration) Option {
	return func(server *AcceptServer) {
		server.overloadWait = wait
	}
}

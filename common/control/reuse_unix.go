//go:build unix

package control

import "golang.org/x/sys/unix"

func ReuseAddr() Func {
	return func(fd int) error {
		return wrap(unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1), "set SO_REUSEADDR")
	}
}

func IPv6Only(enabled bool) Func {
	return func(fd int) error {
		var value int
		if enabled {
			value = 1
		}
		return wrap(unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, value), "set IPV6_V6ONLY")
	}
}

func NoDelay() Func {
	return func(fd int) error {
		return wrap(unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1), "set TCP_NODELAY")
	}
}

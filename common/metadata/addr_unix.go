//go:build unix

package metadata

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

func AddrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(addr.Addr), uint16(addr.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(addr.Addr), uint16(addr.Port))
	default:
		return netip.AddrPort{}
	}
}

func AddrPortToSockaddr(addrPort netip.AddrPort) unix.Sockaddr {
	if addrPort.Addr().Is4() {
		return &unix.SockaddrInet4{
			Port: int(addrPort.Port()),
			Addr: addrPort.Addr().As4(),
		}
	}
	return &unix.SockaddrInet6{
		Port: int(addrPort.Port()),
		Addr: addrPort.Addr().As16(),
	}
}

func SocksaddrFromSockaddr(sa unix.Sockaddr) Socksaddr {
	return SocksaddrFromNetIP(AddrPortFromSockaddr(sa))
}

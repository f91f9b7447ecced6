package metadata

import (
	"net"
	"net/netip"
	"strconv"
)

// Maximum length of a formatted address including brackets, zone and port.
const (
	MaxIPv4StringLen = len("255.255.255.255:65535")
	MaxIPv6StringLen = len("[ffff:ffff:ffff:ffff:ffff:ffff:255.255.255.255%") + 16 + len("]:65535")
)

type Socksaddr struct {
	Addr netip.Addr
	Fqdn string
	Port uint16
}

func (ap Socksaddr) Network() string {
	return "tcp"
}

func (ap Socksaddr) IsIP() bool {
	return ap.Addr.IsValid()
}

func (ap Socksaddr) IsIPv4() bool {
	return ap.Addr.Is4() || ap.Addr.Is4In6()
}

func (ap Socksaddr) IsFqdn() bool {
	return !ap.IsIP() && ap.Fqdn != ""
}

func (ap Socksaddr) IsValid() bool {
	return ap.Addr.IsValid() || ap.Fqdn != ""
}

func (ap Socksaddr) Family() Family {
	switch {
	case ap.Fqdn != "" && !ap.Addr.IsValid():
		return AddressFamilyFqdn
	case ap.IsIPv4():
		return AddressFamilyIPv4
	default:
		return AddressFamilyIPv6
	}
}

// MaxStringLen is the buffer size needed by AppendTo for this address family.
func (ap Socksaddr) MaxStringLen() int {
	switch ap.Family() {
	case AddressFamilyIPv4:
		return MaxIPv4StringLen
	case AddressFamilyIPv6:
		return MaxIPv6StringLen
	default:
		return len(ap.Fqdn) + len(":65535")
	}
}

func (ap Socksaddr) AddrString() string {
	if ap.Addr.IsValid() {
		return ap.Addr.String()
	}
	return ap.Fqdn
}

func (ap Socksaddr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr, ap.Port)
}

// AppendTo appends the host:port form to b without intermediate strings.
func (ap Socksaddr) AppendTo(b []byte) []byte {
	if ap.Addr.IsValid() {
		return ap.AddrPort().AppendTo(b)
	}
	b = append(b, ap.Fqdn...)
	b = append(b, ':')
	return strconv.AppendUint(b, uint64(ap.Port), 10)
}

func (ap Socksaddr) String() string {
	return net.JoinHostPort(ap.AddrString(), strconv.Itoa(int(ap.Port)))
}

func SocksaddrFromNetIP(ap netip.AddrPort) Socksaddr {
	if ap.Addr().Is4In6() {
		return Socksaddr{
			Addr: netip.AddrFrom4(ap.Addr().As4()),
			Port: ap.Port(),
		}
	}
	return Socksaddr{
		Addr: ap.Addr(),
		Port: ap.Port(),
	}
}

func ParseSocksaddrHostPort(host string, port uint16) Socksaddr {
	netAddr, err := netip.ParseAddr(host)
	if err != nil {
		return Socksaddr{
			Fqdn: host,
			Port: port,
		}
	}
	return SocksaddrFromNetIP(netip.AddrPortFrom(netAddr, port))
}

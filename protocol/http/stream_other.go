//go:build !unix

package http

import (
	"context"
	"net/netip"

	E "github.com/sagernet/sing-reactor/common/exceptions"
)

func defaultDial(ctx context.Context, addr netip.AddrPort) (Conn, error) {
	return nil, E.New("http: no socket support on this platform")
}

func isWouldBlock(err error) bool {
	return false
}

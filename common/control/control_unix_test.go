//go:build unix

package control

import (
	"testing"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAppend(t *testing.T) {
	var calls []string
	first := func(fd int) error {
		calls = append(calls, "first")
		return nil
	}
	second := func(fd int) error {
		calls = append(calls, "second")
		return E.New("second failed")
	}
	require.Nil(t, Append(nil, nil))
	require.NoError(t, Append(first, nil)(0))
	require.EqualError(t, Append(first, second)(0), "second failed")
	require.Equal(t, []string{"first", "first", "second"}, calls)
}

func TestReuseAddrAndIPv6Only(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Skip("ipv6 unavailable: ", err)
	}
	defer unix.Close(fd)
	require.NoError(t, Apply(fd, ReuseAddr(), IPv6Only(true), nil))
	value, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR)
	require.NoError(t, err)
	require.NotZero(t, value)
	value, err = unix.GetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY)
	require.NoError(t, err)
	require.Equal(t, 1, value)
}

func TestApplyInvalidDescriptor(t *testing.T) {
	err := Apply(-1, ReuseAddr())
	require.ErrorIs(t, err, unix.EBADF)
}

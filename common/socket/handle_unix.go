//go:build unix

package socket

import "golang.org/x/sys/unix"

var closeFunc = unix.Close
